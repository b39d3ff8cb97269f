package main

import (
	"strings"
	"testing"
	"time"

	"github.com/matsen/paperdex/internal/config"
	"github.com/matsen/paperdex/internal/embedding"
	"github.com/matsen/paperdex/internal/indexer"
	"github.com/matsen/paperdex/internal/paper"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"Schrödinger équation", 10, "Schrödi..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four five", 9, "  ")
	want := "one two\n  three\n  four five"
	if got != want {
		t.Errorf("wrapText() = %q, want %q", got, want)
	}
	if got := wrapText("   ", 10, ""); got != "" {
		t.Errorf("wrapText(blank) = %q, want empty", got)
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("a\n\n b\tc", 20); got != "a b c" {
		t.Errorf("snippet() = %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(1500 * time.Millisecond); got != "1.5s" {
		t.Errorf("formatDuration(1.5s) = %q", got)
	}
	if got := formatDuration(125 * time.Second); got != "2m 5s" {
		t.Errorf("formatDuration(125s) = %q", got)
	}
}

func TestBuildProgressBar(t *testing.T) {
	tests := []struct {
		current, total int
		want           string
	}{
		{0, 0, "     "},
		{0, 10, ">    "},
		{4, 10, "==>  "},
		{10, 10, "====="},
	}
	for _, tt := range tests {
		if got := buildProgressBar(tt.current, tt.total, 5); got != tt.want {
			t.Errorf("buildProgressBar(%d, %d) = %q, want %q", tt.current, tt.total, got, tt.want)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	if got := displayTitle(paper.Paper{Title: "Known"}); got != "Known" {
		t.Errorf("displayTitle() = %q", got)
	}
	if got := displayTitle(paper.Paper{SourceFile: "scan.pdf"}); !strings.Contains(got, "scan.pdf") {
		t.Errorf("displayTitle() = %q, want source file", got)
	}
}

func TestSummarizePaper_NilAuthors(t *testing.T) {
	s := summarizePaper(paper.Paper{ID: 3, Title: "T"})
	if s.Authors == nil {
		t.Error("Authors should be an empty slice, not nil")
	}
}

func TestBuildSemanticResults(t *testing.T) {
	hits := []indexer.Result{
		{Chunk: paper.Chunk{ID: 7, Ordinal: 2, Text: "x"}, Paper: paper.Paper{ID: 1, Title: "P"}, Distance: 0},
		{Chunk: paper.Chunk{ID: 9}, Paper: paper.Paper{ID: 2, Title: "Q"}, Distance: 1},
	}
	got := buildSemanticResults(hits)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Similarity != 1 || got[1].Similarity != 0.5 {
		t.Errorf("similarities = %v, %v; want 1, 0.5", got[0].Similarity, got[1].Similarity)
	}
	if got[0].ChunkID != 7 || got[0].Ordinal != 2 || got[0].PaperID != 1 {
		t.Errorf("result = %+v", got[0])
	}
}

func TestNewProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Provider = config.ProviderHash
	cfg.Embedding.Dimensions = 64

	p, err := newProvider(cfg)
	if err != nil {
		t.Fatalf("newProvider(hash) error = %v", err)
	}
	if p.ModelName() != embedding.HashModelName || p.Dimensions() != 64 {
		t.Errorf("hash provider = %s/%d", p.ModelName(), p.Dimensions())
	}

	cfg = config.Default()
	p, err = newProvider(cfg)
	if err != nil {
		t.Fatalf("newProvider(ollama) error = %v", err)
	}
	if p.ModelName() != cfg.Embedding.Model || p.Dimensions() != cfg.Embedding.Dimensions {
		t.Errorf("ollama provider = %s/%d", p.ModelName(), p.Dimensions())
	}

	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg.Embedding.Provider = config.ProviderOpenAI
	if _, err := newProvider(cfg); err == nil {
		t.Error("newProvider(openai) without a key should fail")
	}

	cfg.Embedding.Provider = "bert"
	if _, err := newProvider(cfg); err == nil {
		t.Error("newProvider(unknown) should fail")
	}
}
