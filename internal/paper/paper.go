// Package paper defines the core domain types for ingested papers, their
// chunks, summaries, and the mapping between chunks and vector index slots.
package paper

import (
	"fmt"
	"strings"
	"time"
)

// Paper represents an ingested academic paper.
type Paper struct {
	ID int64 `json:"id"`

	// Source
	SourceFile  string `json:"source_file"`
	ContentHash string `json:"content_hash"` // Deduplication key over the extracted text

	// Extracted metadata
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract,omitempty"`
	DOI      string   `json:"doi,omitempty"`

	FullText  string    `json:"full_text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is a bounded span of a paper's text.
type Chunk struct {
	ID      int64  `json:"id"`
	PaperID int64  `json:"paper_id"`
	Ordinal int    `json:"ordinal"` // 0-based, contiguous within a paper
	Text    string `json:"text"`
	Overlap int    `json:"overlap"` // Words shared with the previous chunk
}

// EmbeddingMapping links a chunk to its slot in the vector index.
type EmbeddingMapping struct {
	ID        int64     `json:"id"`
	ChunkID   int64     `json:"chunk_id"`
	Position  int       `json:"position"`
	ModelName string    `json:"model_name"`
	TextHash  string    `json:"text_hash"`
	IndexedAt time.Time `json:"indexed_at"`
}

// OwnerKind identifies what a summary belongs to.
type OwnerKind string

const (
	OwnerChunk OwnerKind = "chunk"
	OwnerPaper OwnerKind = "paper"
)

// SummaryKind tags the kind of generated text a summary holds.
type SummaryKind string

const (
	KindChunkSummary    SummaryKind = "chunk-summary"
	KindFinalSummary    SummaryKind = "final-summary"
	KindGapAnalysis     SummaryKind = "gap-analysis"
	KindCombinedSummary SummaryKind = "combined-chunk-summaries"
)

// ValidSummaryKinds lists the accepted summary kinds.
var ValidSummaryKinds = []SummaryKind{KindChunkSummary, KindFinalSummary, KindGapAnalysis, KindCombinedSummary}

// Summary is generated text attached to a chunk or a paper.
// There is at most one summary per (OwnerKind, OwnerID, Kind).
type Summary struct {
	ID        int64       `json:"id"`
	OwnerKind OwnerKind   `json:"owner_kind"`
	OwnerID   int64       `json:"owner_id"`
	Kind      SummaryKind `json:"kind"`
	Text      string      `json:"text"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Validate checks that the summary has a known kind, an owner kind that
// matches it, and non-empty text.
func (s Summary) Validate() error {
	if strings.TrimSpace(s.Text) == "" {
		return fmt.Errorf("%w: summary text is empty", ErrInvalidInput)
	}
	switch s.Kind {
	case KindChunkSummary:
		if s.OwnerKind != OwnerChunk {
			return fmt.Errorf("%w: %s must belong to a chunk", ErrInvalidInput, s.Kind)
		}
	case KindFinalSummary, KindGapAnalysis, KindCombinedSummary:
		if s.OwnerKind != OwnerPaper {
			return fmt.Errorf("%w: %s must belong to a paper", ErrInvalidInput, s.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown summary kind %q", ErrInvalidInput, s.Kind)
	}
	return nil
}

// IsBlank reports whether text is empty or whitespace only.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
