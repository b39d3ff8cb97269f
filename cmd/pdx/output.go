package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matsen/paperdex/internal/paper"
)

const (
	DefaultSearchLimit = 50

	// Title widths for one-line listings.
	SearchTitleMaxLen = 70
	ListTitleMaxLen   = 60

	TextWrapWidth    = 72
	SnippetMaxLength = 240
)

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...any) {
	fmt.Printf(format, args...)
}

// exitWithError reports the message on stderr in human mode, or as an
// ErrorResponse on stdout otherwise, then exits with code.
func exitWithError(code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// PaperSummary is the short form of a paper used in listings.
type PaperSummary struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	DOI       string   `json:"doi,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func summarizePaper(p paper.Paper) PaperSummary {
	authors := p.Authors
	if authors == nil {
		authors = []string{}
	}
	return PaperSummary{
		ID:        p.ID,
		Title:     p.Title,
		Authors:   authors,
		DOI:       p.DOI,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

// displayTitle returns the title, or the source file name for papers where
// no title could be extracted.
func displayTitle(p paper.Paper) string {
	if p.Title != "" {
		return p.Title
	}
	return "(untitled) " + p.SourceFile
}

// truncateString truncates a string to maxLen runes, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// snippet collapses whitespace and truncates text for one-line display.
func snippet(text string, maxLen int) string {
	return truncateString(strings.Join(strings.Fields(text), " "), maxLen)
}

// wrapText wraps text to the specified width with indentation on subsequent lines.
func wrapText(text string, width int, indent string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	var line strings.Builder
	for _, word := range words {
		switch {
		case line.Len() == 0:
			line.WriteString(word)
		case line.Len()+1+len(word) <= width:
			line.WriteString(" ")
			line.WriteString(word)
		default:
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(word)
		}
	}
	lines = append(lines, line.String())
	return strings.Join(lines, "\n"+indent)
}
