// Package chunk splits paper text into overlapping word windows.
package chunk

import (
	"fmt"
	"strings"

	"github.com/matsen/paperdex/internal/paper"
)

const (
	// DefaultSize is the number of words per chunk.
	DefaultSize = 400
	// DefaultOverlap is the number of words a chunk repeats from the one
	// before it.
	DefaultOverlap = 50
)

// Span is one window of text.
type Span struct {
	Text    string
	Overlap int // words shared with the previous span
}

// Split breaks text into windows of at most size words. Consecutive windows
// share overlap words; the first window shares none. Whitespace is
// normalised to single spaces. Blank text yields no spans.
func Split(text string, size, overlap int) ([]Span, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", paper.ErrInvalidArgument, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", paper.ErrInvalidArgument, overlap, size)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	var spans []Span
	start := 0
	for {
		end := min(start+size, len(words))
		shared := 0
		if start > 0 {
			shared = overlap
		}
		spans = append(spans, Span{
			Text:    strings.Join(words[start:end], " "),
			Overlap: shared,
		})
		if end == len(words) {
			return spans, nil
		}
		start = end - overlap
	}
}

// Chunks converts spans into unsaved chunks with contiguous ordinals.
func Chunks(spans []Span) []paper.Chunk {
	chunks := make([]paper.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = paper.Chunk{Ordinal: i, Text: s.Text, Overlap: s.Overlap}
	}
	return chunks
}
