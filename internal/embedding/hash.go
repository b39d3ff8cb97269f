package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashModelName is the model name reported by HashProvider.
const HashModelName = "hash-bow-v1"

// HashProvider is an offline provider that embeds text as a signed
// feature-hashed bag of lowercase words. Texts sharing words land close
// together; identical texts produce identical vectors.
type HashProvider struct {
	dimensions int
}

var _ BatchProvider = (*HashProvider)(nil)

// NewHashProvider creates a hash provider producing vectors of size dims.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashProvider{dimensions: dims}
}

// Embed hashes the words of text into a vector.
func (p *HashProvider) Embed(_ context.Context, text string) (Embedding, error) {
	v := make([]float32, p.dimensions)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		tokens = []string{strings.TrimSpace(text)}
	}

	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimensions))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}

	return Embedding{Vector: v}, nil
}

// EmbedBatch embeds each text in order.
func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	out := make([]Embedding, len(texts))
	for i, text := range texts {
		e, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// ModelName returns HashModelName.
func (p *HashProvider) ModelName() string {
	return HashModelName
}

// Dimensions returns the vector size.
func (p *HashProvider) Dimensions() int {
	return p.dimensions
}
