package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultOpenAIModel is the default OpenAI embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimensions is the output size of text-embedding-3-small.
	DefaultOpenAIDimensions = 1536
)

// OpenAIProvider generates embeddings with the OpenAI embeddings API or any
// server that speaks it.
type OpenAIProvider struct {
	client     *openai.Client
	config     openai.ClientConfig
	model      string
	dimensions int

	// requestDimensions asks the API to shorten vectors to dimensions.
	requestDimensions bool
}

var _ BatchProvider = (*OpenAIProvider)(nil)

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIModel sets the embedding model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.model = model
	}
}

// WithOpenAIDimensions requests vectors of the given size.
func WithOpenAIDimensions(dims int) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.dimensions = dims
		p.requestDimensions = true
	}
}

// WithOpenAIBaseURL points the client at a compatible server.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.config.BaseURL = url
	}
}

// NewOpenAIProvider creates a provider authenticated with apiKey.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}

	p := &OpenAIProvider{
		config:     openai.DefaultConfig(apiKey),
		model:      DefaultOpenAIModel,
		dimensions: DefaultOpenAIDimensions,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClientWithConfig(p.config)
	return p, nil
}

// Embed generates an embedding for the given text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	out, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Embedding{}, err
	}
	return out[0], nil
}

// EmbedBatch generates embeddings for several texts in one request.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}
	if p.requestDimensions {
		req.Dimensions = p.dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([]Embedding, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		out[i] = Embedding{Vector: v}
	}
	return out, nil
}

// ModelName returns the name of the embedding model.
func (p *OpenAIProvider) ModelName() string {
	return p.model
}

// Dimensions returns the expected vector dimensions.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}
