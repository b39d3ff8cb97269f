package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultOllamaURL is the default Ollama API endpoint.
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultModel is the default embedding model.
	DefaultModel = "all-minilm:l6-v2"

	// DefaultDimensions is the expected output dimensions for all-minilm.
	DefaultDimensions = 384

	// DefaultTimeout is the timeout for embedding requests.
	DefaultTimeout = 30 * time.Second

	// apiPathTags is the Ollama API endpoint for listing models.
	apiPathTags = "/api/tags"

	// apiPathEmbeddings is the Ollama API endpoint for single embeddings.
	apiPathEmbeddings = "/api/embeddings"

	// apiPathEmbed is the Ollama API endpoint for batch embeddings.
	apiPathEmbed = "/api/embed"
)

// OllamaProvider generates embeddings using the Ollama API.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	limiter    *rate.Limiter
}

var (
	_ BatchProvider = (*OllamaProvider)(nil)
	_ Checker       = (*OllamaProvider)(nil)
)

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithBaseURL sets the Ollama API base URL.
func WithBaseURL(url string) OllamaOption {
	return func(p *OllamaProvider) {
		p.baseURL = url
	}
}

// WithModel sets the embedding model.
func WithModel(model string) OllamaOption {
	return func(p *OllamaProvider) {
		p.model = model
	}
}

// WithDimensions sets the expected vector dimensions.
func WithDimensions(dims int) OllamaOption {
	return func(p *OllamaProvider) {
		p.dimensions = dims
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) OllamaOption {
	return func(p *OllamaProvider) {
		p.client.Timeout = timeout
	}
}

// WithRateLimit caps requests per second. Zero or negative means unlimited.
func WithRateLimit(perSecond float64) OllamaOption {
	return func(p *OllamaProvider) {
		if perSecond <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewOllamaProvider creates a new Ollama embedding provider.
func NewOllamaProvider(opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		baseURL:    DefaultOllamaURL,
		model:      DefaultModel,
		dimensions: DefaultDimensions,
		client:     &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// call sends a request to the Ollama API and decodes the JSON reply into
// out. A nil in means GET. Embedding requests wait on the rate limiter.
func (p *OllamaProvider) call(ctx context.Context, path string, in, out any) error {
	method, body := http.MethodGet, io.Reader(nil)
	if in != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		method, body = http.MethodPost, bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling ollama at %s: %w", p.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama %s: HTTP %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s reply: %w", path, err)
	}
	return nil
}

// Embed generates an embedding for the given text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	var result ollamaEmbedResponse
	if err := p.call(ctx, apiPathEmbeddings, ollamaEmbedRequest{Model: p.model, Prompt: text}, &result); err != nil {
		return Embedding{}, err
	}
	return Embedding{Vector: result.Embedding}, nil
}

// EmbedBatch generates embeddings for several texts in one request.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result ollamaBatchResponse
	if err := p.call(ctx, apiPathEmbed, ollamaBatchRequest{Model: p.model, Input: texts}, &result); err != nil {
		return nil, err
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}

	out := make([]Embedding, len(texts))
	for i, v := range result.Embeddings {
		out[i] = Embedding{Vector: v}
	}
	return out, nil
}

// ModelName returns the name of the embedding model.
func (p *OllamaProvider) ModelName() string {
	return p.model
}

// Dimensions returns the expected vector dimensions.
func (p *OllamaProvider) Dimensions() int {
	return p.dimensions
}

// IsAvailable reports an error unless the Ollama server answers.
func (p *OllamaProvider) IsAvailable(ctx context.Context) error {
	if err := p.call(ctx, apiPathTags, nil, nil); err != nil {
		return fmt.Errorf("ollama is not running: %w", err)
	}
	return nil
}

// HasModel reports whether the configured model has been pulled. Tags
// without a suffix match the ":latest" variant.
func (p *OllamaProvider) HasModel(ctx context.Context) (bool, error) {
	var tags ollamaTagsResponse
	if err := p.call(ctx, apiPathTags, nil, &tags); err != nil {
		return false, fmt.Errorf("listing ollama models: %w", err)
	}
	want := p.model
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range tags.Models {
		if m.Name == p.model || m.Name == want {
			return true, nil
		}
	}
	return false, nil
}

// Wire types for /api/embeddings, /api/embed and /api/tags.
type (
	ollamaEmbedRequest struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	ollamaEmbedResponse struct {
		Embedding []float32 `json:"embedding"`
	}
	ollamaBatchRequest struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}
	ollamaBatchResponse struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	ollamaTagsResponse struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
)
