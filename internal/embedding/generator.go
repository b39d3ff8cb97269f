package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/matsen/paperdex/internal/paper"
	"github.com/panjf2000/ants/v2"
)

// DefaultBatchSize is the number of texts sent per provider batch call.
const DefaultBatchSize = 32

// Generator turns text into unit-length vectors of a fixed dimension.
// Blank text is rejected and every vector is checked against the model's
// dimension before it is returned.
type Generator struct {
	model     *Model
	batchSize int
	pool      *ants.Pool
	logger    *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator) error

// WithBatchSize sets the sub-batch size for EmbedBatch.
func WithBatchSize(n int) GeneratorOption {
	return func(g *Generator) error {
		if n < 1 {
			n = 1
		}
		g.batchSize = n
		return nil
	}
}

// WithWorkers sets how many single-text embeddings run concurrently for
// providers without a batch endpoint.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(n int) GeneratorOption {
	return func(g *Generator) error {
		if n < 1 {
			n = 1
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		if g.pool != nil {
			g.pool.Release()
		}
		g.pool = pool
		return nil
	}
}

// WithGeneratorLogger sets a custom logger.
// Default is slog.Default().
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// NewGenerator creates a generator over model. Call Release when done.
func NewGenerator(model *Model, opts ...GeneratorOption) (*Generator, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", paper.ErrInvalidArgument)
	}

	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		model:     model,
		batchSize: DefaultBatchSize,
		pool:      pool,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			g.Release()
			return nil, err
		}
	}
	return g, nil
}

// Release frees the worker pool. It does not close the model.
func (g *Generator) Release() {
	if g.pool != nil {
		g.pool.Release()
		g.pool = nil
	}
}

// ModelName returns the model name vectors are produced with.
func (g *Generator) ModelName() string {
	return g.model.ModelName()
}

// Dimensions returns D, the length of every produced vector.
func (g *Generator) Dimensions() int {
	return g.model.Dimensions()
}

// Embed returns the normalised embedding of text.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if paper.IsBlank(text) {
		return nil, fmt.Errorf("%w: text is empty", paper.ErrInvalidInput)
	}

	p, err := g.model.Load(ctx)
	if err != nil {
		return nil, err
	}

	e, err := p.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return g.finish(e)
}

// EmbedBatch returns one normalised embedding per text, in input order. A
// blank text fails the whole call with paper.ErrInvalidInput.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if paper.IsBlank(t) {
			return nil, fmt.Errorf("%w: text %d is empty", paper.ErrInvalidInput, i)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	p, err := g.model.Load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		part := texts[start:end]

		var embs []Embedding
		if bp, ok := p.(BatchProvider); ok {
			embs, err = bp.EmbedBatch(ctx, part)
		} else {
			embs, err = g.fanOut(ctx, p, part)
		}
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end-1, err)
		}
		if len(embs) != len(part) {
			return nil, fmt.Errorf("provider returned %d embeddings for %d texts", len(embs), len(part))
		}

		for _, e := range embs {
			v, err := g.finish(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		g.logger.Debug("embedded batch", "from", start, "to", end-1, "model", p.ModelName())
	}
	return out, nil
}

// fanOut embeds texts one at a time on the worker pool.
func (g *Generator) fanOut(ctx context.Context, p Provider, texts []string) ([]Embedding, error) {
	out := make([]Embedding, len(texts))
	errs := make([]error, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		if err := g.pool.Submit(func() {
			defer wg.Done()
			out[i], errs[i] = p.Embed(ctx, text)
		}); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *Generator) finish(e Embedding) ([]float32, error) {
	if want := g.model.Dimensions(); e.Dimensions() != want {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", paper.ErrDimensionMismatch, e.Dimensions(), want)
	}
	return Normalize(e.Vector), nil
}
