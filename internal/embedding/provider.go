package embedding

import "context"

// Provider generates embeddings from text.
type Provider interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) (Embedding, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}

// BatchProvider is implemented by providers with a native batch endpoint.
// Results are in input order.
type BatchProvider interface {
	Provider
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
}

// Checker is implemented by providers backed by a service that can be probed
// before first use.
type Checker interface {
	// IsAvailable reports an error if the backing service cannot be reached.
	IsAvailable(ctx context.Context) error

	// HasModel reports whether the configured model is installed.
	HasModel(ctx context.Context) (bool, error)
}
