package embedding

import (
	"context"
	"fmt"
	"sync"
)

// Model is an explicitly owned handle to an embedding model. The backing
// provider is probed once on first use and released by Close. Callers pass a
// *Model to whatever needs embeddings instead of reaching for a global.
type Model struct {
	provider Provider

	mu      sync.Mutex
	tried   bool
	loadErr error
	closed  bool
}

// NewModel wraps a provider. Nothing is contacted until Load.
func NewModel(p Provider) *Model {
	return &Model{provider: p}
}

// Load readies the model and returns its provider. The provider is probed
// only on the first call; its outcome, success or error, is returned from
// then on. Load after Close returns ErrModelClosed.
func (m *Model) Load(ctx context.Context) (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrModelClosed
	}
	if !m.tried {
		m.tried = true
		m.loadErr = m.probe(ctx)
	}
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.provider, nil
}

func (m *Model) probe(ctx context.Context) error {
	c, ok := m.provider.(Checker)
	if !ok {
		return nil
	}
	if err := c.IsAvailable(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	has, err := c.HasModel(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if !has {
		return fmt.Errorf("%w: model %q is not installed", ErrModelUnavailable, m.provider.ModelName())
	}
	return nil
}

// Loaded reports whether Load has succeeded and Close has not been called.
func (m *Model) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tried && m.loadErr == nil && !m.closed
}

// Close releases the model. Closing twice is harmless.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ModelName returns the provider's model name.
func (m *Model) ModelName() string {
	return m.provider.ModelName()
}

// Dimensions returns the provider's vector size.
func (m *Model) Dimensions() int {
	return m.provider.Dimensions()
}
