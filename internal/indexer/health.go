package indexer

import (
	"context"
	"errors"

	"github.com/matsen/paperdex/internal/paper"
)

// Health describes how well the index and the stored mappings agree.
type Health struct {
	Chunks   int `json:"chunks"`
	Mappings int `json:"mappings"`

	// Unmapped chunks have never been indexed.
	Unmapped int `json:"unmapped"`

	// Stale mappings were made with another model or point at a deleted
	// position.
	Stale int `json:"stale"`

	// Orphans are live positions that no mapping refers to.
	Orphans int `json:"orphans"`

	IndexSize          int    `json:"index_size"`
	IndexLive          int    `json:"index_live"`
	Generation         string `json:"generation"`
	StoredGeneration   string `json:"stored_generation"`
	ModelName          string `json:"model_name"`
	GenerationMismatch bool   `json:"generation_mismatch"`
}

// Healthy reports whether every chunk is mapped to a live position and
// nothing in the index is unreachable.
func (h *Health) Healthy() bool {
	return h.Unmapped == 0 && h.Stale == 0 && h.Orphans == 0 && !h.GenerationMismatch
}

// Check compares the index with the store.
func (c *Coordinator) Check(ctx context.Context) (*Health, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := &Health{
		IndexSize:  c.idx.Size(),
		IndexLive:  c.idx.Live(),
		Generation: c.idx.Generation(),
		ModelName:  c.embedder.ModelName(),
	}

	var err error
	if h.Chunks, err = c.store.CountChunks(ctx); err != nil {
		return nil, err
	}

	state, err := c.store.GetIndexState(ctx)
	switch {
	case errors.Is(err, paper.ErrNotFound):
		h.GenerationMismatch = true
	case err != nil:
		return nil, err
	default:
		h.StoredGeneration = state.Generation
		h.GenerationMismatch = state.Generation != h.Generation
	}

	mappings, err := c.store.ListMappings(ctx)
	if err != nil {
		return nil, err
	}
	h.Mappings = len(mappings)

	mapped := make(map[int]struct{}, len(mappings))
	for _, m := range mappings {
		mapped[m.Position] = struct{}{}
		if m.ModelName != h.ModelName || !c.idx.IsLive(m.Position) {
			h.Stale++
		}
	}
	for _, pos := range c.idx.LivePositions() {
		if _, ok := mapped[pos]; !ok {
			h.Orphans++
		}
	}

	unmapped, err := c.store.ListUnmappedChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	h.Unmapped = len(unmapped)

	return h, nil
}
