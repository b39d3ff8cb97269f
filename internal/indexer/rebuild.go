package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/matsen/paperdex/internal/paper"
	"github.com/matsen/paperdex/internal/semantic"
	"github.com/matsen/paperdex/internal/storage"
)

// RebuildStats contains statistics from an index rebuild.
type RebuildStats struct {
	ChunksIndexed  int           `json:"chunks_indexed"`
	Generation     string        `json:"generation"`
	ModelName      string        `json:"model_name"`
	Dimensions     int           `json:"dimensions"`
	Duration       time.Duration `json:"duration"`
	IndexSizeBytes int64         `json:"index_size_bytes,omitempty"`
}

// RebuildIndex re-embeds every chunk in the store into a fresh index with a
// new generation. The new index is built aside; queries keep using the old
// one until the mappings have been replaced in a single store transaction and
// the new index is swapped in. If anything fails before the swap the old
// index and mappings stay as they were.
func (c *Coordinator) RebuildIndex(ctx context.Context) (*RebuildStats, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	start := time.Now()

	chunks, err := c.store.ListChunks(ctx)
	if err != nil {
		return nil, err
	}

	next := semantic.New(c.embedder.ModelName(), c.embedder.Dimensions())
	mappings := make([]paper.EmbeddingMapping, 0, len(chunks))

	total := len(chunks)
	for from := 0; from < total; from += c.rebuildBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		to := min(from+c.rebuildBatchSize, total)
		batch := chunks[from:to]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vecs, err := c.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", from, to-1, err)
		}

		for i, ch := range batch {
			pos, err := next.Insert(vecs[i])
			if err != nil {
				return nil, fmt.Errorf("inserting chunk %d: %w", ch.ID, err)
			}
			mappings = append(mappings, paper.EmbeddingMapping{
				ChunkID:   ch.ID,
				Position:  pos,
				ModelName: next.ModelName(),
				TextHash:  paper.HashText(ch.Text),
			})
		}

		if c.progress != nil {
			c.progress(to, total)
		}
	}

	state := storage.IndexState{
		Generation: next.Generation(),
		ModelName:  next.ModelName(),
		Dimensions: next.Dimensions(),
	}

	c.mu.Lock()
	if err := c.store.ReplaceMappings(ctx, state, mappings); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("replacing mappings: %w", err)
	}
	c.idx = next
	err = c.saveLocked()
	c.mu.Unlock()

	stats := &RebuildStats{
		ChunksIndexed: len(mappings),
		Generation:    next.Generation(),
		ModelName:     next.ModelName(),
		Dimensions:    next.Dimensions(),
		Duration:      time.Since(start),
	}
	if err != nil {
		// The store already points at the new generation, so the next Open
		// sees a mismatch and rebuilds again.
		return stats, err
	}
	if c.path != "" {
		if size, err := semantic.FileSize(c.path); err == nil {
			stats.IndexSizeBytes = size
		}
	}

	c.logger.Info("rebuilt vector index", "chunks", stats.ChunksIndexed, "generation", stats.Generation, "duration", stats.Duration)
	return stats, nil
}
