package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/matsen/paperdex/internal/paper"
)

// Result is one semantic search hit resolved to its chunk and paper.
type Result struct {
	Chunk    paper.Chunk `json:"chunk"`
	Paper    paper.Paper `json:"paper"`
	Distance float32     `json:"distance"`
}

// Query returns the chunks nearest to text, nearest first.
//
// Positions that no longer resolve to a mapping, chunk or paper are orphans:
// they are skipped and logged, so fewer than k results may come back. Any
// other store error aborts the query without partial results.
func (c *Coordinator) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", paper.ErrInvalidArgument, k)
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	hits, err := c.idx.Search(vec, k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	papers := make(map[int64]*paper.Paper)
	for _, hit := range hits {
		r, err := c.resolve(ctx, hit.Position, papers)
		if errors.Is(err, paper.ErrOrphanedVector) {
			c.orphans.Add(1)
			c.logger.Warn("skipping orphaned vector", "position", hit.Position, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		r.Distance = hit.Distance
		results = append(results, r)
	}
	return results, nil
}

// resolve maps an index position to its chunk and paper. Missing records
// yield an error matching paper.ErrOrphanedVector.
func (c *Coordinator) resolve(ctx context.Context, pos int, papers map[int64]*paper.Paper) (Result, error) {
	orphan := func(err error) (Result, error) {
		if errors.Is(err, paper.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: position %d: %w", paper.ErrOrphanedVector, pos, err)
		}
		return Result{}, err
	}

	m, err := c.store.MappingByPosition(ctx, pos)
	if err != nil {
		return orphan(err)
	}
	ch, err := c.store.GetChunk(ctx, m.ChunkID)
	if err != nil {
		return orphan(err)
	}

	p, ok := papers[ch.PaperID]
	if !ok {
		if p, err = c.store.GetPaper(ctx, ch.PaperID); err != nil {
			return orphan(err)
		}
		papers[ch.PaperID] = p
	}
	return Result{Chunk: *ch, Paper: *p}, nil
}
