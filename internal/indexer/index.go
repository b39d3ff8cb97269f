package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matsen/paperdex/internal/paper"
)

// ChunkStatus is the outcome of indexing one chunk.
type ChunkStatus string

const (
	StatusIndexed   ChunkStatus = "indexed"
	StatusUnchanged ChunkStatus = "unchanged"
	StatusFailed    ChunkStatus = "failed"
)

// ChunkResult reports what happened to one chunk of a batch.
type ChunkResult struct {
	ChunkID int64                   `json:"chunk_id"`
	Status  ChunkStatus             `json:"status"`
	Mapping *paper.EmbeddingMapping `json:"mapping,omitempty"`
	Err     error                   `json:"-"`
	Error   string                  `json:"error,omitempty"`
}

func failed(chunkID int64, err error) ChunkResult {
	return ChunkResult{ChunkID: chunkID, Status: StatusFailed, Err: err, Error: err.Error()}
}

// IndexChunk embeds a stored chunk and records its index position.
//
// Indexing is idempotent: if the chunk already has a mapping to a live
// position made with the current model for the same text, that mapping is
// returned and nothing changes. A stale mapping is replaced and its old
// position tombstoned. Blank text fails with paper.ErrInvalidInput and
// leaves the index untouched.
func (c *Coordinator) IndexChunk(ctx context.Context, chunk paper.Chunk) (paper.EmbeddingMapping, error) {
	if paper.IsBlank(chunk.Text) {
		return paper.EmbeddingMapping{}, fmt.Errorf("%w: chunk %d has no text", paper.ErrInvalidInput, chunk.ID)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	stored, existing, err := c.prepare(ctx, chunk.ID)
	if err != nil {
		return paper.EmbeddingMapping{}, err
	}
	if existing != nil && c.isCurrent(existing, stored) {
		return *existing, nil
	}

	vec, err := c.embedder.Embed(ctx, stored.Text)
	if err != nil {
		return paper.EmbeddingMapping{}, fmt.Errorf("embedding chunk %d: %w", stored.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.insertAndRecord(ctx, stored, existing, vec)
	if err != nil {
		return paper.EmbeddingMapping{}, err
	}
	c.autoSaveLocked()
	return m, nil
}

// IndexBatch indexes several chunks with one embedding call. Each chunk gets
// the same guarantees as IndexChunk and its own status; a failing chunk does
// not stop the others. The returned error is reserved for failures that make
// the whole batch meaningless, such as a dimension mismatch.
func (c *Coordinator) IndexBatch(ctx context.Context, chunks []paper.Chunk) ([]ChunkResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	results := make([]ChunkResult, len(chunks))

	type pending struct {
		slot     int
		chunk    *paper.Chunk
		existing *paper.EmbeddingMapping
	}
	var todo []pending

	// A chunk queued more than once is inserted once; later slots copy the
	// first queued slot's result.
	queued := make(map[int64]int, len(chunks))
	var repeats [][2]int

	for i, ch := range chunks {
		if paper.IsBlank(ch.Text) {
			results[i] = failed(ch.ID, fmt.Errorf("%w: chunk %d has no text", paper.ErrInvalidInput, ch.ID))
			continue
		}
		stored, existing, err := c.prepare(ctx, ch.ID)
		if err != nil {
			results[i] = failed(ch.ID, err)
			continue
		}
		if existing != nil && c.isCurrent(existing, stored) {
			results[i] = ChunkResult{ChunkID: ch.ID, Status: StatusUnchanged, Mapping: existing}
			continue
		}
		if j, ok := queued[stored.ID]; ok {
			repeats = append(repeats, [2]int{i, j})
			continue
		}
		queued[stored.ID] = i
		todo = append(todo, pending{slot: i, chunk: stored, existing: existing})
	}

	if len(todo) == 0 {
		return fillRepeats(results, repeats), nil
	}

	texts := make([]string, len(todo))
	for i, p := range todo {
		texts[i] = p.chunk.Text
	}

	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, paper.ErrDimensionMismatch) {
			return nil, err
		}
		c.logger.Warn("batch embedding failed, embedding chunks one by one", "chunks", len(todo), "error", err)
		vecs = make([][]float32, len(todo))
		for i, p := range todo {
			v, err := c.embedder.Embed(ctx, p.chunk.Text)
			if errors.Is(err, paper.ErrDimensionMismatch) {
				return nil, err
			}
			if err != nil {
				results[p.slot] = failed(p.chunk.ID, fmt.Errorf("embedding chunk %d: %w", p.chunk.ID, err))
				continue
			}
			vecs[i] = v
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, p := range todo {
		if vecs[i] == nil {
			continue
		}
		m, err := c.insertAndRecord(ctx, p.chunk, p.existing, vecs[i])
		if err != nil {
			if errors.Is(err, paper.ErrDimensionMismatch) {
				return nil, err
			}
			results[p.slot] = failed(p.chunk.ID, err)
			continue
		}
		results[p.slot] = ChunkResult{ChunkID: p.chunk.ID, Status: StatusIndexed, Mapping: &m}
	}

	c.autoSaveLocked()
	return fillRepeats(results, repeats), nil
}

func fillRepeats(results []ChunkResult, repeats [][2]int) []ChunkResult {
	for _, r := range repeats {
		results[r[0]] = results[r[1]]
	}
	return results
}

// prepare loads the stored chunk and its current mapping, if any.
func (c *Coordinator) prepare(ctx context.Context, chunkID int64) (*paper.Chunk, *paper.EmbeddingMapping, error) {
	stored, err := c.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, nil, err
	}
	existing, err := c.store.MappingByChunk(ctx, chunkID)
	if err != nil {
		if !errors.Is(err, paper.ErrNotFound) {
			return nil, nil, err
		}
		existing = nil
	}
	return stored, existing, nil
}

// isCurrent reports whether m still describes chunk in the current index.
func (c *Coordinator) isCurrent(m *paper.EmbeddingMapping, chunk *paper.Chunk) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return m.ModelName == c.embedder.ModelName() &&
		m.TextHash == paper.HashText(chunk.Text) &&
		c.idx.IsLive(m.Position)
}

// insertAndRecord appends vec to the index and records the mapping. If the
// mapping cannot be recorded the new position is tombstoned and an error
// matching paper.ErrStorageFailure is returned. Callers hold c.mu.
func (c *Coordinator) insertAndRecord(ctx context.Context, chunk *paper.Chunk, existing *paper.EmbeddingMapping, vec []float32) (paper.EmbeddingMapping, error) {
	pos, err := c.idx.Insert(vec)
	if err != nil {
		return paper.EmbeddingMapping{}, fmt.Errorf("inserting chunk %d: %w", chunk.ID, err)
	}

	m := paper.EmbeddingMapping{
		ChunkID:   chunk.ID,
		Position:  pos,
		ModelName: c.embedder.ModelName(),
		TextHash:  paper.HashText(chunk.Text),
	}
	if err := c.persist(ctx, &m); err != nil {
		if delErr := c.idx.MarkDeleted(pos); delErr != nil {
			c.logger.Error("rolling back index insert failed", "position", pos, "error", delErr)
		}
		c.logger.Warn("rolled back index insert", "chunk_id", chunk.ID, "position", pos, "error", err)
		if !errors.Is(err, paper.ErrStorageFailure) {
			err = fmt.Errorf("%w: %w", paper.ErrStorageFailure, err)
		}
		return paper.EmbeddingMapping{}, fmt.Errorf("recording mapping for chunk %d: %w", chunk.ID, err)
	}

	if existing != nil && existing.Position != pos && c.idx.IsLive(existing.Position) {
		if err := c.idx.MarkDeleted(existing.Position); err != nil {
			return paper.EmbeddingMapping{}, err
		}
		c.logger.Debug("replaced stale vector", "chunk_id", chunk.ID, "old", existing.Position, "new", pos)
	}
	return m, nil
}

// persist writes a mapping, retrying with a linearly growing delay.
func (c *Coordinator) persist(ctx context.Context, m *paper.EmbeddingMapping) error {
	var err error
	for attempt := 1; attempt <= c.persistAttempts; attempt++ {
		if err = c.store.SaveMapping(ctx, m); err == nil {
			return nil
		}
		if attempt == c.persistAttempts {
			break
		}
		c.logger.Warn("recording mapping failed, retrying",
			"chunk_id", m.ChunkID, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt) * c.retryDelay):
		}
	}
	return err
}
