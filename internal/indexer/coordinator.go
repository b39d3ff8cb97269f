// Package indexer keeps the vector index and the relational store's
// embedding mappings consistent with each other.
//
// The two stores share no transaction. Writes follow insert-then-record:
// the vector is appended to the index first, then its mapping is written to
// the store. If the mapping cannot be written after retries, the inserted
// position is tombstoned so it can never surface in a query. Anything the
// protocol cannot repair is fixed by RebuildIndex, which rebuilds the index
// from the store; the store is the source of truth.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matsen/paperdex/internal/paper"
	"github.com/matsen/paperdex/internal/semantic"
	"github.com/matsen/paperdex/internal/storage"
)

const (
	// DefaultPersistAttempts is how many times a mapping write is tried
	// before the inserted vector is rolled back.
	DefaultPersistAttempts = 3

	// DefaultRetryDelay is the base delay between mapping write attempts.
	// Attempt n waits n times this long.
	DefaultRetryDelay = 50 * time.Millisecond

	// DefaultRebuildBatchSize is the number of chunks embedded per batch
	// during a rebuild.
	DefaultRebuildBatchSize = 64
)

// Store is the part of the relational store the coordinator needs.
// *storage.DB implements it.
type Store interface {
	GetChunk(ctx context.Context, id int64) (*paper.Chunk, error)
	ListChunks(ctx context.Context) ([]paper.Chunk, error)
	CountChunks(ctx context.Context) (int, error)
	GetPaper(ctx context.Context, id int64) (*paper.Paper, error)
	DeletePaper(ctx context.Context, id int64) ([]int, error)

	SaveMapping(ctx context.Context, m *paper.EmbeddingMapping) error
	MappingByChunk(ctx context.Context, chunkID int64) (*paper.EmbeddingMapping, error)
	MappingByPosition(ctx context.Context, position int) (*paper.EmbeddingMapping, error)
	ListMappings(ctx context.Context) ([]paper.EmbeddingMapping, error)
	ListUnmappedChunkIDs(ctx context.Context) ([]int64, error)
	ReplaceMappings(ctx context.Context, state storage.IndexState, mappings []paper.EmbeddingMapping) error
	GetIndexState(ctx context.Context) (*storage.IndexState, error)
}

var _ Store = (*storage.DB)(nil)

// Embedder produces normalised vectors of a fixed dimension.
// *embedding.Generator implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimensions() int
}

// Coordinator bridges vector index positions and chunk identities.
//
// Writers (indexing, rebuild, deletion) are serialised. Index insertion and
// mapping writes happen under an exclusive lock; queries take a shared lock
// and therefore only ever see committed state.
type Coordinator struct {
	store    Store
	embedder Embedder
	path     string

	logger           *slog.Logger
	persistAttempts  int
	retryDelay       time.Duration
	autoSave         bool
	rebuildBatchSize int
	progress         func(done, total int)

	writeMu sync.Mutex
	mu      sync.RWMutex
	idx     *semantic.Index

	orphans atomic.Int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// WithPersistAttempts sets how many times a mapping write is tried.
func WithPersistAttempts(n int) Option {
	return func(c *Coordinator) {
		if n < 1 {
			n = 1
		}
		c.persistAttempts = n
	}
}

// WithRetryDelay sets the base delay between mapping write attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		c.retryDelay = d
	}
}

// WithAutoSave writes the index file after every mutation.
func WithAutoSave(enabled bool) Option {
	return func(c *Coordinator) {
		c.autoSave = enabled
	}
}

// WithRebuildBatchSize sets how many chunks are embedded per rebuild batch.
func WithRebuildBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n < 1 {
			n = 1
		}
		c.rebuildBatchSize = n
	}
}

// WithProgress calls fn after each rebuild batch with the number of chunks
// embedded so far.
func WithProgress(fn func(done, total int)) Option {
	return func(c *Coordinator) {
		c.progress = fn
	}
}

// Open loads the index file at path and checks it against the store. If the
// file is missing or unreadable, belongs to a different index generation, was
// built with a different model, or disagrees with the stored mappings, the
// index is rebuilt from the store instead of failing. An empty path keeps
// the index in memory only.
func Open(ctx context.Context, store Store, embedder Embedder, path string, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		store:            store,
		embedder:         embedder,
		path:             path,
		logger:           slog.Default(),
		persistAttempts:  DefaultPersistAttempts,
		retryDelay:       DefaultRetryDelay,
		rebuildBatchSize: DefaultRebuildBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	reason, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		level := slog.LevelWarn
		if path == "" {
			level = slog.LevelDebug
		}
		c.logger.Log(ctx, level, "rebuilding vector index", "reason", reason, "path", path)
		if _, err := c.RebuildIndex(ctx); err != nil {
			return nil, fmt.Errorf("rebuilding index (%s): %w", reason, err)
		}
	}
	return c, nil
}

// load reads the index file into c.idx. It returns a non-empty reason when
// the index must be rebuilt instead.
func (c *Coordinator) load(ctx context.Context) (string, error) {
	if c.path == "" {
		return "no index file configured", nil
	}

	idx, err := semantic.Load(c.path)
	switch {
	case errors.Is(err, semantic.ErrIndexNotFound):
		return "index file missing", nil
	case err != nil:
		return fmt.Sprintf("index file unreadable: %v", err), nil
	}

	state, err := c.store.GetIndexState(ctx)
	if errors.Is(err, paper.ErrNotFound) {
		return "store has no index state", nil
	}
	if err != nil {
		return "", err
	}

	if state.Generation != idx.Generation() {
		return fmt.Sprintf("generation mismatch: file %s, store %s", idx.Generation(), state.Generation), nil
	}
	if idx.ModelName() != c.embedder.ModelName() || idx.Dimensions() != c.embedder.Dimensions() {
		return fmt.Sprintf("model changed: index %s/%d, embedder %s/%d",
			idx.ModelName(), idx.Dimensions(), c.embedder.ModelName(), c.embedder.Dimensions()), nil
	}

	mappings, err := c.store.ListMappings(ctx)
	if err != nil {
		return "", err
	}
	mapped := make(map[int]struct{}, len(mappings))
	for _, m := range mappings {
		if !idx.IsLive(m.Position) {
			return fmt.Sprintf("mapping for chunk %d points at dead position %d", m.ChunkID, m.Position), nil
		}
		mapped[m.Position] = struct{}{}
	}

	// Live positions nobody maps to were inserted but never recorded.
	var orphaned []int
	for _, pos := range idx.LivePositions() {
		if _, ok := mapped[pos]; !ok {
			orphaned = append(orphaned, pos)
		}
	}
	if len(orphaned) > 0 {
		for _, pos := range orphaned {
			if err := idx.MarkDeleted(pos); err != nil {
				return "", err
			}
		}
		c.logger.Warn("tombstoned unmapped index positions", "count", len(orphaned))
		if err := idx.Save(c.path); err != nil {
			return "", fmt.Errorf("%w: saving index: %w", paper.ErrStorageFailure, err)
		}
	}

	c.idx = idx
	return "", nil
}

// Save writes the index file. It is a no-op for an in-memory coordinator.
func (c *Coordinator) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveLocked()
}

func (c *Coordinator) saveLocked() error {
	if c.path == "" {
		return nil
	}
	if err := c.idx.Save(c.path); err != nil {
		return fmt.Errorf("%w: saving index: %w", paper.ErrStorageFailure, err)
	}
	return nil
}

// autoSaveLocked saves if auto-save is on. Failures are logged; the store
// stays authoritative and the next Open rebuilds a stale file.
func (c *Coordinator) autoSaveLocked() {
	if !c.autoSave {
		return
	}
	if err := c.saveLocked(); err != nil {
		c.logger.Warn("auto-saving index failed", "error", err)
	}
}

// Path returns the index file path, or "" if the index is memory only.
func (c *Coordinator) Path() string {
	return c.path
}

// Size returns the number of vectors in the index, deleted ones included.
func (c *Coordinator) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Size()
}

// Live returns the number of non-deleted vectors in the index.
func (c *Coordinator) Live() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Live()
}

// Generation returns the current index generation.
func (c *Coordinator) Generation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Generation()
}

// OrphanCount returns how many orphaned positions queries have skipped since
// the coordinator was opened.
func (c *Coordinator) OrphanCount() int64 {
	return c.orphans.Load()
}

// DeletePaper removes a paper with its chunks, summaries and mappings from
// the store, then tombstones the paper's vectors.
func (c *Coordinator) DeletePaper(ctx context.Context, id int64) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	positions, err := c.store.DeletePaper(ctx, id)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		if c.idx.IsLive(pos) {
			if err := c.idx.MarkDeleted(pos); err != nil {
				return err
			}
		}
	}
	c.logger.Debug("deleted paper", "paper_id", id, "vectors", len(positions))
	c.autoSaveLocked()
	return nil
}
