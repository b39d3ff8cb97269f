// Package semantic provides an exact nearest-neighbour index over text
// embeddings.
//
// Distances are squared Euclidean between unit-length vectors, so
// d(a, b) = 2 - 2*cos(a, b): 0 for identical directions, 4 for opposite ones.
// Vectors are normalised on insert and on search.
package semantic

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matsen/paperdex/internal/embedding"
	"github.com/matsen/paperdex/internal/paper"
)

// Errors returned by index operations.
var (
	ErrIndexNotFound      = errors.New("vector index not found")
	ErrUnsupportedVersion = errors.New("unsupported index version")
	ErrCorruptIndex       = errors.New("corrupt vector index")
)

const (
	// IndexFileName is the name of the vector index file.
	IndexFileName = "vectors.gob"

	// CurrentIndexVersion is the format version for compatibility checking.
	// Increment this when making breaking changes to the index format.
	CurrentIndexVersion = 1
)

// Hit is one search result: an index position and its distance to the query.
type Hit struct {
	Position int     `json:"position"`
	Distance float32 `json:"distance"`
}

// Index is a flat vector index. Positions are assigned in insertion order
// starting at 0 and are never reused; deleting a vector leaves a tombstone.
// An Index is safe for concurrent use by one writer and many readers.
type Index struct {
	mu sync.RWMutex

	modelName  string
	dims       int
	generation string
	createdAt  time.Time

	vectors [][]float32
	deleted map[int]struct{}
}

// New creates an empty index for vectors of the given model and dimension.
// Each index gets a fresh generation ID.
func New(modelName string, dims int) *Index {
	return &Index{
		modelName:  modelName,
		dims:       dims,
		generation: uuid.NewString(),
		createdAt:  time.Now().UTC(),
		deleted:    make(map[int]struct{}),
	}
}

// ModelName returns the embedding model the index was built with.
func (idx *Index) ModelName() string { return idx.modelName }

// Dimensions returns the vector length the index accepts.
func (idx *Index) Dimensions() int { return idx.dims }

// Generation returns the ID that ties this index to its stored mappings.
func (idx *Index) Generation() string { return idx.generation }

// CreatedAt returns when the index was created.
func (idx *Index) CreatedAt() time.Time { return idx.createdAt }

// Insert appends a vector and returns its position.
func (idx *Index) Insert(vec []float32) (int, error) {
	if len(vec) != idx.dims {
		return 0, fmt.Errorf("%w: got %d dimensions, want %d", paper.ErrDimensionMismatch, len(vec), idx.dims)
	}
	v := embedding.Normalize(vec)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors = append(idx.vectors, v)
	return len(idx.vectors) - 1, nil
}

// MarkDeleted tombstones a position so it is never returned by Search.
// Marking an already deleted position is a no-op.
func (idx *Index) MarkDeleted(pos int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if pos < 0 || pos >= len(idx.vectors) {
		return fmt.Errorf("%w: position %d out of range [0, %d)", paper.ErrInvalidArgument, pos, len(idx.vectors))
	}
	idx.deleted[pos] = struct{}{}
	return nil
}

// IsLive reports whether pos holds a vector that has not been deleted.
func (idx *Index) IsLive(pos int) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if pos < 0 || pos >= len(idx.vectors) {
		return false
	}
	_, gone := idx.deleted[pos]
	return !gone
}

// Size returns the number of inserted vectors, deleted ones included.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Live returns the number of vectors that have not been deleted.
func (idx *Index) Live() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors) - len(idx.deleted)
}

// LivePositions returns every non-deleted position in ascending order.
func (idx *Index) LivePositions() []int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]int, 0, len(idx.vectors)-len(idx.deleted))
	for pos := range idx.vectors {
		if _, gone := idx.deleted[pos]; !gone {
			out = append(out, pos)
		}
	}
	return out
}
