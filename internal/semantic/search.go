package semantic

import (
	"fmt"
	"sort"

	"github.com/matsen/paperdex/internal/embedding"
	"github.com/matsen/paperdex/internal/paper"
)

// SquaredDistance returns the squared Euclidean distance between a and b.
// Both must have the same length.
func SquaredDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Search returns up to k live positions nearest to query, nearest first.
// Equal distances are ordered by position. An empty index yields an empty
// result.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", paper.ErrInvalidArgument, k)
	}
	if len(query) != idx.dims {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", paper.ErrDimensionMismatch, len(query), idx.dims)
	}
	q := embedding.Normalize(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]Hit, 0, len(idx.vectors))
	for pos, v := range idx.vectors {
		if _, gone := idx.deleted[pos]; gone {
			continue
		}
		hits = append(hits, Hit{Position: pos, Distance: SquaredDistance(q, v)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Position < hits[j].Position
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
