package semantic

import (
	"sync"
	"testing"

	"github.com/matsen/paperdex/internal/paper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"identical vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 0},
		{"orthogonal unit vectors", []float32{1, 0}, []float32{0, 1}, 2},
		{"opposite unit vectors", []float32{1, 0}, []float32{-1, 0}, 4},
		{"empty vectors", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SquaredDistance(tt.a, tt.b), 1e-6)
		})
	}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx := New("test-model", 3)
	for _, v := range [][]float32{
		{1, 0, 0},     // 0
		{0.9, 0.1, 0}, // 1
		{0, 1, 0},     // 2
		{0, 0, 1},     // 3
		{-1, 0, 0},    // 4
	} {
		_, err := idx.Insert(v)
		require.NoError(t, err)
	}
	return idx
}

func positions(hits []Hit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Position
	}
	return out
}

func TestSearch(t *testing.T) {
	idx := newTestIndex(t)

	t.Run("ascending by distance", func(t *testing.T) {
		hits, err := idx.Search([]float32{1, 0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, hits, 5)
		assert.Equal(t, 0, hits[0].Position)
		assert.InDelta(t, 0, hits[0].Distance, 1e-6)
		assert.Equal(t, 1, hits[1].Position)
		assert.Equal(t, 4, hits[4].Position)
		assert.InDelta(t, 4, hits[4].Distance, 1e-5)
		for i := 1; i < len(hits); i++ {
			assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
		}
	})

	t.Run("ties ordered by position", func(t *testing.T) {
		hits, err := idx.Search([]float32{1, 0, 0}, 5)
		require.NoError(t, err)
		// Positions 2 and 3 are both orthogonal to the query.
		assert.Equal(t, []int{0, 1, 2, 3, 4}, positions(hits))
	})

	t.Run("query is normalised", func(t *testing.T) {
		hits, err := idx.Search([]float32{10, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	})

	t.Run("limits to k", func(t *testing.T) {
		hits, err := idx.Search([]float32{0, 1, 0}, 2)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
		assert.Equal(t, 2, hits[0].Position)
	})

	t.Run("k larger than size", func(t *testing.T) {
		hits, err := idx.Search([]float32{0, 1, 0}, 100)
		require.NoError(t, err)
		assert.Len(t, hits, 5)
	})

	t.Run("skips deleted", func(t *testing.T) {
		idx := newTestIndex(t)
		require.NoError(t, idx.MarkDeleted(0))
		hits, err := idx.Search([]float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3, 4}, positions(hits))
	})
}

func TestSearch_Errors(t *testing.T) {
	idx := newTestIndex(t)

	for _, k := range []int{0, -1} {
		_, err := idx.Search([]float32{1, 0, 0}, k)
		assert.ErrorIs(t, err, paper.ErrInvalidArgument, "k=%d", k)
	}

	_, err := idx.Search([]float32{1, 0}, 3)
	assert.ErrorIs(t, err, paper.ErrDimensionMismatch)
}

func TestSearch_EmptyIndex(t *testing.T) {
	hits, err := New("test-model", 3).Search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestConcurrentInsertAndSearch(t *testing.T) {
	idx := New("test-model", 2)
	_, err := idx.Insert([]float32{1, 0})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = idx.Insert([]float32{float32(i), 1})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			hits, err := idx.Search([]float32{1, 0}, 3)
			assert.NoError(t, err)
			assert.NotEmpty(t, hits)
		}
	}()
	wg.Wait()

	assert.Equal(t, 201, idx.Size())
}
