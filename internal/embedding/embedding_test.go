package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedding_Dimensions(t *testing.T) {
	tests := []struct {
		name     string
		vector   []float32
		expected int
	}{
		{"384 dimensions", make([]float32, 384), 384},
		{"empty vector", []float32{}, 0},
		{"small vector", []float32{1.0, 2.0, 3.0}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Embedding{Vector: tt.vector}.Dimensions())
		})
	}
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalize(t *testing.T) {
	in := []float32{3, 4}
	out := Normalize(in)
	assert.InDelta(t, 0.6, out[0], 1e-6)
	assert.InDelta(t, 0.8, out[1], 1e-6)
	assert.Equal(t, []float32{3, 4}, in, "input must not be modified")

	zero := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestHashProvider(t *testing.T) {
	p := NewHashProvider(64)
	ctx := context.Background()

	a1, err := p.Embed(ctx, "Alpha research gap")
	require.NoError(t, err)
	a2, err := p.Embed(ctx, "alpha   research, gap")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "beta methodology")
	require.NoError(t, err)

	assert.Len(t, a1.Vector, 64)
	assert.Equal(t, a1.Vector, a2.Vector, "case and punctuation are ignored")
	assert.NotEqual(t, a1.Vector, b.Vector)

	punct, err := p.Embed(ctx, "!!!")
	require.NoError(t, err)
	assert.NotZero(t, norm(punct.Vector), "text without words still hashes")

	assert.Equal(t, DefaultDimensions, NewHashProvider(0).Dimensions())
	assert.Equal(t, HashModelName, p.ModelName())
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider("")
	require.Error(t, err)
}

func TestOpenAIProvider_EmbedBatch(t *testing.T) {
	var gotDims int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotDims = req.Dimensions

		// Reply out of order to check reassembly by index.
		resp := openai.EmbeddingResponse{Object: "list", Model: openai.EmbeddingModel(req.Model)}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, openai.Embedding{
				Object:    "embedding",
				Index:     i,
				Embedding: []float32{float32(len(req.Input[i])), 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("test-key", WithOpenAIBaseURL(srv.URL), WithOpenAIDimensions(2))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Dimensions())
	assert.Equal(t, DefaultOpenAIModel, p.ModelName())

	embs, err := p.EmbedBatch(context.Background(), []string{"a", "abc"})
	require.NoError(t, err)
	require.Len(t, embs, 2)
	assert.Equal(t, float32(1), embs[0].Vector[0])
	assert.Equal(t, float32(3), embs[1].Vector[0])
	assert.Equal(t, 2, gotDims)

	single, err := p.Embed(context.Background(), "ab")
	require.NoError(t, err)
	assert.Equal(t, float32(2), single.Vector[0])
}
