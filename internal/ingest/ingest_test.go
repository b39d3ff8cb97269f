package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/paperdex/internal/embedding"
	"github.com/matsen/paperdex/internal/indexer"
	"github.com/matsen/paperdex/internal/paper"
	"github.com/matsen/paperdex/internal/pdf"
	"github.com/matsen/paperdex/internal/storage"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	db    *storage.DB
	coord *indexer.Coordinator
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "papers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gen, err := embedding.NewGenerator(embedding.NewModel(embedding.NewHashProvider(128)))
	require.NoError(t, err)
	t.Cleanup(gen.Release)

	coord, err := indexer.Open(context.Background(), db, gen, "", indexer.WithLogger(quietLogger))
	require.NoError(t, err)
	return fixture{db: db, coord: coord}
}

// fakeExtract serves canned documents keyed by path.
func fakeExtract(docs map[string]string) ExtractFunc {
	return func(path string) (pdf.Metadata, string, error) {
		text, ok := docs[path]
		if !ok {
			return pdf.Metadata{}, "", errors.New("unreadable pdf")
		}
		meta, full := pdf.Parse([]string{text})
		return meta, full, nil
	}
}

func newPipeline(t *testing.T, f fixture, docs map[string]string, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithExtractor(fakeExtract(docs)),
		WithChunking(8, 2),
		WithLogger(quietLogger),
	}, opts...)
	p, err := New(f.db, f.coord, opts...)
	require.NoError(t, err)
	return p
}

const transformerPaper = `Sequence Transduction With Attention
Abstract
We replace recurrence with attention over token sequences and reach state of the art translation quality.
References`

const proteinPaper = `Folding Proteins From Sequence Alone
Abstract
Predicting three dimensional protein structure from amino acid sequence using deep networks.
References`

func TestAddAll(t *testing.T) {
	f := setup(t)
	docs := map[string]string{"a.pdf": transformerPaper, "b.pdf": proteinPaper}
	p := newPipeline(t, f, docs)
	ctx := context.Background()

	results, err := p.AddAll(ctx, []string{"a.pdf", "missing.pdf", "b.pdf"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, StatusAdded, results[0].Status)
	assert.Equal(t, "Sequence Transduction With Attention", results[0].Title)
	assert.Equal(t, results[0].Chunks, results[0].Indexed)
	assert.Greater(t, results[0].Chunks, 1)

	assert.Equal(t, StatusFailed, results[1].Status)
	assert.Contains(t, results[1].Error, "unreadable")

	assert.Equal(t, StatusAdded, results[2].Status)

	stored, err := f.db.GetPaper(ctx, results[0].PaperID)
	require.NoError(t, err)
	assert.Contains(t, stored.Abstract, "replace recurrence")

	chunks, err := f.db.ListChunksForPaper(ctx, results[0].PaperID)
	require.NoError(t, err)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.LessOrEqual(t, len(strings.Fields(c.Text)), 8)
	}

	hits, err := f.coord.Query(ctx, "protein structure from amino acid sequence", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, results[2].PaperID, hits[0].Paper.ID)
}

func TestAdd_DuplicateIsIdempotent(t *testing.T) {
	f := setup(t)
	docs := map[string]string{"a.pdf": transformerPaper, "copy-of-a.pdf": transformerPaper}
	p := newPipeline(t, f, docs)
	ctx := context.Background()

	first := p.Add(ctx, "a.pdf")
	require.Equal(t, StatusAdded, first.Status)
	live := f.coord.Live()

	second := p.Add(ctx, "copy-of-a.pdf")
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, first.PaperID, second.PaperID)
	assert.Equal(t, first.Chunks, second.Unchanged)
	assert.Zero(t, second.Indexed)
	assert.Equal(t, live, f.coord.Live())

	n, err := f.db.CountPapers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAdd_BlankText(t *testing.T) {
	f := setup(t)
	p := newPipeline(t, f, map[string]string{"scan.pdf": "  \n\t "})

	res := p.Add(context.Background(), "scan.pdf")
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "no text")

	n, err := f.db.CountPapers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// failingIndexer fails every chunk of the batch.
type failingIndexer struct{}

func (failingIndexer) IndexBatch(_ context.Context, chunks []paper.Chunk) ([]indexer.ChunkResult, error) {
	out := make([]indexer.ChunkResult, len(chunks))
	for i, c := range chunks {
		out[i] = indexer.ChunkResult{ChunkID: c.ID, Status: indexer.StatusFailed, Error: "boom"}
	}
	return out, nil
}

func TestAdd_PartialWhenChunksFail(t *testing.T) {
	f := setup(t)
	p, err := New(f.db, failingIndexer{},
		WithExtractor(fakeExtract(map[string]string{"a.pdf": transformerPaper})),
		WithChunking(8, 2),
		WithLogger(quietLogger))
	require.NoError(t, err)

	res := p.Add(context.Background(), "a.pdf")
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, res.Chunks, res.Failed)
	assert.Len(t, res.Details, res.Chunks)
	assert.NotZero(t, res.PaperID)
}

func TestAdd_KeepsUploadCopy(t *testing.T) {
	f := setup(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "paper.txt")
	require.NoError(t, os.WriteFile(src, []byte(proteinPaper), 0644))
	uploads := filepath.Join(dir, "uploads")

	p, err := New(f.db, f.coord, WithUploadsDir(uploads), WithChunking(8, 2), WithLogger(quietLogger))
	require.NoError(t, err)

	res := p.Add(context.Background(), src)
	require.Equal(t, StatusAdded, res.Status, res.Error)

	stored, err := f.db.GetPaper(context.Background(), res.PaperID)
	require.NoError(t, err)
	assert.Equal(t, uploads, filepath.Dir(stored.SourceFile))
	assert.Equal(t, ".txt", filepath.Ext(stored.SourceFile))

	data, err := os.ReadFile(stored.SourceFile)
	require.NoError(t, err)
	assert.Equal(t, proteinPaper, string(data))

	entries, err := os.ReadDir(uploads)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestNew_InvalidOptions(t *testing.T) {
	f := setup(t)
	_, err := New(f.db, f.coord, WithChunking(10, 10))
	assert.ErrorIs(t, err, paper.ErrInvalidArgument)

	_, err = New(f.db, f.coord, WithWorkers(0))
	assert.ErrorIs(t, err, paper.ErrInvalidArgument)

	_, err = New(f.db, f.coord, WithExtractor(nil))
	assert.Error(t, err)
}

func TestAddAll_CancelledContext(t *testing.T) {
	f := setup(t)
	p := newPipeline(t, f, map[string]string{"a.pdf": transformerPaper})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.AddAll(ctx, []string{"a.pdf"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
