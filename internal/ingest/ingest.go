// Package ingest turns PDF files into stored, chunked and indexed papers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/matsen/paperdex/internal/chunk"
	"github.com/matsen/paperdex/internal/indexer"
	"github.com/matsen/paperdex/internal/paper"
	"github.com/matsen/paperdex/internal/pdf"
)

// ExtractFunc reads a document and returns its metadata and full text.
type ExtractFunc func(path string) (pdf.Metadata, string, error)

// Store is the part of the relational store the pipeline writes to.
type Store interface {
	InsertPaper(ctx context.Context, p *paper.Paper) (int64, bool, error)
	InsertChunks(ctx context.Context, paperID int64, chunks []paper.Chunk) error
	ListChunksForPaper(ctx context.Context, paperID int64) ([]paper.Chunk, error)
}

// Indexer embeds stored chunks. *indexer.Coordinator implements it.
type Indexer interface {
	IndexBatch(ctx context.Context, chunks []paper.Chunk) ([]indexer.ChunkResult, error)
}

// Status is the outcome of adding one file.
type Status string

const (
	StatusAdded     Status = "added"
	StatusDuplicate Status = "duplicate" // same text already stored
	StatusPartial   Status = "partial"   // stored, but some chunks failed to index
	StatusFailed    Status = "failed"
)

// Result reports what happened to one file.
type Result struct {
	Path      string                `json:"path"`
	Status    Status                `json:"status"`
	PaperID   int64                 `json:"paper_id,omitempty"`
	Title     string                `json:"title,omitempty"`
	Chunks    int                   `json:"chunks"`
	Indexed   int                   `json:"indexed"`
	Unchanged int                   `json:"unchanged"`
	Failed    int                   `json:"failed"`
	Error     string                `json:"error,omitempty"`
	Details   []indexer.ChunkResult `json:"details,omitempty"`
}

// Pipeline runs extract, store, split and index for each file.
type Pipeline struct {
	store   Store
	index   Indexer
	extract ExtractFunc

	chunkSize  int
	overlap    int
	uploadsDir string
	workers    int
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithChunking sets the chunk size and overlap in words.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		if size <= 0 || overlap < 0 || overlap >= size {
			return fmt.Errorf("%w: chunk size %d, overlap %d", paper.ErrInvalidArgument, size, overlap)
		}
		p.chunkSize, p.overlap = size, overlap
		return nil
	}
}

// WithUploadsDir copies every added file into dir and records the copy as
// the paper's source file.
func WithUploadsDir(dir string) Option {
	return func(p *Pipeline) error {
		p.uploadsDir = dir
		return nil
	}
}

// WithExtractor replaces the default extractor, which dispatches on file
// extension between PDF and plain text.
func WithExtractor(fn ExtractFunc) Option {
	return func(p *Pipeline) error {
		if fn == nil {
			return errors.New("extractor cannot be nil")
		}
		p.extract = fn
		return nil
	}
}

// WithWorkers sets how many files are extracted concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("%w: workers must be positive, got %d", paper.ErrInvalidArgument, n)
		}
		p.workers = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// New creates a pipeline writing to store and indexing through index.
func New(store Store, index Indexer, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		store:     store,
		index:     index,
		extract:   Extract,
		chunkSize: chunk.DefaultSize,
		overlap:   chunk.DefaultOverlap,
		workers:   4,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Extract reads .txt and .md files as plain text and everything else as PDF.
func Extract(path string) (pdf.Metadata, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return pdf.ReadText(path)
	default:
		return pdf.Extract(path)
	}
}

type extracted struct {
	meta pdf.Metadata
	text string
	err  error
}

// AddAll adds files in order. Extraction runs concurrently; storing and
// indexing run one file at a time. A failing file never stops the rest.
func (p *Pipeline) AddAll(ctx context.Context, paths []string) ([]Result, error) {
	docs := make([]extracted, len(paths))

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return nil, fmt.Errorf("creating extraction pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			meta, text, err := p.extract(path)
			docs[i] = extracted{meta: meta, text: text, err: err}
		}); err != nil {
			wg.Done()
			docs[i] = extracted{err: fmt.Errorf("submitting extraction: %w", err)}
		}
	}
	wg.Wait()

	results := make([]Result, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return results[:i], err
		}
		d := docs[i]
		if d.err != nil {
			results[i] = failedResult(path, d.err)
			p.logger.Warn("extracting paper failed", "path", path, "error", d.err)
			continue
		}
		results[i] = p.ingest(ctx, path, d.meta, d.text)
	}
	return results, nil
}

// Add extracts, stores and indexes a single file.
func (p *Pipeline) Add(ctx context.Context, path string) Result {
	meta, text, err := p.extract(path)
	if err != nil {
		p.logger.Warn("extracting paper failed", "path", path, "error", err)
		return failedResult(path, err)
	}
	return p.ingest(ctx, path, meta, text)
}

func failedResult(path string, err error) Result {
	return Result{Path: path, Status: StatusFailed, Error: err.Error()}
}

func (p *Pipeline) ingest(ctx context.Context, path string, meta pdf.Metadata, text string) Result {
	res := Result{Path: path, Title: meta.Title}

	if paper.IsBlank(text) {
		return failedResult(path, fmt.Errorf("%w: no text could be extracted", paper.ErrInvalidInput))
	}

	source := path
	if p.uploadsDir != "" {
		copied, err := p.keepCopy(path, paper.HashText(text))
		if err != nil {
			return failedResult(path, err)
		}
		source = copied
	}

	pp := &paper.Paper{
		SourceFile: source,
		Title:      meta.Title,
		Authors:    meta.Authors,
		Abstract:   meta.Abstract,
		DOI:        meta.DOI,
		FullText:   text,
	}
	id, existed, err := p.store.InsertPaper(ctx, pp)
	if err != nil {
		return failedResult(path, err)
	}
	res.PaperID = id

	var chunks []paper.Chunk
	if existed {
		res.Status = StatusDuplicate
		// Indexing is idempotent, so a duplicate only re-indexes chunks
		// that never made it into the index.
		chunks, err = p.store.ListChunksForPaper(ctx, id)
		if err != nil {
			return failedResult(path, err)
		}
	} else {
		res.Status = StatusAdded
	}
	if len(chunks) == 0 {
		if chunks, err = p.split(ctx, id, text); err != nil {
			return failedResult(path, err)
		}
	}
	res.Chunks = len(chunks)

	details, err := p.index.IndexBatch(ctx, chunks)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		p.logger.Warn("indexing paper failed", "paper_id", id, "error", err)
		return res
	}
	for _, d := range details {
		switch d.Status {
		case indexer.StatusIndexed:
			res.Indexed++
		case indexer.StatusUnchanged:
			res.Unchanged++
		case indexer.StatusFailed:
			res.Failed++
			res.Details = append(res.Details, d)
		}
	}
	if res.Failed > 0 {
		res.Status = StatusPartial
	}

	p.logger.Debug("added paper", "paper_id", id, "status", res.Status, "chunks", res.Chunks)
	return res
}

// split chunks text and stores the chunks under paperID.
func (p *Pipeline) split(ctx context.Context, paperID int64, text string) ([]paper.Chunk, error) {
	spans, err := chunk.Split(text, p.chunkSize, p.overlap)
	if err != nil {
		return nil, err
	}
	chunks := chunk.Chunks(spans)
	if err := p.store.InsertChunks(ctx, paperID, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// keepCopy copies src into the uploads directory under a content-derived
// name and returns the new path. An existing copy is reused.
func (p *Pipeline) keepCopy(src, hash string) (string, error) {
	if err := os.MkdirAll(p.uploadsDir, 0755); err != nil {
		return "", fmt.Errorf("creating uploads directory: %w", err)
	}
	dst := filepath.Join(p.uploadsDir, hash[:16]+strings.ToLower(filepath.Ext(src)))
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(p.uploadsDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return "", fmt.Errorf("copying %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("copying %s: %w", src, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}
	return dst, nil
}
