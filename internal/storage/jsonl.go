package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/matsen/paperdex/internal/paper"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading one JSONL
// record. Records carry a paper's full text, so lines can be long.
const MaxJSONLLineCapacity = 64 * 1024 * 1024

// Record is one paper with its chunks and summaries: the unit of a JSONL
// export. Database IDs are not portable, so chunk summaries refer to their
// chunk by ordinal.
type Record struct {
	Paper     paper.Paper     `json:"paper"`
	Chunks    []RecordChunk   `json:"chunks"`
	Summaries []RecordSummary `json:"summaries,omitempty"`
}

// RecordChunk is an exported chunk.
type RecordChunk struct {
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
	Overlap int    `json:"overlap"`
}

// RecordSummary is an exported summary. ChunkOrdinal is set for chunk
// summaries and nil for paper summaries.
type RecordSummary struct {
	Kind         paper.SummaryKind `json:"kind"`
	Text         string            `json:"text"`
	ChunkOrdinal *int              `json:"chunk_ordinal,omitempty"`
}

// ExportRecords returns every paper as a Record, oldest first.
func (d *DB) ExportRecords(ctx context.Context) ([]Record, error) {
	papers, err := d.ListPapers(ctx, 0)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(papers))
	for i := len(papers) - 1; i >= 0; i-- {
		p := papers[i]
		rec := Record{Paper: p, Chunks: []RecordChunk{}}
		rec.Paper.ID = 0

		chunks, err := d.ListChunksForPaper(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			rec.Chunks = append(rec.Chunks, RecordChunk{Ordinal: c.Ordinal, Text: c.Text, Overlap: c.Overlap})

			sums, err := d.ListSummaries(ctx, paper.OwnerChunk, c.ID)
			if err != nil {
				return nil, err
			}
			for _, s := range sums {
				ordinal := c.Ordinal
				rec.Summaries = append(rec.Summaries, RecordSummary{Kind: s.Kind, Text: s.Text, ChunkOrdinal: &ordinal})
			}
		}

		sums, err := d.ListSummaries(ctx, paper.OwnerPaper, p.ID)
		if err != nil {
			return nil, err
		}
		for _, s := range sums {
			rec.Summaries = append(rec.Summaries, RecordSummary{Kind: s.Kind, Text: s.Text})
		}

		records = append(records, rec)
	}
	return records, nil
}

// ImportRecord stores a record's paper, chunks and summaries. A paper whose
// text is already stored is left alone and reported with existed set.
func (d *DB) ImportRecord(ctx context.Context, rec Record) (id int64, existed bool, err error) {
	chunks := make([]paper.Chunk, len(rec.Chunks))
	for i, c := range rec.Chunks {
		if c.Ordinal != i {
			return 0, false, fmt.Errorf("%w: chunk ordinals must be contiguous from 0, got %d at %d", paper.ErrInvalidInput, c.Ordinal, i)
		}
		chunks[i] = paper.Chunk{Text: c.Text, Overlap: c.Overlap}
	}
	for _, s := range rec.Summaries {
		if o := s.ChunkOrdinal; o != nil && (*o < 0 || *o >= len(chunks)) {
			return 0, false, fmt.Errorf("%w: summary refers to chunk %d of %d", paper.ErrInvalidInput, *o, len(chunks))
		}
	}

	p := rec.Paper
	p.ID = 0
	id, existed, err = d.InsertPaper(ctx, &p)
	if err != nil || existed {
		return id, existed, err
	}

	if err := d.InsertChunks(ctx, id, chunks); err != nil {
		return id, false, err
	}

	for _, s := range rec.Summaries {
		sum := &paper.Summary{OwnerKind: paper.OwnerPaper, OwnerID: id, Kind: s.Kind, Text: s.Text}
		if s.ChunkOrdinal != nil {
			sum.OwnerKind, sum.OwnerID = paper.OwnerChunk, chunks[*s.ChunkOrdinal].ID
		}
		if err := d.SaveSummary(ctx, sum); err != nil {
			return id, false, err
		}
	}
	return id, false, nil
}

// ReadRecords reads all records from a JSONL file.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening export file: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue // Skip empty lines
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading export file: %w", err)
	}

	return records, nil
}

// WriteRecords writes records to a JSONL file, replacing existing content.
func WriteRecords(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}

	w := bufio.NewWriter(f)
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			f.Close()
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing export file: %w", err)
	}
	return f.Close()
}
