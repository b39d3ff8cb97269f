package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matsen/paperdex/internal/paper"
)

// selectPaperFields contains the standard field list for paper SELECT queries.
const selectPaperFields = `id, source_file, content_hash, title, authors_json,
	abstract, doi, full_text, created_at`

// InsertPaper stores a paper, deduplicating on the hash of its full text.
// If a paper with the same content already exists its ID is returned with
// existed set to true and nothing is written. On insert, p.ID, p.ContentHash
// and p.CreatedAt are filled in.
func (d *DB) InsertPaper(ctx context.Context, p *paper.Paper) (id int64, existed bool, err error) {
	if paper.IsBlank(p.FullText) {
		return 0, false, fmt.Errorf("%w: paper has no text", paper.ErrInvalidInput)
	}
	p.ContentHash = paper.HashText(p.FullText)

	err = d.withTx(ctx, "inserting paper", func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM papers WHERE content_hash = ?`, p.ContentHash).Scan(&existing)
		if err == nil {
			id, existed = existing, true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		authors := p.Authors
		if authors == nil {
			authors = []string{}
		}
		authorsJSON, err := json.Marshal(authors)
		if err != nil {
			return fmt.Errorf("marshaling authors: %w", err)
		}

		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO papers (source_file, content_hash, title, authors_json, abstract, doi, full_text, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.SourceFile, p.ContentHash, p.Title, string(authorsJSON),
			nullableStringValue(p.Abstract), nullableStringValue(p.DOI),
			p.FullText, p.CreatedAt.Unix())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO papers_fts (paper_id, title, abstract, authors_text, full_text)
			VALUES (?, ?, ?, ?, ?)
		`, id, p.Title, p.Abstract, strings.Join(p.Authors, ", "), p.FullText)
		return err
	})
	if err != nil {
		return 0, false, err
	}

	if !existed {
		p.ID = id
	}
	return id, existed, nil
}

// GetPaper retrieves a paper by ID.
func (d *DB) GetPaper(ctx context.Context, id int64) (*paper.Paper, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectPaperFields+` FROM papers WHERE id = ?`, id)
	p, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("paper", id)
		}
		return nil, storageErr("getting paper", err)
	}
	return p, nil
}

// ListPapers returns papers, newest first, optionally limited.
func (d *DB) ListPapers(ctx context.Context, limit int) ([]paper.Paper, error) {
	query := `SELECT ` + selectPaperFields + ` FROM papers ORDER BY created_at DESC, id DESC`
	var args []any

	if limit > 0 {
		query += " LIMIT ?"
		args = []any{limit}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("listing papers", err)
	}
	defer rows.Close()

	return scanPapers(rows)
}

// SearchPapers performs a keyword search over title, abstract, authors and
// full text. Results are ordered by FTS5 relevance, best first.
func (d *DB) SearchPapers(ctx context.Context, query string, limit int) ([]paper.Paper, error) {
	ftsQuery := prepareFTSQuery(query)
	if ftsQuery == "" {
		return nil, fmt.Errorf("%w: empty search query", paper.ErrInvalidInput)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+selectPaperFields+`
		FROM papers
		JOIN (
			SELECT paper_id, rank FROM papers_fts WHERE papers_fts MATCH ?
		) hits ON hits.paper_id = papers.id
		ORDER BY hits.rank, papers.id
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, storageErr("searching papers", err)
	}
	defer rows.Close()

	return scanPapers(rows)
}

// CountPapers returns the total number of papers.
func (d *DB) CountPapers(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM papers").Scan(&count); err != nil {
		return 0, storageErr("counting papers", err)
	}
	return count, nil
}

// DeletePaper removes a paper together with its chunks, their mappings and
// every summary owned by the paper or its chunks. It returns the vector index
// positions that were mapped to the deleted chunks so the caller can retire
// them.
func (d *DB) DeletePaper(ctx context.Context, id int64) ([]int, error) {
	var positions []int
	err := d.withTx(ctx, "deleting paper", func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM papers WHERE id = ?`, id).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound("paper", id)
			}
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT m.position FROM embedding_mappings m
			JOIN chunks c ON c.id = m.chunk_id
			WHERE c.paper_id = ?
			ORDER BY m.position`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var pos int
			if err := rows.Scan(&pos); err != nil {
				rows.Close()
				return err
			}
			positions = append(positions, pos)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		stmts := []string{
			`DELETE FROM summaries WHERE owner_kind = 'chunk' AND owner_id IN (SELECT id FROM chunks WHERE paper_id = ?)`,
			`DELETE FROM summaries WHERE owner_kind = 'paper' AND owner_id = ?`,
			`DELETE FROM embedding_mappings WHERE chunk_id IN (SELECT id FROM chunks WHERE paper_id = ?)`,
			`DELETE FROM chunks WHERE paper_id = ?`,
			`DELETE FROM papers_fts WHERE paper_id = ?`,
			`DELETE FROM papers WHERE id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func scanPaper(s scanner) (*paper.Paper, error) {
	var p paper.Paper
	var authorsJSON string
	var abstract, doi sql.NullString
	var createdAt int64

	err := s.Scan(
		&p.ID, &p.SourceFile, &p.ContentHash, &p.Title, &authorsJSON,
		&abstract, &doi, &p.FullText, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	p.Abstract = abstract.String
	p.DOI = doi.String
	p.CreatedAt = time.Unix(createdAt, 0).UTC()

	if err := json.Unmarshal([]byte(authorsJSON), &p.Authors); err != nil {
		return nil, fmt.Errorf("parsing authors JSON for paper %d: %w", p.ID, err)
	}

	return &p, nil
}

func scanPapers(rows *sql.Rows) ([]paper.Paper, error) {
	var papers []paper.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, storageErr("scanning paper", err)
		}
		papers = append(papers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating papers", err)
	}
	return papers, nil
}
