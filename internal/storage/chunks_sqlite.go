package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matsen/paperdex/internal/paper"
)

const selectChunkFields = `id, paper_id, ordinal, text, overlap`

// InsertChunks appends chunks to a paper in one transaction. Ordinals are
// assigned here, continuing after the paper's highest existing ordinal, so
// they stay contiguous and unique. The ID, PaperID and Ordinal of each chunk
// are filled in. Blank chunks are rejected before anything is written.
func (d *DB) InsertChunks(ctx context.Context, paperID int64, chunks []paper.Chunk) error {
	for i, c := range chunks {
		if paper.IsBlank(c.Text) {
			return fmt.Errorf("%w: chunk %d has no text", paper.ErrInvalidInput, i)
		}
	}

	return d.withTx(ctx, "inserting chunks", func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM papers WHERE id = ?`, paperID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound("paper", paperID)
			}
			return err
		}

		var next int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(ordinal) + 1, 0) FROM chunks WHERE paper_id = ?`, paperID).Scan(&next)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (paper_id, ordinal, text, overlap)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range chunks {
			c := &chunks[i]
			c.PaperID = paperID
			c.Ordinal = next + i
			res, err := stmt.ExecContext(ctx, c.PaperID, c.Ordinal, c.Text, c.Overlap)
			if err != nil {
				return fmt.Errorf("inserting chunk %d: %w", c.Ordinal, err)
			}
			c.ID, err = res.LastInsertId()
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChunk retrieves a chunk by ID.
func (d *DB) GetChunk(ctx context.Context, id int64) (*paper.Chunk, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectChunkFields+` FROM chunks WHERE id = ?`, id)
	var c paper.Chunk
	if err := row.Scan(&c.ID, &c.PaperID, &c.Ordinal, &c.Text, &c.Overlap); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("chunk", id)
		}
		return nil, storageErr("getting chunk", err)
	}
	return &c, nil
}

// ListChunksForPaper returns a paper's chunks in ordinal order.
func (d *DB) ListChunksForPaper(ctx context.Context, paperID int64) ([]paper.Chunk, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+selectChunkFields+` FROM chunks WHERE paper_id = ? ORDER BY ordinal`, paperID)
	if err != nil {
		return nil, storageErr("listing chunks", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ListChunks returns every live chunk ordered by ID.
func (d *DB) ListChunks(ctx context.Context) ([]paper.Chunk, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+selectChunkFields+` FROM chunks ORDER BY id`)
	if err != nil {
		return nil, storageErr("listing chunks", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// CountChunks returns the total number of chunks.
func (d *DB) CountChunks(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, storageErr("counting chunks", err)
	}
	return count, nil
}

func scanChunks(rows *sql.Rows) ([]paper.Chunk, error) {
	var chunks []paper.Chunk
	for rows.Next() {
		var c paper.Chunk
		if err := rows.Scan(&c.ID, &c.PaperID, &c.Ordinal, &c.Text, &c.Overlap); err != nil {
			return nil, storageErr("scanning chunk", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating chunks", err)
	}
	return chunks, nil
}
