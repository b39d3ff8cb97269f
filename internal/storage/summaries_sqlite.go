package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matsen/paperdex/internal/paper"
)

// SaveSummary stores a summary, overwriting any earlier text for the same
// owner and kind. The owner must exist.
func (d *DB) SaveSummary(ctx context.Context, s *paper.Summary) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.UpdatedAt = time.Now().UTC()

	return d.withTx(ctx, "saving summary", func(tx *sql.Tx) error {
		ownerTable := "papers"
		if s.OwnerKind == paper.OwnerChunk {
			ownerTable = "chunks"
		}
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM `+ownerTable+` WHERE id = ?`, s.OwnerID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound(string(s.OwnerKind), s.OwnerID)
			}
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO summaries (owner_kind, owner_id, kind, text, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (owner_kind, owner_id, kind) DO UPDATE SET
				text = excluded.text,
				updated_at = excluded.updated_at
		`, s.OwnerKind, s.OwnerID, s.Kind, s.Text, s.UpdatedAt.Unix())
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT id FROM summaries WHERE owner_kind = ? AND owner_id = ? AND kind = ?`,
			s.OwnerKind, s.OwnerID, s.Kind).Scan(&s.ID)
	})
}

// GetSummary returns the summary of the given kind for an owner.
func (d *DB) GetSummary(ctx context.Context, owner paper.OwnerKind, ownerID int64, kind paper.SummaryKind) (*paper.Summary, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, owner_kind, owner_id, kind, text, updated_at
		FROM summaries WHERE owner_kind = ? AND owner_id = ? AND kind = ?`,
		owner, ownerID, kind)
	s, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(string(kind)+" for "+string(owner), ownerID)
		}
		return nil, storageErr("getting summary", err)
	}
	return s, nil
}

// ListSummaries returns every summary attached to an owner, ordered by kind.
func (d *DB) ListSummaries(ctx context.Context, owner paper.OwnerKind, ownerID int64) ([]paper.Summary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, owner_kind, owner_id, kind, text, updated_at
		FROM summaries WHERE owner_kind = ? AND owner_id = ?
		ORDER BY kind`, owner, ownerID)
	if err != nil {
		return nil, storageErr("listing summaries", err)
	}
	defer rows.Close()

	var summaries []paper.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, storageErr("scanning summary", err)
		}
		summaries = append(summaries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating summaries", err)
	}
	return summaries, nil
}

func scanSummary(s scanner) (*paper.Summary, error) {
	var sum paper.Summary
	var owner, kind string
	var updatedAt int64
	if err := s.Scan(&sum.ID, &owner, &sum.OwnerID, &kind, &sum.Text, &updatedAt); err != nil {
		return nil, err
	}
	sum.OwnerKind = paper.OwnerKind(owner)
	sum.Kind = paper.SummaryKind(kind)
	sum.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sum, nil
}
