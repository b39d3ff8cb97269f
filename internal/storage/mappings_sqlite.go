package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matsen/paperdex/internal/paper"
)

const selectMappingFields = `id, chunk_id, position, model_name, text_hash, indexed_at`

// IndexState identifies the vector index that the stored mappings refer to.
type IndexState struct {
	Generation string
	ModelName  string
	Dimensions int
	UpdatedAt  time.Time
}

// SaveMapping records the index position for a chunk, replacing any earlier
// mapping for the same chunk. m.ID and m.IndexedAt are filled in.
func (d *DB) SaveMapping(ctx context.Context, m *paper.EmbeddingMapping) error {
	if m.IndexedAt.IsZero() {
		m.IndexedAt = time.Now().UTC()
	}
	return d.withTx(ctx, "saving mapping", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embedding_mappings (chunk_id, position, model_name, text_hash, indexed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (chunk_id) DO UPDATE SET
				position = excluded.position,
				model_name = excluded.model_name,
				text_hash = excluded.text_hash,
				indexed_at = excluded.indexed_at
		`, m.ChunkID, m.Position, m.ModelName, m.TextHash, m.IndexedAt.Unix())
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT id FROM embedding_mappings WHERE chunk_id = ?`, m.ChunkID).Scan(&m.ID)
	})
}

// MappingByChunk returns the mapping for a chunk.
func (d *DB) MappingByChunk(ctx context.Context, chunkID int64) (*paper.EmbeddingMapping, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectMappingFields+` FROM embedding_mappings WHERE chunk_id = ?`, chunkID)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("mapping for chunk", chunkID)
		}
		return nil, storageErr("getting mapping", err)
	}
	return m, nil
}

// MappingByPosition returns the mapping that owns an index position.
func (d *DB) MappingByPosition(ctx context.Context, position int) (*paper.EmbeddingMapping, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectMappingFields+` FROM embedding_mappings WHERE position = ?`, position)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("mapping for position", position)
		}
		return nil, storageErr("getting mapping", err)
	}
	return m, nil
}

// DeleteMapping removes the mapping for a chunk. Deleting a missing mapping
// is not an error.
func (d *DB) DeleteMapping(ctx context.Context, chunkID int64) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM embedding_mappings WHERE chunk_id = ?`, chunkID); err != nil {
		return storageErr("deleting mapping", err)
	}
	return nil
}

// ListMappings returns every mapping ordered by position.
func (d *DB) ListMappings(ctx context.Context) ([]paper.EmbeddingMapping, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+selectMappingFields+` FROM embedding_mappings ORDER BY position`)
	if err != nil {
		return nil, storageErr("listing mappings", err)
	}
	defer rows.Close()

	var mappings []paper.EmbeddingMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, storageErr("scanning mapping", err)
		}
		mappings = append(mappings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating mappings", err)
	}
	return mappings, nil
}

// CountMappings returns the number of stored mappings.
func (d *DB) CountMappings(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embedding_mappings").Scan(&count); err != nil {
		return 0, storageErr("counting mappings", err)
	}
	return count, nil
}

// ListUnmappedChunkIDs returns IDs of chunks that have no mapping.
func (d *DB) ListUnmappedChunkIDs(ctx context.Context) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c.id FROM chunks c
		LEFT JOIN embedding_mappings m ON m.chunk_id = c.id
		WHERE m.id IS NULL
		ORDER BY c.id`)
	if err != nil {
		return nil, storageErr("listing unmapped chunks", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scanning chunk id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating chunk ids", err)
	}
	return ids, nil
}

// ReplaceMappings swaps the complete mapping table and the index state in a
// single transaction. It is used when a rebuilt index replaces the old one.
func (d *DB) ReplaceMappings(ctx context.Context, state IndexState, mappings []paper.EmbeddingMapping) error {
	return d.withTx(ctx, "replacing mappings", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM embedding_mappings`); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embedding_mappings (chunk_id, position, model_name, text_hash, indexed_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i := range mappings {
			m := &mappings[i]
			if m.IndexedAt.IsZero() {
				m.IndexedAt = now
			}
			res, err := stmt.ExecContext(ctx, m.ChunkID, m.Position, m.ModelName, m.TextHash, m.IndexedAt.Unix())
			if err != nil {
				return err
			}
			if m.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}

		return setIndexState(ctx, tx, state)
	})
}

// GetIndexState returns the recorded index state, or an error matching
// paper.ErrNotFound if no index has been recorded yet.
func (d *DB) GetIndexState(ctx context.Context) (*IndexState, error) {
	var s IndexState
	var updatedAt int64
	err := d.db.QueryRowContext(ctx,
		`SELECT generation, model_name, dimensions, updated_at FROM index_state WHERE id = 1`,
	).Scan(&s.Generation, &s.ModelName, &s.Dimensions, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("index state", 1)
		}
		return nil, storageErr("getting index state", err)
	}
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &s, nil
}

// SetIndexState records the index the mappings refer to.
func (d *DB) SetIndexState(ctx context.Context, state IndexState) error {
	return d.withTx(ctx, "setting index state", func(tx *sql.Tx) error {
		return setIndexState(ctx, tx, state)
	})
}

func setIndexState(ctx context.Context, tx *sql.Tx, state IndexState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO index_state (id, generation, model_name, dimensions, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			generation = excluded.generation,
			model_name = excluded.model_name,
			dimensions = excluded.dimensions,
			updated_at = excluded.updated_at
	`, state.Generation, state.ModelName, state.Dimensions, state.UpdatedAt.Unix())
	return err
}

func scanMapping(s scanner) (*paper.EmbeddingMapping, error) {
	var m paper.EmbeddingMapping
	var indexedAt int64
	if err := s.Scan(&m.ID, &m.ChunkID, &m.Position, &m.ModelName, &m.TextHash, &indexedAt); err != nil {
		return nil, err
	}
	m.IndexedAt = time.Unix(indexedAt, 0).UTC()
	return &m, nil
}
