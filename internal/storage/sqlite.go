// Package storage persists papers, chunks, summaries and embedding mappings
// in SQLite. It is the source of truth; the vector index is derived from it.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/matsen/paperdex/internal/paper"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("opening database", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, storageErr("creating schema", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS papers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_file TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			authors_json TEXT NOT NULL DEFAULT '[]',
			abstract TEXT,
			doi TEXT,
			full_text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			paper_id INTEGER NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			overlap INTEGER NOT NULL DEFAULT 0,
			UNIQUE (paper_id, ordinal)
		);

		CREATE TABLE IF NOT EXISTS embedding_mappings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chunk_id INTEGER NOT NULL UNIQUE REFERENCES chunks(id) ON DELETE CASCADE,
			position INTEGER NOT NULL UNIQUE,
			model_name TEXT NOT NULL,
			text_hash TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_kind TEXT NOT NULL,
			owner_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (owner_kind, owner_id, kind)
		);

		-- Single row describing the vector index the mappings belong to
		CREATE TABLE IF NOT EXISTS index_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			generation TEXT NOT NULL,
			model_name TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`

	if _, err := db.Exec(schema + ftsSchema); err != nil {
		return err
	}
	return migrateFTS(db)
}

// ftsSchema is the keyword index over paper metadata and body text.
const ftsSchema = `
	CREATE VIRTUAL TABLE IF NOT EXISTS papers_fts USING fts5(
		paper_id UNINDEXED,
		title,
		abstract,
		authors_text,
		full_text
	);
`

// migrateFTS rebuilds a papers_fts table created before full_text was
// indexed, refilling it from papers.
func migrateFTS(db *sql.DB) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('papers_fts') WHERE name = 'full_text'`).Scan(&n)
	if err != nil || n > 0 {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DROP TABLE papers_fts`,
		ftsSchema,
		`INSERT INTO papers_fts (paper_id, title, abstract, authors_text, full_text)
		 SELECT id, title, COALESCE(abstract, ''),
			COALESCE((SELECT group_concat(value, ', ') FROM json_each(papers.authors_json)), ''),
			full_text
		 FROM papers`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migrating papers_fts: %w", err)
		}
	}
	return tx.Commit()
}

// storageErr wraps a driver error so callers can match paper.ErrStorageFailure.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, paper.ErrStorageFailure, err)
}

// notFound builds an error matching paper.ErrNotFound.
func notFound(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, paper.ErrNotFound)
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// withTx runs fn inside a transaction, rolling back on error.
func (d *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op+": beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		if errors.Is(err, paper.ErrStorageFailure) || errors.Is(err, paper.ErrNotFound) || errors.Is(err, paper.ErrInvalidInput) {
			return err
		}
		return storageErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr(op+": committing", err)
	}
	return nil
}

// prepareFTSQuery escapes special characters for FTS5 queries.
func prepareFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	// If query contains special chars, quote it
	if strings.ContainsAny(query, "\"*+-:(){}[]^~") {
		query = strings.ReplaceAll(query, "\"", "\"\"")
		return "\"" + query + "\""
	}

	return query
}
