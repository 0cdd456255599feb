// Package storage opens and migrates the foliod SQLite database.
//
// SQLite holds everything relational the retrieval pipeline needs: named
// counters, the entity-to-vector-ID map, prompt templates and the portfolio
// entities themselves. The pure-Go driver (modernc.org/sqlite) keeps the
// binary CGO-free.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// schema is applied on open. Statements are idempotent so repeated startups
// are safe without a migration table.
const schema = `
CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS indexed_documents (
	collection  TEXT NOT NULL,
	external_id TEXT NOT NULL,
	vector_id   INTEGER NOT NULL,
	PRIMARY KEY (collection, external_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_indexed_documents_vector
	ON indexed_documents (collection, vector_id);

CREATE TABLE IF NOT EXISTS prompt_templates (
	name       TEXT PRIMARY KEY,
	template   TEXT NOT NULL,
	parameters TEXT NOT NULL DEFAULT '[]'
);
`

// Open opens (creating if needed) the SQLite database at path and applies
// the schema. An empty path defaults to ~/.config/foliod/foliod.db.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "foliod", "foliod.db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode for concurrent readers alongside the single writer.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return db, nil
}

// OpenInMemory opens a fresh in-memory database with the schema applied.
// Intended for tests.
func OpenInMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	// A single connection keeps the in-memory database alive and visible
	// to all callers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return db, nil
}
