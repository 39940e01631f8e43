package internal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS content (
	content_id TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	payload    BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS semantic_properties (
	content_id TEXT PRIMARY KEY,
	data       BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS journal (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	content_id TEXT NOT NULL,
	parent_id  TEXT,
	op         TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_journal_session ON journal(session_id);
`

// OpenDatabase opens (creating if needed) a SQLite database for the feed store
func OpenDatabase(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := prepareDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenInMemoryDatabase opens a private in-memory database. A single
// connection is kept so every query sees the same database.
func OpenInMemoryDatabase() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := prepareDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func prepareDatabase(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
