// Package store provides SQLite-backed storage for notebook entries. It is
// the source of truth; the git mirror is derived from it.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	id                 TEXT PRIMARY KEY
	                   CHECK (id GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]_*'),
	version            INTEGER NOT NULL DEFAULT 1,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL,
	title              TEXT NOT NULL CHECK (length(title) > 0),
	date               DATETIME NOT NULL,
	tags               TEXT NOT NULL DEFAULT '[]',
	gear_ids           TEXT NOT NULL DEFAULT '[]',
	servings           INTEGER CHECK (servings IS NULL OR servings > 0),
	dinner_time        DATETIME,
	cooking_method     TEXT,
	difficulty_level   INTEGER CHECK (difficulty_level IS NULL OR difficulty_level BETWEEN 1 AND 10),
	prep_time_minutes  INTEGER CHECK (prep_time_minutes IS NULL OR prep_time_minutes >= 0),
	cook_time_minutes  INTEGER CHECK (cook_time_minutes IS NULL OR cook_time_minutes >= 0),
	total_time_minutes INTEGER,
	protocol           TEXT NOT NULL DEFAULT '',
	observations       TEXT NOT NULL DEFAULT '[]',
	outcomes           TEXT NOT NULL DEFAULT '{}',
	scheduling         TEXT NOT NULL DEFAULT '{}',
	links              TEXT NOT NULL DEFAULT '[]',
	ai_metadata        TEXT NOT NULL DEFAULT '{}',
	git_commit_sha     TEXT,
	git_file_path      TEXT,
	view_count         INTEGER NOT NULL DEFAULT 0,
	success_rate       REAL
);

CREATE INDEX IF NOT EXISTS idx_entries_date ON entries(date);
CREATE INDEX IF NOT EXISTS idx_entries_updated_at ON entries(updated_at);
CREATE INDEX IF NOT EXISTS idx_entries_cooking_method ON entries(cooking_method);
CREATE INDEX IF NOT EXISTS idx_entries_difficulty ON entries(difficulty_level);
`

// DB wraps a sql.DB with entry storage operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
