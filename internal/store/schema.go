// Package store provides SQLite-backed persistence for captures, usage
// ledgers, journal entries and the destination records handed off on commit.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS temp_captures (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	mime_type  TEXT NOT NULL DEFAULT '',
	size       INTEGER NOT NULL,
	checksum   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_temp_captures_expires ON temp_captures(expires_at);

CREATE TABLE IF NOT EXISTS usage_ledgers (
	user_id         TEXT PRIMARY KEY,
	tier            TEXT NOT NULL DEFAULT 'metered',
	daily_count     INTEGER NOT NULL DEFAULT 0 CHECK (daily_count >= 0),
	daily_anchor    INTEGER NOT NULL DEFAULT 0,
	monthly_count   INTEGER NOT NULL DEFAULT 0 CHECK (monthly_count >= 0),
	monthly_anchor  INTEGER NOT NULL DEFAULT 0,
	cumulative_cost REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS journal_entries (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	transcript TEXT NOT NULL,
	emotion    TEXT NOT NULL,
	mime_type  TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	has_audio  INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_owner_created ON journal_entries(owner_id, created_at);

CREATE TRIGGER IF NOT EXISTS journal_transcript_immutable
BEFORE UPDATE OF transcript ON journal_entries
BEGIN
	SELECT RAISE(ABORT, 'journal transcript is immutable');
END;

CREATE TABLE IF NOT EXISTS contacts (
	id       TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_owner ON contacts(owner_id);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	description TEXT NOT NULL,
	due_date    TEXT NOT NULL,
	contact_id  TEXT REFERENCES contacts(id),
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS interactions (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	contact_id  TEXT NOT NULL REFERENCES contacts(id),
	note        TEXT NOT NULL,
	occurred_on TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
`

// DB wraps a sql.DB with repository operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection. Used by the readiness endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
