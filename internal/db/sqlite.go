package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (id, key)
);

CREATE INDEX IF NOT EXISTS sessions_updated_at ON sessions (updated_at);

CREATE TABLE IF NOT EXISTS post_snapshots (
    slug TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    content BLOB NOT NULL,
    md_content_hash TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

type SQLite struct {
	path string
	conn *sql.DB
}

func NewSQLite(path string) *SQLite {
	return &SQLite{
		path: path,
		conn: nil,
	}
}

func (s *SQLite) InitDb() error {
	dsn := s.path
	if s.path != MemoryPath {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	var err error
	s.conn, err = sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}

	// Each connection to :memory: is a separate database
	if s.path == MemoryPath {
		s.conn.SetMaxOpenConns(1)
	}

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	dbLogger.Info().Str("path", s.path).Msg("Database initialized")
	return nil
}

func (s *SQLite) Get() *sql.DB {
	return s.conn
}

func (s *SQLite) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *SQLite) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	dbLogger.Trace().Str("query", query).Msg("QueryRow")
	return s.conn.QueryRowContext(ctx, query, args...)
}

func (s *SQLite) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	dbLogger.Trace().Str("query", query).Msg("Query")
	return s.conn.QueryContext(ctx, query, args...)
}

func (s *SQLite) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	dbLogger.Trace().Str("query", query).Msg("Exec")
	return s.conn.ExecContext(ctx, query, args...)
}
