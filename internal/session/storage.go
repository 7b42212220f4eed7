package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/debemdeboas/folio/internal/cache"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/db"
)

// Keys held for every signed-in session.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

var ErrNoValue = errors.New("session: no value")

// Storage is a per-session key/value store.
type Storage interface {
	// Get returns ErrNoValue when key is not set.
	Get(ctx context.Context, sid, key string) (string, error)
	Set(ctx context.Context, sid, key, value string) error
	// Clear removes every key of the session.
	Clear(ctx context.Context, sid string) error
}

// Purger is implemented by storages that can drop idle sessions.
type Purger interface {
	Purge(ctx context.Context, idleSince time.Time) (int64, error)
}

// NewStorage builds the configured storage. The SQLite connection it opened is
// returned so other stores can share it; it is nil for the memory store.
func NewStorage(cfg config.SessionConfig) (Storage, *db.SQLite, error) {
	switch cfg.Store {
	case config.SessionStoreMemory:
		return NewMemoryStorage(), nil, nil
	case config.SessionStoreSQLite:
		conn := db.NewSQLite(cfg.Path)
		if err := conn.InitDb(); err != nil {
			return nil, nil, err
		}
		return NewSQLStorage(conn), conn, nil
	}
	return nil, nil, fmt.Errorf("unknown session store %q", cfg.Store)
}

type memoryKey struct {
	sid string
	key string
}

type MemoryStorage struct {
	items *cache.Cache[memoryKey, string]
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: cache.NewCache[memoryKey, string]()}
}

func (m *MemoryStorage) Get(_ context.Context, sid, key string) (string, error) {
	if v, ok := m.items.Get(memoryKey{sid, key}); ok {
		return v, nil
	}
	return "", ErrNoValue
}

func (m *MemoryStorage) Set(_ context.Context, sid, key, value string) error {
	m.items.Set(memoryKey{sid, key}, value)
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context, sid string) error {
	var keys []memoryKey
	m.items.Range(func(k memoryKey, _ string) bool {
		if k.sid == sid {
			keys = append(keys, k)
		}
		return true
	})
	for _, k := range keys {
		m.items.Delete(k)
	}
	return nil
}

// SQLStorage keeps sessions in the sessions table so they survive restarts.
type SQLStorage struct {
	db db.Db
}

func NewSQLStorage(d db.Db) *SQLStorage {
	return &SQLStorage{db: d}
}

func (s *SQLStorage) Get(ctx context.Context, sid, key string) (string, error) {
	var v string
	err := s.db.QueryRow(ctx, `SELECT value FROM sessions WHERE id = ? AND key = ?`, sid, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoValue
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session value: %w", err)
	}
	return v, nil
}

func (s *SQLStorage) Set(ctx context.Context, sid, key, value string) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO sessions (id, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		sid, key, value)
	if err != nil {
		return fmt.Errorf("failed to write session value: %w", err)
	}
	return nil
}

func (s *SQLStorage) Clear(ctx context.Context, sid string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = ?`, sid); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Purge drops every session that has not been written since idleSince.
func (s *SQLStorage) Purge(ctx context.Context, idleSince time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, `
DELETE FROM sessions WHERE id IN (
    SELECT id FROM sessions GROUP BY id HAVING MAX(updated_at) < ?
)`, idleSince.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}
