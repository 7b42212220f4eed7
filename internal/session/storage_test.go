package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/db"
)

func storages(t *testing.T) map[string]Storage {
	t.Helper()
	db.SetLogger(zerolog.Nop())
	conn := db.NewSQLite(db.MemoryPath)
	if err := conn.InitDb(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"sqlite": NewSQLStorage(conn),
	}
}

func TestStorageContract(t *testing.T) {
	ctx := context.Background()
	for name, st := range storages(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.Get(ctx, "s1", KeyToken); !errors.Is(err, ErrNoValue) {
				t.Fatalf("missing key: got %v, want ErrNoValue", err)
			}

			must(t, st.Set(ctx, "s1", KeyToken, "a"))
			must(t, st.Set(ctx, "s1", KeyToken, "b"))
			must(t, st.Set(ctx, "s1", KeyRefreshToken, "r"))
			must(t, st.Set(ctx, "s2", KeyToken, "other"))

			if v, err := st.Get(ctx, "s1", KeyToken); err != nil || v != "b" {
				t.Errorf("overwrite: got %q, %v", v, err)
			}

			must(t, st.Clear(ctx, "s1"))
			for _, k := range []string{KeyToken, KeyRefreshToken} {
				if _, err := st.Get(ctx, "s1", k); !errors.Is(err, ErrNoValue) {
					t.Errorf("%s survived Clear: %v", k, err)
				}
			}
			if v, _ := st.Get(ctx, "s2", KeyToken); v != "other" {
				t.Errorf("Clear touched another session: %q", v)
			}
		})
	}
}

func TestSQLStoragePurge(t *testing.T) {
	ctx := context.Background()
	st := storages(t)["sqlite"].(*SQLStorage)

	must(t, st.Set(ctx, "old", KeyToken, "x"))
	must(t, st.Set(ctx, "new", KeyToken, "y"))
	if _, err := st.db.Exec(ctx, `UPDATE sessions SET updated_at = '2000-01-01 00:00:00' WHERE id = 'old'`); err != nil {
		t.Fatal(err)
	}

	n, err := st.Purge(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}
	if _, err := st.Get(ctx, "new", KeyToken); err != nil {
		t.Errorf("recent session was purged: %v", err)
	}
}

func TestNewStorage(t *testing.T) {
	st, conn, err := NewStorage(config.SessionConfig{Store: config.SessionStoreMemory})
	if err != nil || conn != nil {
		t.Fatalf("NewStorage() = %v, %v", conn, err)
	}
	if _, ok := st.(*MemoryStorage); !ok {
		t.Errorf("got %T", st)
	}

	if _, _, err := NewStorage(config.SessionConfig{Store: "redis"}); err == nil {
		t.Error("expected an error for an unknown store")
	}

	st, conn, err = NewStorage(config.SessionConfig{Store: config.SessionStoreSQLite, Path: db.MemoryPath})
	if err != nil || conn == nil {
		t.Fatalf("sqlite NewStorage() = %v, %v", conn, err)
	}
	defer conn.Close()
	if _, ok := st.(*SQLStorage); !ok {
		t.Errorf("got %T", st)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
