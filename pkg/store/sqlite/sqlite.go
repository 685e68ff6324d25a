// Package sqlite provides a file-backed [store.KV] on top of modernc.org/sqlite.
// It is the default rewrite cache: a single local file, no server required.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/eclectech/pkg/store"
)

// schemaVersion is the latest schema version. Bump it when adding migrations.
const schemaVersion = 1

// Compile-time interface assertion.
var _ store.KV = (*Store)(nil)

// Store is a SQLite-backed key-value store.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// Open opens (creating if needed) the database at path, enables WAL mode and
// applies migrations. The parent directory is created with 0700 permissions.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite store: path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sqlite store: create directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(path, 0o600)

	return &Store{db: db}, nil
}

// migrate applies schema migrations based on the user_version pragma.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("sqlite store: read user_version: %w", err)
	}

	if version < 1 {
		const schema = `
		CREATE TABLE IF NOT EXISTS kv (
		  key        TEXT PRIMARY KEY,
		  id         TEXT NOT NULL,
		  value      TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("sqlite store: migration 1: %w", err)
		}
	}

	if version < schemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
			return fmt.Errorf("sqlite store: set user_version: %w", err)
		}
	}
	return nil
}

func verifyWALMode(db *sql.DB) error {
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		return fmt.Errorf("sqlite store: verify journal mode: %w", err)
	}
	if mode != "wal" {
		return fmt.Errorf("sqlite store: expected WAL mode, got %s", mode)
	}
	return nil
}

// Get implements store.KV.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, store.ErrClosed
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite store: get %q: %w", key, err)
	}
	return value, true, nil
}

// Put implements store.KV.
func (s *Store) Put(ctx context.Context, key, value string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, id, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		  id = excluded.id, value = excluded.value, updated_at = excluded.updated_at`,
		key, store.NewID(), value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite store: put %q: %w", key, err)
	}
	return nil
}

// Delete implements store.KV.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite store: delete %q: %w", key, err)
	}
	return nil
}

// List implements store.KV.
func (s *Store) List(ctx context.Context, prefix string) ([]store.Entry, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, id, value, updated_at FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`,
		len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []store.Entry
	for rows.Next() {
		var (
			e  store.Entry
			ms int64
		)
		if err := rows.Scan(&e.Key, &e.ID, &e.Value, &ms); err != nil {
			return nil, fmt.Errorf("sqlite store: scan: %w", err)
		}
		e.UpdatedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping implements store.KV.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close implements store.KV. It is safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
