package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/ports/repository"
	"jobsync-client/internal/infra/metrics"

	_ "github.com/mattn/go-sqlite3"
)

var _ repository.KVStore = (*KVStore)(nil)

// KVStore is an embedded single-file store, the closest thing to a browser
// profile database on a desktop client.
type KVStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Open creates or opens the database at path.
func Open(ctx context.Context, path string) (*KVStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=5000;`, schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite store init: %w", err)
		}
	}
	return &KVStore{db: db}, nil
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.IncStoreOp("sqlite", "get", "miss")
			return nil, domain.ErrNotFound
		}
		metrics.IncStoreOp("sqlite", "get", "error")
		return nil, err
	}
	metrics.IncStoreOp("sqlite", "get", "hit")
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano())
	if err != nil {
		metrics.IncStoreOp("sqlite", "set", "error")
		return err
	}
	metrics.IncStoreOp("sqlite", "set", "ok")
	return nil
}

func (s *KVStore) Del(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		metrics.IncStoreOp("sqlite", "del", "error")
		return err
	}
	metrics.IncStoreOp("sqlite", "del", "ok")
	return nil
}

func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE key >= ? ORDER BY key`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		// BINARY collation sorts byte-wise, so the prefix range is contiguous.
		if !strings.HasPrefix(k, prefix) {
			break
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *KVStore) Close() error { return s.db.Close() }
