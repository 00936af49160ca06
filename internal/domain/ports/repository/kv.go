package repository

import "context"

// KVStore is the durable local key/value surface. Get returns
// domain.ErrNotFound for missing keys. Values are whole records; there is no
// partial update.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
