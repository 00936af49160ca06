package redis

import (
	"context"
	"errors"
	"sort"
	"strings"

	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/ports/repository"
	"jobsync-client/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
)

var _ repository.KVStore = (*KVStore)(nil)

// KVStore keeps the durable local state in Redis so a user's profile can
// survive a machine swap. Keys never expire; records are removed explicitly.
type KVStore struct {
	client RedisClient
}

func NewKVStore(client RedisClient) *KVStore {
	return &KVStore{client: client}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.IncStoreOp("redis", "get", "miss")
			return nil, domain.ErrNotFound
		}
		metrics.IncStoreOp("redis", "get", "error")
		return nil, err
	}
	metrics.IncStoreOp("redis", "get", "hit")
	return []byte(val), nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0); err != nil {
		metrics.IncStoreOp("redis", "set", "error")
		return err
	}
	metrics.IncStoreOp("redis", "set", "ok")
	return nil
}

func (s *KVStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key); err != nil {
		metrics.IncStoreOp("redis", "del", "error")
		return err
	}
	metrics.IncStoreOp("redis", "del", "ok")
	return nil
}

// Keys walks SCAN with a MATCH on the escaped prefix.
func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(prefix) + "*"
	seen := map[string]struct{}{}
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, 100)
		if err != nil {
			metrics.IncStoreOp("redis", "scan", "error")
			return nil, err
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	metrics.IncStoreOp("redis", "scan", "ok")
	return out, nil
}

func (s *KVStore) Close() error { return s.client.Close() }

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globReplacer.Replace(s) }
