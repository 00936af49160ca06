//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobsync-client/internal/domain"

	"github.com/go-redis/redis/v8"
)

type mockRedisClient struct {
	GetFunc  func(ctx context.Context, key string) (string, error)
	SetFunc  func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc  func(ctx context.Context, keys ...string) error
	ScanFunc func(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
}

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return m.ScanFunc(ctx, cursor, match, count)
}
func (m *mockRedisClient) Close() error { return nil }

func TestKVStoreGet(t *testing.T) {
	ctx := context.Background()

	t.Run("redis.Nil maps to ErrNotFound", func(t *testing.T) {
		kv := NewKVStore(&mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
		})
		_, err := kv.Get(ctx, "jobsync:u1:view_state")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("connection refused")
		kv := NewKVStore(&mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", boom },
		})
		if _, err := kv.Get(ctx, "k"); !errors.Is(err, boom) {
			t.Fatalf("expected connection error, got %v", err)
		}
	})

	t.Run("hit returns the stored bytes", func(t *testing.T) {
		kv := NewKVStore(&mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return `{"a":1}`, nil },
		})
		got, err := kv.Get(ctx, "k")
		if err != nil || string(got) != `{"a":1}` {
			t.Fatalf("unexpected result %q, %v", got, err)
		}
	})
}

func TestKVStoreSetNeverExpires(t *testing.T) {
	var gotTTL time.Duration = -1
	kv := NewKVStore(&mockRedisClient{
		SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
			gotTTL = expiration
			return nil
		},
	})
	if err := kv.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTTL != 0 {
		t.Fatalf("expected no expiration, got %s", gotTTL)
	}
}

func TestKVStoreKeysWalksAllPages(t *testing.T) {
	calls := 0
	var gotMatch string
	kv := NewKVStore(&mockRedisClient{
		ScanFunc: func(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
			calls++
			gotMatch = match
			switch cursor {
			case 0:
				return []string{"ns:u:pending:chat:b", "ns:u:pending:chat:a"}, 7, nil
			case 7:
				// SCAN may return duplicates across pages
				return []string{"ns:u:pending:chat:a", "ns:u:pending:upload_exam:c"}, 0, nil
			}
			return nil, 0, errors.New("unexpected cursor")
		},
	})

	keys, err := kv.Keys(context.Background(), "ns:u:pending:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 scan calls, got %d", calls)
	}
	if gotMatch != "ns:u:pending:*" {
		t.Fatalf("unexpected match pattern %q", gotMatch)
	}
	want := []string{"ns:u:pending:chat:a", "ns:u:pending:chat:b", "ns:u:pending:upload_exam:c"}
	if len(keys) != len(want) {
		t.Fatalf("want %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("want %v, got %v", want, keys)
		}
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Fatalf("unexpected escape: %q", got)
	}
}
