package store

import (
	"context"

	"github.com/rs/zerolog"

	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/ports/repository"
	"jobsync-client/internal/infra/metrics"
	"jobsync-client/internal/infra/security"
)

var _ repository.KVStore = (*SealedKV)(nil)

// SealedKV encrypts values at rest. Keys stay in clear so prefix scans work.
// A value that does not open under the current key reads as missing.
type SealedKV struct {
	inner  repository.KVStore
	sealer *security.Sealer
	log    *zerolog.Logger
}

func NewSealedKV(inner repository.KVStore, sealer *security.Sealer, logger *zerolog.Logger) *SealedKV {
	return &SealedKV{inner: inner, sealer: sealer, log: orNop(logger)}
}

func (s *SealedKV) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	pt, err := s.sealer.Open(sealed, []byte(key))
	if err != nil {
		metrics.IncStoreDiscarded("sealed_value")
		s.log.Warn().Err(err).Str("key", key).Msg("ignoring value that does not open")
		return nil, domain.ErrNotFound
	}
	return pt, nil
}

func (s *SealedKV) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.sealer.Seal(value, []byte(key))
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *SealedKV) Del(ctx context.Context, key string) error { return s.inner.Del(ctx, key) }

func (s *SealedKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.Keys(ctx, prefix)
}

func (s *SealedKV) Close() error { return s.inner.Close() }
