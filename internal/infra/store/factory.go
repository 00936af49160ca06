package store

import (
	"context"
	"fmt"

	"jobsync-client/internal/config"
	"jobsync-client/internal/domain/ports/repository"
	"jobsync-client/internal/infra/db/sqlite"
	red "jobsync-client/internal/infra/redis"
	"jobsync-client/internal/infra/security"

	"github.com/rs/zerolog"
)

// Open builds the KV backend selected in cfg, sealed when an encryption key
// is configured.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zerolog.Logger) (repository.KVStore, error) {
	kv, err := openBackend(ctx, cfg, logger)
	if err != nil || cfg.EncryptionKey == "" {
		return kv, err
	}
	sealer, err := security.NewSealer(cfg.EncryptionKey)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	return NewSealedKV(kv, sealer, logger), nil
}

func openBackend(ctx context.Context, cfg config.StoreConfig, logger *zerolog.Logger) (repository.KVStore, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryKV(), nil
	case "file", "":
		return OpenFileKV(cfg.Path, logger)
	case "sqlite":
		return sqlite.Open(ctx, cfg.Path)
	case "redis":
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return red.NewKVStore(client), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
