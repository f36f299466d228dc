package tokenstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/abduss/labportal/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Open builds the Storage selected by cfg.TokenStore.Backend. The returned
// cleanup func releases connections and is never nil.
func Open(ctx context.Context, cfg config.Config) (Storage, func(), error) {
	noop := func() {}

	switch strings.ToLower(cfg.TokenStore.Backend) {
	case BackendMemory:
		return NewMemoryStorage(), noop, nil
	case BackendFile, "":
		return NewFileStorage(cfg.TokenStore.FilePath), noop, nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisStorage(client, cfg.Redis.TTL), func() { client.Close() }, nil
	case BackendPostgres:
		pool, err := NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, noop, err
		}
		storage := NewPostgresStorage(pool)
		if err := storage.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return storage, pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.TokenStore.Backend)
	}
}
