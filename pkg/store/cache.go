package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calloway/backlot/internal/observability"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// KeyValueCache is the read-through cache collaborator. Callers must treat
// every operation as best-effort: a failing cache degrades to a miss, never
// to a request failure.
type KeyValueCache interface {
	// Get returns the cached value and whether the key was present
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisOptions holds cache connection options
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache is a KeyValueCache backed by redis
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// AcquireRedis opens and verifies the cache connection
func AcquireRedis(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info().Str("addr", opts.Addr).Msg("Cache acquired")

	return &RedisCache{client: client, logger: logger}, nil
}

// Get returns the cached value for a key
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	value, err := c.client.Get(opCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		observability.RecordCacheMiss()
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get failed: %w", err)
	}

	observability.RecordCacheHit()
	return value, true, nil
}

// Set stores a value with a TTL
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	if err := c.client.Set(opCtx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Del removes a key
func (c *RedisCache) Del(ctx context.Context, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	if err := c.client.Del(opCtx, key).Err(); err != nil {
		return fmt.Errorf("cache del failed: %w", err)
	}
	return nil
}

// Shutdown closes the cache connection
func (c *RedisCache) Shutdown() error {
	c.logger.Info().Msg("Cache shutting down")
	return c.client.Close()
}
