package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/lumina/internal/imaging/watermark"
)

// RedisLogoCache stores fetched watermark logos in Redis. Keys are built by
// the caller; values are the raw image bytes.
type RedisLogoCache struct {
	client *redis.Client
}

// Compile-time verification that RedisLogoCache implements watermark.LogoCache.
var _ watermark.LogoCache = (*RedisLogoCache)(nil)

// NewRedisLogoCache creates a new Redis-backed logo cache.
func NewRedisLogoCache(client *redis.Client) *RedisLogoCache {
	return &RedisLogoCache{
		client: client,
	}
}

// Get retrieves logo bytes from Redis.
// Returns nil, nil on cache miss.
func (c *RedisLogoCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores logo bytes with the specified TTL.
func (c *RedisLogoCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete evicts a logo. Deleting a missing key is not an error.
func (c *RedisLogoCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
