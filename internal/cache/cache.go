// Package cache provides a cache-aside coordinator over Redis. When Redis is
// unconfigured or unreachable the coordinator degrades to a pass-through:
// reads miss, writes are dropped, and computed values flow straight to the
// caller. Cache unavailability is never surfaced as an error.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	connectTimeout = 3 * time.Second
	scanCount      = 200
	unlinkBatch    = 128
)

// Cache wraps a Redis client. A nil client means degraded mode.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// New connects to Redis at redisURL. An empty URL, a malformed URL, or a
// failed ping all yield a degraded cache rather than an error.
func New(redisURL string, logger *slog.Logger) *Cache {
	c := &Cache{logger: logger}
	if redisURL == "" {
		logger.Info("cache disabled: no redis url configured")
		return c
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("cache disabled: invalid redis url", "error", err)
		return c
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("cache disabled: redis unreachable", "error", err)
		client.Close()
		return c
	}

	c.client = client
	logger.Info("cache connected")
	return c
}

// Enabled reports whether a Redis connection is available.
func (c *Cache) Enabled() bool {
	return c.client != nil
}

// Close releases the Redis connection, if any.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Get returns the value stored under key, or ok=false on miss, degraded mode,
// or any Redis error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.client == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return val, true
}

// Set stores value under key with the given TTL. Failures are logged, not returned.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Delete removes a single key.
func (c *Cache) Delete(ctx context.Context, key string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("cache delete failed", "key", key, "error", err)
	}
}

// DeleteByPattern removes all keys matching pattern. It walks the keyspace
// with incremental SCAN and removes matches with UNLINK so that large key
// counts never stall the Redis event loop.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) {
	if c.client == nil {
		return
	}

	var cursor uint64
	batch := make([]string, 0, unlinkBatch)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			c.logger.Warn("cache scan failed", "pattern", pattern, "error", err)
			return
		}
		batch = append(batch, keys...)
		if len(batch) >= unlinkBatch {
			c.unlink(ctx, batch)
			batch = batch[:0]
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(batch) > 0 {
		c.unlink(ctx, batch)
	}
}

func (c *Cache) unlink(ctx context.Context, keys []string) {
	if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache unlink failed", "keys", len(keys), "error", err)
	}
}

// Cached returns the value under key if present, otherwise invokes compute,
// stores its result with the given TTL, and returns it. Errors from compute
// propagate unmodified: the cache never swallows a failure to produce fresh
// data. A corrupt cached entry is treated as a miss.
func Cached[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	if raw, ok := c.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.logger.Warn("cache entry corrupt, recomputing", "key", key)
	}

	v, err := compute()
	if err != nil {
		return v, err
	}

	if raw, err := json.Marshal(v); err == nil {
		c.Set(ctx, key, raw, ttl)
	}
	return v, nil
}
