package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis-backed cache provider.
type RedisConfig struct {
	Addr       string        `yaml:"addr" json:"addr"`
	Password   string        `yaml:"password" json:"password"`
	DB         int           `yaml:"db" json:"db"`
	KeyPrefix  string        `yaml:"key_prefix" json:"key_prefix"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
}

// DefaultRedisConfig returns the default Redis cache configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       "localhost:6379",
		KeyPrefix:  "ragflow:cache:",
		DefaultTTL: 1 * time.Hour,
	}
}

// Redis is a cache provider backed by a Redis instance, for callers that
// want the result cache shared across processes. Values are stored as JSON.
// Backend failures are logged and reported as misses rather than surfaced,
// so a degraded Redis never fails a search.
type Redis[V any] struct {
	client *redis.Client
	config RedisConfig
	logger *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedis creates a Redis cache provider and verifies connectivity.
func NewRedis[V any](config RedisConfig, logger *zap.Logger) (*Redis[V], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis[V]{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache_redis")),
	}, nil
}

// Get fetches and unmarshals the value for key.
func (c *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V

	data, err := c.client.Get(ctx, c.config.KeyPrefix+key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return zero, false
	}
	if err != nil {
		c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		c.misses.Add(1)
		return zero, false
	}

	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		c.logger.Warn("redis value unmarshal failed", zap.String("key", key), zap.Error(err))
		c.misses.Add(1)
		return zero, false
	}

	c.hits.Add(1)
	return value, true
}

// Set marshals and stores value under key.
func (c *Redis[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	if ttl < 0 {
		ttl = 0 // redis: 0 means no expiry
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("redis value marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.config.KeyPrefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes key and reports whether it was present.
func (c *Redis[V]) Delete(ctx context.Context, key string) bool {
	n, err := c.client.Del(ctx, c.config.KeyPrefix+key).Result()
	if err != nil {
		c.logger.Warn("redis delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// Has reports whether key exists without fetching its value.
func (c *Redis[V]) Has(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, c.config.KeyPrefix+key).Result()
	if err != nil {
		c.logger.Warn("redis exists failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// Clear removes all keys under the configured prefix.
func (c *Redis[V]) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			c.client.Del(ctx, keys...)
			keys = keys[:0]
		}
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("redis clear scan failed", zap.Error(err))
	}
}

// Size counts the keys under the configured prefix.
func (c *Redis[V]) Size(ctx context.Context) int {
	count := 0
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("redis size scan failed", zap.Error(err))
	}
	return count
}

// Stats returns lifetime hit/miss counters for this provider instance.
func (c *Redis[V]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close releases the underlying Redis connection.
func (c *Redis[V]) Close() error {
	return c.client.Close()
}
