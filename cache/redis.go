package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEngine implements Engine using Redis. Values are stored as JSON
// so they round-trip across processes.
type RedisEngine struct {
	cfg    Config
	client *redis.Client
}

// NewRedisEngine creates a new Redis cache engine.
func NewRedisEngine(cfg Config) *RedisEngine {
	return &RedisEngine{cfg: cfg}
}

// Connect establishes the connection to Redis and verifies it with a ping.
func (c *RedisEngine) Connect(ctx context.Context) error {
	c.client = redis.NewClient(&redis.Options{
		Addr:     c.cfg.RedisAddr,
		Password: c.cfg.RedisPassword,
		DB:       c.cfg.RedisDB,
	})
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", c.cfg.RedisAddr, err)
	}
	return nil
}

// Close closes the connection to Redis.
func (c *RedisEngine) Close(_ context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("closing redis connection: %w", err)
	}
	return nil
}

// Get retrieves an item from Redis.
func (c *RedisEngine) Get(ctx context.Context, key string) (any, bool) {
	if c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false
	}
	return value, true
}

// Set stores an item in Redis with a TTL.
func (c *RedisEngine) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.client == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value for %q: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.effectiveTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("writing cache key %q: %w", key, err)
	}
	return nil
}

// Add stores an item only when the key is not already present, using
// Redis SET NX so the check and write are atomic across processes.
func (c *RedisEngine) Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.client == nil {
		return false, ErrNotConnected
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encoding cache value for %q: %w", key, err)
	}
	stored, err := c.client.SetNX(ctx, key, data, c.effectiveTTL(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("writing cache key %q: %w", key, err)
	}
	return stored, nil
}

// Delete removes an item from Redis.
func (c *RedisEngine) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		return ErrNotConnected
	}
	if err := c.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("deleting cache key %q: %w", key, err)
	}
	return nil
}

// Flush removes all items from the selected Redis database.
func (c *RedisEngine) Flush(ctx context.Context) error {
	if c.client == nil {
		return ErrNotConnected
	}
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("flushing redis database: %w", err)
	}
	return nil
}

func (c *RedisEngine) effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	return ttl
}
