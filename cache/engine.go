// Package cache provides the caching layer used for webhook event
// deduplication and short-lived response caching. Two engines are
// available: an in-memory engine for single-node deployments and tests,
// and a Redis engine for shared deployments.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Static errors for the cache package
var (
	ErrUnknownEngine = errors.New("unknown cache engine")
	ErrNotConnected  = errors.New("cache engine not connected")
)

// Engine defines the interface cache engine implementations must satisfy.
type Engine interface {
	// Connect establishes the connection to the cache backend.
	Connect(ctx context.Context) error

	// Close releases the connection to the cache backend.
	Close(ctx context.Context) error

	// Get retrieves an item from the cache.
	Get(ctx context.Context, key string) (any, bool)

	// Set stores an item in the cache with a TTL. A zero TTL stores the
	// item without expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Add stores an item only if the key is not already present,
	// returning true when the write happened. This is the primitive the
	// webhook ingestion path uses for event-id deduplication.
	Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)

	// Delete removes an item from the cache.
	Delete(ctx context.Context, key string) error

	// Flush removes all items from the cache.
	Flush(ctx context.Context) error
}

// Config defines the configuration for the cache layer.
type Config struct {
	// EngineKind selects the backend: "memory" or "redis".
	EngineKind string `yaml:"engine" toml:"engine" env:"CACHE_ENGINE" default:"memory"`

	// DefaultTTL applies when callers pass a zero TTL to Set/Add.
	DefaultTTL time.Duration `yaml:"default_ttl" toml:"default_ttl" env:"CACHE_DEFAULT_TTL" default:"5m"`

	// CleanupInterval controls how often the memory engine evicts
	// expired items.
	CleanupInterval time.Duration `yaml:"cleanup_interval" toml:"cleanup_interval" env:"CACHE_CLEANUP_INTERVAL" default:"1m"`

	// RedisAddr is the host:port of the Redis server (redis engine only).
	RedisAddr string `yaml:"redis_addr" toml:"redis_addr" env:"CACHE_REDIS_ADDR" default:"localhost:6379"`

	// RedisPassword authenticates against Redis when set.
	RedisPassword string `yaml:"redis_password" toml:"redis_password" env:"CACHE_REDIS_PASSWORD"`

	// RedisDB selects the Redis logical database.
	RedisDB int `yaml:"redis_db" toml:"redis_db" env:"CACHE_REDIS_DB"`
}

// NewEngine builds the engine selected by the configuration.
func NewEngine(cfg Config) (Engine, error) {
	switch cfg.EngineKind {
	case "", "memory":
		return NewMemoryEngine(cfg), nil
	case "redis":
		return NewRedisEngine(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, cfg.EngineKind)
	}
}
