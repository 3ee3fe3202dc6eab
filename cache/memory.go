package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryEngine implements Engine using in-process storage.
type MemoryEngine struct {
	cfg        Config
	items      map[string]memoryItem
	mutex      sync.RWMutex
	cancelFunc context.CancelFunc
}

type memoryItem struct {
	value      any
	expiration time.Time
}

// NewMemoryEngine creates a new in-memory cache engine.
func NewMemoryEngine(cfg Config) *MemoryEngine {
	return &MemoryEngine{
		cfg:   cfg,
		items: make(map[string]memoryItem),
	}
}

// Connect starts the background cleanup routine.
func (c *MemoryEngine) Connect(_ context.Context) error {
	cleanupCtx, cancel := context.WithCancel(context.Background())
	c.cancelFunc = cancel
	go c.startCleanupTimer(cleanupCtx)
	return nil
}

// Close stops the cleanup routine.
func (c *MemoryEngine) Close(_ context.Context) error {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	return nil
}

// Get retrieves an item from the cache.
func (c *MemoryEngine) Get(_ context.Context, key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, found := c.items[key]
	if !found {
		return nil, false
	}
	if item.expired(time.Now()) {
		return nil, false
	}
	return item.value, true
}

// Set stores an item in the cache.
func (c *MemoryEngine) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = memoryItem{value: value, expiration: c.expiry(ttl)}
	return nil
}

// Add stores an item only when the key is not already present.
func (c *MemoryEngine) Add(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if item, found := c.items[key]; found && !item.expired(time.Now()) {
		return false, nil
	}
	c.items[key] = memoryItem{value: value, expiration: c.expiry(ttl)}
	return true, nil
}

// Delete removes an item from the cache.
func (c *MemoryEngine) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
	return nil
}

// Flush removes all items from the cache.
func (c *MemoryEngine) Flush(_ context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]memoryItem)
	return nil
}

func (c *MemoryEngine) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}

func (c *MemoryEngine) startCleanupTimer(ctx context.Context) {
	interval := c.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpiredItems()
		case <-ctx.Done():
			return
		}
	}
}

func (c *MemoryEngine) cleanupExpiredItems() {
	now := time.Now()
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
		}
	}
}
