package cache

import (
	"context"
	"sync"
	"time"

	"github.com/amirasaad/carefund/pkg/cache"
	"github.com/amirasaad/carefund/pkg/domain/allocation"
)

// MemoryCache implements cache.RuleCache using in-memory storage.
type MemoryCache struct {
	cache map[string]*cacheEntry
	mu    sync.RWMutex
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

type cacheEntry struct {
	rules     allocation.RuleSet
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache and starts its cleanup loop.
// Call Close to stop it.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		cache: make(map[string]*cacheEntry),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go c.cleanup(5 * time.Minute)
	return c
}

// Get returns a copy of the cached table.
func (c *MemoryCache) Get(_ context.Context, key string) (allocation.RuleSet, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.cache[key]
	if !exists || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.rules.Sorted(), true, nil
}

// Set stores a table with TTL. A non-positive ttl never expires.
func (c *MemoryCache) Set(_ context.Context, key string, rules allocation.RuleSet, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if ttl <= 0 {
		expiresAt = time.Unix(1<<62, 0)
	}
	c.cache[key] = &cacheEntry{rules: rules.Sorted(), expiresAt: expiresAt}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cache, key)
	return nil
}

// Close stops the cleanup loop.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanup removes expired entries from cache
func (c *MemoryCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, entry := range c.cache {
				if now.After(entry.expiresAt) {
					delete(c.cache, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

var _ cache.RuleCache = (*MemoryCache)(nil)
