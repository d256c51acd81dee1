package automation

import (
	"sync"
	"time"
)

// InMemoryCache is a simple in-memory implementation of Cache. Thread-safe
// for concurrent access.
type InMemoryCache struct {
	automations []*Automation
	cachedAt    time.Time
	config      CacheConfig
	isValid     bool
	mu          sync.RWMutex
}

// NewInMemoryCache creates a new in-memory automations cache.
func NewInMemoryCache(config CacheConfig) *InMemoryCache {
	return &InMemoryCache{config: config}
}

// Get retrieves cached automations. Returns nil if the cache is invalid or
// expired.
func (c *InMemoryCache) Get() []*Automation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return nil
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	// Return a copy to prevent external modifications.
	out := make([]*Automation, len(c.automations))
	copy(out, c.automations)
	return out
}

// Set stores automations in the cache.
func (c *InMemoryCache) Set(automations []*Automation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.automations = make([]*Automation, len(automations))
	copy(c.automations, automations)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache.
func (c *InMemoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.automations = nil
}

// IsValid returns true if the cache contains valid data.
func (c *InMemoryCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}
	return true
}
