package automation

import "time"

// Cache is an abstraction for caching the enabled-automations list between
// trigger events, so a burst of row changes does not hit the database once
// per event. Swappable for Redis or other implementations.
type Cache interface {
	// Get retrieves cached automations, returns nil if cache miss or expired
	Get() []*Automation

	// Set stores automations in cache
	Set(automations []*Automation)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Set to 0 for no expiration (manual invalidation only).
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults: no TTL, invalidate on
// definition mutations only.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
