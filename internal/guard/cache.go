package guard

import (
	"sync"
	"sync/atomic"
	"time"
)

// CacheConfig configures a ResultCache.
type CacheConfig struct {
	// TTL is how long an entry stays readable after Set.
	TTL time.Duration
	// MaxItems bounds the number of stored entries.
	MaxItems int
}

// DefaultCacheConfig keeps up to 5000 results for six hours.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 6 * time.Hour, MaxItems: 5000}
}

// ResultCache is a bounded TTL cache. Expiry is checked lazily on Get; when
// full, Set evicts the single entry that expires soonest.
type ResultCache[K comparable, V any] struct {
	cfg CacheConfig

	mu      sync.Mutex
	entries map[K]cacheEntry[V]

	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries  int     `json:"entries"`
	MaxItems int     `json:"max_items"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

// NewResultCache creates a ResultCache. Non-positive values in cfg are
// replaced with the defaults.
func NewResultCache[K comparable, V any](cfg CacheConfig) *ResultCache[K, V] {
	def := DefaultCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = def.MaxItems
	}
	return &ResultCache[K, V]{
		cfg:     cfg,
		entries: make(map[K]cacheEntry[V]),
		now:     time.Now,
	}
}

// Get returns the cached value for key. An expired entry is deleted and
// reported as absent.
func (c *ResultCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return entry.value, true
}

// Set stores value under key for the configured TTL. Replacing an existing
// key never evicts another entry.
func (c *ResultCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxItems {
		c.evictEarliest()
	}
	c.entries[key] = cacheEntry[V]{value: value, expiresAt: now.Add(c.cfg.TTL)}
}

// evictEarliest drops the entry with the smallest expiry. Must be called
// with mu held.
func (c *ResultCache[K, V]) evictEarliest() {
	var (
		victim K
		oldest time.Time
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.expiresAt.Before(oldest) {
			victim, oldest, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}

// Len returns the number of stored entries, including expired ones not yet read.
func (c *ResultCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache performance statistics.
func (c *ResultCache[K, V]) Stats() CacheStats {
	entries := c.Len()
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheStats{
		Entries:  entries,
		MaxItems: c.cfg.MaxItems,
		Hits:     hits,
		Misses:   misses,
		HitRate:  hitRate,
	}
}
