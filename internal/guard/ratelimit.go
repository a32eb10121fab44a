// Package guard holds the per-process admission control and result caching
// that sit in front of the lookup pipeline. Both stores are safe for
// concurrent use, keep all state in memory, and never return errors.
package guard

import (
	"sync"
	"time"
)

// RateLimitConfig configures a sliding-window RateLimiter.
type RateLimitConfig struct {
	// MaxRequests is the number of admissions allowed per key inside Window.
	MaxRequests int
	// Window is the trailing interval over which admissions are counted.
	Window time.Duration
}

// DefaultRateLimitConfig allows 30 requests per minute per key.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{MaxRequests: 30, Window: time.Minute}
}

// RateLimiter is a per-key sliding-window limiter. Each key keeps the
// timestamps of its admitted requests in arrival order; stale timestamps are
// trimmed from the front on every check, never by a background sweep.
type RateLimiter struct {
	cfg RateLimitConfig

	mu   sync.Mutex
	hits map[string][]time.Time

	now func() time.Time
}

// NewRateLimiter creates a RateLimiter. Non-positive values in cfg are
// replaced with the defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &RateLimiter{
		cfg:  cfg,
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Allow reports whether a request for key is admitted, and records it if so.
// Rejected requests are not recorded and do not consume window budget.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.cfg.Window)

	q := l.hits[key]
	drop := 0
	for drop < len(q) && q[drop].Before(windowStart) {
		drop++
	}
	q = q[drop:]

	if len(q) >= l.cfg.MaxRequests {
		l.hits[key] = q
		return false
	}

	l.hits[key] = append(q, now)
	return true
}

// Remaining returns how many more requests key may make right now.
func (l *RateLimiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Add(-l.cfg.Window)
	live := 0
	for _, ts := range l.hits[key] {
		if !ts.Before(windowStart) {
			live++
		}
	}
	if r := l.cfg.MaxRequests - live; r > 0 {
		return r
	}
	return 0
}

// Len returns the number of keys currently tracked.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}
