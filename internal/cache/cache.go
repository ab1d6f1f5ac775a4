// Package cache provides a small in-process TTL cache with an injectable
// clock. Staleness is bounded by the TTL alone; nothing invalidates entries.
package cache

import (
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Recorder observes lookups. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveCacheLookup(cache string, hit bool)
}

// Entry is a cached value and the moment it stops being served.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Options configures a TTL cache.
type Options struct {
	// Name labels lookups in the Recorder.
	Name string
	TTL  time.Duration
	// MaxEntries is the size at which inserts start evicting. Zero disables
	// storage entirely, so every lookup misses.
	MaxEntries int
	Clock      Clock
	Recorder   Recorder
}

// TTL is a string-keyed cache safe for concurrent use. Concurrent misses
// on one key both compute; the last Set wins.
type TTL[V any] struct {
	mu      sync.Mutex
	entries map[string]Entry[V]
	opts    Options
}

// New creates a TTL cache.
func New[V any](opts Options) *TTL[V] {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &TTL[V]{
		entries: make(map[string]Entry[V]),
		opts:    opts,
	}
}

// Get returns the value for key if it has not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	now := c.opts.Clock.Now()

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	hit := ok && now.Before(e.ExpiresAt)
	if c.opts.Recorder != nil {
		c.opts.Recorder.ObserveCacheLookup(c.opts.Name, hit)
	}
	if !hit {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Set stores value under key for the configured TTL.
func (c *TTL[V]) Set(key string, value V) {
	if c.opts.MaxEntries <= 0 || c.opts.TTL <= 0 {
		return
	}
	now := c.opts.Clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.opts.MaxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = Entry[V]{Value: value, ExpiresAt: now.Add(c.opts.TTL)}
}

// Purge drops expired entries and returns how many were removed.
func (c *TTL[V]) Purge() int {
	now := c.opts.Clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries and, if the map is still full, the entry
// closest to expiry.
func (c *TTL[V]) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.opts.MaxEntries {
		return
	}

	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.ExpiresAt.Before(oldest) {
			oldestKey, oldest, found = k, e.ExpiresAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
