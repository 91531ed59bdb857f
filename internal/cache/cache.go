// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package cache

import (
	"sync"
	"time"

	"github.com/tomtom215/fleetvault/internal/clock"
	"github.com/tomtom215/fleetvault/internal/logging"
)

// Entry is a cached value with its expiry.
type Entry[V any] struct {
	Data      V
	ExpiresAt time.Time
}

// Stats tracks cache performance.
type Stats struct {
	Hits        int64
	Misses      int64
	StaleHits   int64
	Evictions   int64
	Refreshes   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// Cache is a concurrency-safe TTL cache.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]Entry[V]
	refreshing map[string]bool
	ttl        time.Duration
	clock      clock.Clock
	stats      Stats
	wg         sync.WaitGroup
}

// New creates a cache whose entries live for ttl. A nil clk means the system
// clock.
func New[V any](ttl time.Duration, clk clock.Clock) *Cache[V] {
	if clk == nil {
		clk = clock.System
	}
	return &Cache[V]{
		entries:    make(map[string]Entry[V]),
		refreshing: make(map[string]bool),
		ttl:        ttl,
		clock:      clk,
	}
}

// TTL returns the default entry lifetime.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns a fresh value. Expired entries are removed and count as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	if c.clock.Now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Evictions++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	return entry.Data, true
}

// Set stores value with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value with a custom TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry[V]{Data: value, ExpiresAt: c.clock.Now().Add(ttl)}
	c.stats.TotalKeys = int64(len(c.entries))
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
	}
	c.stats.TotalKeys = int64(len(c.entries))
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Evictions += int64(len(c.entries))
	c.entries = make(map[string]Entry[V])
	c.stats.TotalKeys = 0
}

// Cleanup drops expired entries. Load keeps expired entries around as stale
// data, so callers that only use Get may run Cleanup periodically.
func (c *Cache[V]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
	c.stats.TotalKeys = int64(len(c.entries))
	c.stats.LastCleanup = now
}

// Load returns the cached value for key, calling loader when needed.
//
//   - fresh entry: returned as is.
//   - expired entry: returned immediately while one background goroutine
//     runs loader and replaces it. Concurrent callers do not start a second
//     refresh for the same key.
//   - no entry: loader runs synchronously.
//
// A failed background refresh keeps the stale value.
func (c *Cache[V]) Load(key string, loader func() (V, error)) (V, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		if !c.clock.Now().After(entry.ExpiresAt) {
			c.stats.Hits++
			c.mu.Unlock()
			return entry.Data, nil
		}
		c.stats.StaleHits++
		if !c.refreshing[key] {
			c.refreshing[key] = true
			c.wg.Add(1)
			go c.refresh(key, loader)
		}
		c.mu.Unlock()
		return entry.Data, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	v, err := loader()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

func (c *Cache[V]) refresh(key string, loader func() (V, error)) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.refreshing, key)
		c.mu.Unlock()
	}()

	v, err := loader()
	if err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Background cache refresh failed, keeping stale entry")
		return
	}
	c.Set(key, v)

	c.mu.Lock()
	c.stats.Refreshes++
	c.mu.Unlock()
}

// Wait blocks until in-flight background refreshes finish.
func (c *Cache[V]) Wait() {
	c.wg.Wait()
}

// GetStats returns a snapshot of the counters.
func (c *Cache[V]) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// HitRate returns the hit rate as a percentage, counting stale hits as hits.
func (c *Cache[V]) HitRate() float64 {
	s := c.GetStats()
	hits := s.Hits + s.StaleHits
	total := hits + s.Misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total) * 100.0
}
