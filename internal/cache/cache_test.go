// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/fleetvault/internal/clock"
)

func newTestCache(ttl time.Duration) (*Cache[string], *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	return New[string](ttl, clk), clk
}

func TestCacheBasicOperations(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(time.Minute)

	c.Set("key1", "value1")
	value, exists := c.Get("key1")
	if !exists {
		t.Error("Expected key1 to exist")
	}
	if value != "value1" {
		t.Errorf("Expected value1, got %v", value)
	}

	if _, exists = c.Get("key2"); exists {
		t.Error("Expected key2 to not exist")
	}
}

func TestCacheExpiration(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(5 * time.Minute)
	c.Set("key1", "value1")

	clk.Add(4 * time.Minute)
	if _, ok := c.Get("key1"); !ok {
		t.Error("Expected key1 to exist before TTL")
	}

	clk.Add(2 * time.Minute)
	if _, ok := c.Get("key1"); ok {
		t.Error("Expected key1 to be expired")
	}

	stats := c.GetStats()
	if stats.Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(time.Minute)
	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")

	c.Delete("key1")
	if _, ok := c.Get("key1"); ok {
		t.Error("Expected key1 to be deleted")
	}

	c.Clear()
	for _, key := range []string{"key2", "key3"} {
		if _, ok := c.Get(key); ok {
			t.Errorf("Expected %s to be cleared", key)
		}
	}
	if got := c.GetStats().TotalKeys; got != 0 {
		t.Errorf("TotalKeys = %d after Clear", got)
	}
}

func TestCacheCleanup(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(time.Minute)
	c.Set("short", "a")
	c.SetWithTTL("long", "b", time.Hour)

	clk.Add(2 * time.Minute)
	c.Cleanup()

	stats := c.GetStats()
	if stats.TotalKeys != 1 {
		t.Errorf("TotalKeys = %d, want 1", stats.TotalKeys)
	}
	if !stats.LastCleanup.Equal(clk.Now()) {
		t.Errorf("LastCleanup = %v, want %v", stats.LastCleanup, clk.Now())
	}
}

func TestCacheLoadMissRunsLoader(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(time.Minute)
	var calls atomic.Int32

	for i := 0; i < 3; i++ {
		v, err := c.Load("dev", func() (string, error) {
			calls.Add(1)
			return "files", nil
		})
		if err != nil || v != "files" {
			t.Fatalf("Load = %q, %v", v, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("loader called %d times, want 1", calls.Load())
	}
}

func TestCacheLoadErrorNotCached(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(time.Minute)
	wantErr := errors.New("disk unavailable")

	if _, err := c.Load("dev", func() (string, error) { return "", wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("Load error = %v", err)
	}
	if _, ok := c.Get("dev"); ok {
		t.Error("failed load should not populate the cache")
	}
}

func TestCacheLoadStaleWhileRevalidate(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(5 * time.Minute)
	c.Set("dev", "old")
	clk.Add(6 * time.Minute)

	release := make(chan struct{})
	var calls atomic.Int32
	loader := func() (string, error) {
		calls.Add(1)
		<-release
		return "new", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Load("dev", loader)
			if err != nil || v != "old" {
				t.Errorf("stale Load = %q, %v", v, err)
			}
		}()
	}
	wg.Wait()
	close(release)
	c.Wait()

	if calls.Load() != 1 {
		t.Errorf("background refresh ran %d times, want 1", calls.Load())
	}
	if v, ok := c.Get("dev"); !ok || v != "new" {
		t.Errorf("after refresh Get = %q, %v", v, ok)
	}
	if c.GetStats().Refreshes != 1 {
		t.Errorf("Refreshes = %d", c.GetStats().Refreshes)
	}
}

func TestCacheLoadFailedRefreshKeepsStale(t *testing.T) {
	t.Parallel()

	c, clk := newTestCache(time.Minute)
	c.Set("dev", "old")
	clk.Add(2 * time.Minute)

	v, err := c.Load("dev", func() (string, error) { return "", errors.New("boom") })
	if err != nil || v != "old" {
		t.Fatalf("Load = %q, %v", v, err)
	}
	c.Wait()

	v, err = c.Load("dev", func() (string, error) { return "", errors.New("boom") })
	if err != nil || v != "old" {
		t.Errorf("second Load = %q, %v", v, err)
	}
	c.Wait()
}

func TestCacheHitRate(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(time.Minute)
	if c.HitRate() != 0 {
		t.Error("empty cache hit rate should be 0")
	}
	c.Set("a", "1")
	c.Get("a")
	c.Get("b")
	if got := c.HitRate(); got != 50.0 {
		t.Errorf("HitRate = %v, want 50", got)
	}
}
