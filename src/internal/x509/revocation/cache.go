// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package revocation

import (
	"bytes"
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// CacheEntry is one cached response with its freshness metadata.
type CacheEntry struct {
	Data       []byte    // Raw response bytes
	FetchedAt  time.Time // When the response was downloaded
	NextUpdate time.Time // nextUpdate announced by the response, may be zero
	URL        string    // Key and source URL
}

// fresh reports whether the entry may be served at now. Responses without a
// nextUpdate are served for maxAge after download.
func (e *CacheEntry) fresh(now time.Time, maxAge time.Duration) bool {
	if now.Sub(e.FetchedAt) > maxAge {
		return false
	}
	return e.NextUpdate.IsZero() || e.NextUpdate.After(now)
}

// expired reports whether cleanup may drop the entry.
func (e *CacheEntry) expired(now time.Time, maxAge, grace time.Duration) bool {
	if !e.NextUpdate.IsZero() {
		return e.NextUpdate.Before(now.Add(-grace))
	}
	return now.Sub(e.FetchedAt) > maxAge+grace
}

// CacheConfig holds the response cache limits.
type CacheConfig struct {
	MaxSize         int           // Maximum number of entries, 0 means unlimited
	CleanupInterval time.Duration // Period of the [ResponseCache.Run] loop
	MaxAge          time.Duration // Upper bound on serving one download
	Grace           time.Duration // How long past nextUpdate an entry survives cleanup
}

// DefaultCacheConfig returns the limits used when none are given.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxSize:         100,
		CleanupInterval: time.Hour,
		MaxAge:          24 * time.Hour,
		Grace:           time.Hour,
	}
}

func (c CacheConfig) normalized() CacheConfig {
	def := DefaultCacheConfig()
	if c.MaxSize < 0 {
		c.MaxSize = 0
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = def.MaxAge
	}
	if c.Grace < 0 {
		c.Grace = 0
	}
	return c
}

// CacheMetrics tracks cache usage.
type CacheMetrics struct {
	Size        int64 // Current number of entries
	Hits        int64
	Misses      int64
	Evictions   int64 // Entries dropped to make room
	Cleanups    int64 // Entries dropped by cleanup
	TotalMemory int64 // Approximate bytes held
}

// ResponseCache is an LRU cache of revocation responses keyed by URL.
//
// Thread Safety: Safe for concurrent use.
type ResponseCache struct {
	mu      sync.Mutex
	cfg     CacheConfig
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	metrics CacheMetrics
	now     func() time.Time
}

// NewResponseCache creates an empty cache. Zero fields of cfg take their
// [DefaultCacheConfig] values, except MaxSize where zero means unlimited.
func NewResponseCache(cfg CacheConfig) *ResponseCache {
	return &ResponseCache{
		cfg:     cfg.normalized(),
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// SetClock replaces the time source. It exists for tests and must be called
// before the cache is shared.
func (c *ResponseCache) SetClock(now func() time.Time) { c.now = now }

// Config returns the effective configuration.
func (c *ResponseCache) Config() CacheConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Get returns a copy of the fresh entry stored under url.
func (c *ResponseCache) Get(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[url]
	if !ok || !el.Value.(*CacheEntry).fresh(c.now(), c.cfg.MaxAge) {
		c.metrics.Misses++
		return nil, false
	}
	c.metrics.Hits++
	c.order.MoveToFront(el)
	return bytes.Clone(el.Value.(*CacheEntry).Data), true
}

// Set stores a copy of data under url, evicting the least recently used
// entries when the cache is full.
func (c *ResponseCache) Set(url string, data []byte, nextUpdate time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &CacheEntry{
		Data:       bytes.Clone(data),
		FetchedAt:  c.now(),
		NextUpdate: nextUpdate,
		URL:        url,
	}
	if el, ok := c.entries[url]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}

	for c.cfg.MaxSize > 0 && len(c.entries) >= c.cfg.MaxSize {
		c.removeLocked(c.order.Back())
		c.metrics.Evictions++
	}
	c.entries[url] = c.order.PushFront(entry)
}

func (c *ResponseCache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.entries, el.Value.(*CacheEntry).URL)
}

// Cleanup drops every expired entry and returns how many were removed.
func (c *ResponseCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*CacheEntry).expired(now, c.cfg.MaxAge, c.cfg.Grace) {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	c.metrics.Cleanups += int64(removed)
	return removed
}

// Run calls [ResponseCache.Cleanup] every CleanupInterval until ctx is done.
func (c *ResponseCache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.Config().CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// Clear drops all entries and resets the counters.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.metrics = CacheMetrics{}
}

// Metrics returns a snapshot of the counters.
func (c *ResponseCache) Metrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.metrics
	m.Size = int64(len(c.entries))
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*CacheEntry)
		m.TotalMemory += int64(len(e.Data)+len(e.URL)) + 48
	}
	return m
}

// Stats renders the counters for humans.
func (c *ResponseCache) Stats() string {
	m := c.Metrics()
	cfg := c.Config()

	hitRate := 0.0
	if total := m.Hits + m.Misses; total > 0 {
		hitRate = float64(m.Hits) / float64(total) * 100
	}

	limit := "unlimited"
	if cfg.MaxSize > 0 {
		limit = fmt.Sprint(cfg.MaxSize)
	}

	return fmt.Sprintf("Revocation Cache Statistics:\n"+
		"  Size: %d/%s entries\n"+
		"  Memory Usage: %.2f KB\n"+
		"  Hit Rate: %.1f%% (%d hits, %d misses)\n"+
		"  Evictions: %d\n"+
		"  Cleanups: %d\n"+
		"  Cleanup Interval: %v",
		m.Size, limit,
		float64(m.TotalMemory)/1024,
		hitRate, m.Hits, m.Misses,
		m.Evictions,
		m.Cleanups,
		cfg.CleanupInterval)
}
