// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/revocation"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newCache(cfg revocation.CacheConfig) (*revocation.ResponseCache, *clock) {
	c := &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := revocation.NewResponseCache(cfg)
	cache.SetClock(c.Now)
	return cache, c
}

func TestResponseCache(t *testing.T) {
	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{
			name: "Defaults",
			testFunc: func(t *testing.T) {
				cfg := revocation.NewResponseCache(revocation.CacheConfig{MaxSize: -3}).Config()
				assert.Equal(t, 0, cfg.MaxSize)
				assert.Equal(t, time.Hour, cfg.CleanupInterval)
				assert.Equal(t, 24*time.Hour, cfg.MaxAge)
			},
		},
		{
			name: "Get Returns Copy",
			testFunc: func(t *testing.T) {
				cache, clk := newCache(revocation.DefaultCacheConfig())
				cache.Set("http://crl.test/a", []byte("abc"), clk.now.Add(time.Hour))

				data, ok := cache.Get("http://crl.test/a")
				require.True(t, ok)
				data[0] = 'x'

				again, ok := cache.Get("http://crl.test/a")
				require.True(t, ok)
				assert.Equal(t, []byte("abc"), again)
			},
		},
		{
			name: "Stale After Next Update",
			testFunc: func(t *testing.T) {
				cache, clk := newCache(revocation.DefaultCacheConfig())
				cache.Set("u", []byte("x"), clk.now.Add(time.Hour))

				clk.now = clk.now.Add(2 * time.Hour)
				_, ok := cache.Get("u")
				assert.False(t, ok)

				m := cache.Metrics()
				assert.Equal(t, int64(1), m.Misses)
				assert.Equal(t, int64(1), m.Size)
			},
		},
		{
			name: "No Next Update Uses Max Age",
			testFunc: func(t *testing.T) {
				cfg := revocation.DefaultCacheConfig()
				cfg.MaxAge = 10 * time.Minute
				cache, clk := newCache(cfg)
				cache.Set("u", []byte("x"), time.Time{})

				clk.now = clk.now.Add(5 * time.Minute)
				_, ok := cache.Get("u")
				assert.True(t, ok)

				clk.now = clk.now.Add(10 * time.Minute)
				_, ok = cache.Get("u")
				assert.False(t, ok)
			},
		},
		{
			name: "Evicts Least Recently Used",
			testFunc: func(t *testing.T) {
				cfg := revocation.DefaultCacheConfig()
				cfg.MaxSize = 2
				cache, clk := newCache(cfg)
				next := clk.now.Add(time.Hour)

				cache.Set("a", []byte("a"), next)
				cache.Set("b", []byte("b"), next)
				_, ok := cache.Get("a")
				require.True(t, ok)
				cache.Set("c", []byte("c"), next)

				_, ok = cache.Get("b")
				assert.False(t, ok, "b was least recently used")
				_, ok = cache.Get("a")
				assert.True(t, ok)
				_, ok = cache.Get("c")
				assert.True(t, ok)
				assert.Equal(t, int64(1), cache.Metrics().Evictions)
			},
		},
		{
			name: "Cleanup Drops Expired",
			testFunc: func(t *testing.T) {
				cache, clk := newCache(revocation.DefaultCacheConfig())
				cache.Set("old", []byte("o"), clk.now.Add(time.Minute))
				cache.Set("new", []byte("n"), clk.now.Add(48*time.Hour))

				clk.now = clk.now.Add(3 * time.Hour)
				assert.Equal(t, 1, cache.Cleanup())

				m := cache.Metrics()
				assert.Equal(t, int64(1), m.Size)
				assert.Equal(t, int64(1), m.Cleanups)
			},
		},
		{
			name: "Clear And Stats",
			testFunc: func(t *testing.T) {
				cache, clk := newCache(revocation.DefaultCacheConfig())
				cache.Set("u", make([]byte, 2048), clk.now.Add(time.Hour))
				_, _ = cache.Get("u")
				_, _ = cache.Get("missing")

				stats := cache.Stats()
				assert.Contains(t, stats, "Size: 1/100 entries")
				assert.Contains(t, stats, "Hit Rate: 50.0% (1 hits, 1 misses)")

				cache.Clear()
				assert.Equal(t, revocation.CacheMetrics{}, cache.Metrics())
			},
		},
		{
			name: "Run Stops With Context",
			testFunc: func(t *testing.T) {
				cache := revocation.NewResponseCache(revocation.CacheConfig{CleanupInterval: time.Millisecond})
				ctx, cancel := context.WithCancel(context.Background())
				done := make(chan struct{})
				go func() {
					cache.Run(ctx)
					close(done)
				}()
				cancel()

				select {
				case <-done:
				case <-time.After(2 * time.Second):
					t.Fatal("Run did not return after cancel")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}
