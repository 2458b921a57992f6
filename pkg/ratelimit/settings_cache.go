// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long fetched settings are served before a refetch.
const DefaultCacheTTL = 30 * time.Second

// SettingsSource supplies limiter settings. Implementations may block on I/O.
type SettingsSource interface {
	GetRateLimitSettings(ctx context.Context) (Settings, error)
}

// SettingsSourceFunc adapts a function to SettingsSource.
type SettingsSourceFunc func(ctx context.Context) (Settings, error)

// GetRateLimitSettings calls f.
func (f SettingsSourceFunc) GetRateLimitSettings(ctx context.Context) (Settings, error) {
	return f(ctx)
}

// CacheOption configures a SettingsCache.
type CacheOption func(*SettingsCache)

// WithCacheTTL overrides the cache TTL.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *SettingsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock overrides the clock used for TTL checks.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *SettingsCache) {
		c.now = now
	}
}

// SettingsCache memoizes settings from a SettingsSource.
//
// A failed fetch never surfaces to callers: the last good snapshot is served,
// or DefaultSettings when no fetch has succeeded yet.
type SettingsCache struct {
	source SettingsSource
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	current   *Settings
	fetchedAt time.Time
	stale     bool

	group singleflight.Group
}

// NewSettingsCache creates a cache over source. A nil source always yields
// DefaultSettings.
func NewSettingsCache(source SettingsSource, opts ...CacheOption) *SettingsCache {
	c := &SettingsCache{
		source: source,
		ttl:    DefaultCacheTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current settings, refetching when the TTL has elapsed.
func (c *SettingsCache) Get(ctx context.Context) Settings {
	c.mu.RLock()
	if c.current != nil && !c.stale && c.now().Sub(c.fetchedAt) < c.ttl {
		s := *c.current
		c.mu.RUnlock()
		return s
	}
	c.mu.RUnlock()

	v, _, _ := c.group.Do("settings", func() (any, error) {
		return c.refresh(ctx), nil
	})
	return v.(Settings)
}

// Invalidate forces the next Get to refetch. The last good snapshot is kept
// as the fallback.
func (c *SettingsCache) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
	slog.Info("Rate limit settings cache invalidated")
}

// LastFetched returns when settings were last fetched successfully.
func (c *SettingsCache) LastFetched() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

func (c *SettingsCache) refresh(ctx context.Context) Settings {
	if c.source == nil {
		return c.fallback()
	}

	s, err := c.source.GetRateLimitSettings(ctx)
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		fb := c.fallback()
		slog.Warn("Failed to fetch rate limit settings, using fallback",
			"error", err, "calls", fb.Calls, "period", fb.Period)
		return fb
	}

	c.mu.Lock()
	c.current = &s
	c.fetchedAt = c.now()
	c.stale = false
	c.mu.Unlock()

	slog.Debug("Rate limit settings refreshed", "enabled", s.Enabled, "calls", s.Calls, "period", s.Period)
	return s
}

func (c *SettingsCache) fallback() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current != nil {
		return *c.current
	}
	return DefaultSettings()
}
