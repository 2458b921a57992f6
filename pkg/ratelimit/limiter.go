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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Option configures a SlidingWindowLimiter.
type Option func(*SlidingWindowLimiter)

// WithClock overrides the limiter clock.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindowLimiter) {
		l.now = now
	}
}

// SlidingWindowLimiter admits at most Calls events per key within any trailing
// Period. Expired timestamps are evicted lazily on every read.
type SlidingWindowLimiter struct {
	store    RecordStore
	settings *SettingsCache
	now      func() time.Time

	mu     sync.Mutex
	bypass map[string]time.Time

	allowed atomic.Int64
	blocked atomic.Int64
}

// NewSlidingWindowLimiter creates a limiter over store, reading settings from cache.
func NewSlidingWindowLimiter(store RecordStore, cache *SettingsCache, opts ...Option) (*SlidingWindowLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cache == nil {
		cache = NewSettingsCache(nil)
	}

	l := &SlidingWindowLimiter{
		store:    store,
		settings: cache,
		now:      time.Now,
		bypass:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Admit decides whether one event for key is allowed and records it if so.
func (l *SlidingWindowLimiter) Admit(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrInvalidKey
	}

	s := l.settings.Get(ctx)

	if l.isBypassed(key) {
		l.allowed.Add(1)
		return Decision{Allowed: true, Limit: s.Calls, Bypassed: true}, nil
	}

	if !s.Enabled {
		l.allowed.Add(1)
		return Decision{Allowed: true, Limit: s.Calls}, nil
	}

	now := l.now()
	var decision Decision

	err := l.store.Update(ctx, key, func(ts []time.Time) []time.Time {
		ts = evict(purgeOverflow(ts, now, s), now, s.Period)

		if len(ts) >= s.Calls {
			decision = Decision{
				Allowed:    false,
				RetryAfter: retryAfter(ts, now, s.Period),
				Count:      len(ts),
				Limit:      s.Calls,
			}
			return ts
		}

		ts = append(ts, now)
		decision = Decision{
			Allowed: true,
			Count:   len(ts),
			Limit:   s.Calls,
		}
		return ts
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to admit %s: %w", key, err)
	}

	if decision.Allowed {
		l.allowed.Add(1)
	} else {
		l.blocked.Add(1)
		slog.Info("Rate limit exceeded",
			"key", key,
			"count", decision.Count,
			"limit", s.Calls,
			"period", s.Period,
			"retry_after", decision.RetryAfterSeconds())
	}
	return decision, nil
}

// Reset clears the record for key. Unknown keys are ignored.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	var cleared int
	err := l.store.Update(ctx, key, func(ts []time.Time) []time.Time {
		cleared = len(ts)
		return ts[:0]
	})
	if err != nil {
		return fmt.Errorf("failed to reset %s: %w", key, err)
	}
	if cleared > 0 {
		slog.Info("Rate limit reset", "key", key, "cleared", cleared)
	}
	return nil
}

// RequestCount returns the number of events in the current window for key.
func (l *SlidingWindowLimiter) RequestCount(ctx context.Context, key string) (int, error) {
	s := l.settings.Get(ctx)
	now := l.now()

	var count int
	err := l.store.Update(ctx, key, func(ts []time.Time) []time.Time {
		ts = evict(ts, now, s.Period)
		count = len(ts)
		return ts
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", key, err)
	}
	return count, nil
}

// Status reports the limiter state for key.
func (l *SlidingWindowLimiter) Status(ctx context.Context, key string) (Status, error) {
	s := l.settings.Get(ctx)
	now := l.now()

	var (
		count int
		retry time.Duration
	)
	err := l.store.Update(ctx, key, func(ts []time.Time) []time.Time {
		ts = evict(ts, now, s.Period)
		count = len(ts)
		retry = retryAfter(ts, now, s.Period)
		return ts
	})
	if err != nil {
		return Status{}, fmt.Errorf("failed to read status for %s: %w", key, err)
	}

	remaining := s.Calls - count
	if remaining < 0 {
		remaining = 0
	}
	st := Status{
		Enabled:    s.Enabled,
		Current:    count,
		Max:        s.Calls,
		Remaining:  remaining,
		Period:     s.Period,
		RetryAfter: retry,
		Limited:    count >= s.Calls,
	}

	l.mu.Lock()
	if until, ok := l.bypass[key]; ok && now.Before(until) {
		st.BypassedTo = &until
	}
	l.mu.Unlock()

	return st, nil
}

// GlobalStats aggregates the state of every key, evicting expired entries.
func (l *SlidingWindowLimiter) GlobalStats(ctx context.Context) (GlobalStats, error) {
	s := l.settings.Get(ctx)
	now := l.now()

	keys, err := l.store.Keys(ctx)
	if err != nil {
		return GlobalStats{}, fmt.Errorf("failed to list keys: %w", err)
	}

	stats := GlobalStats{Settings: s}
	for _, key := range keys {
		var count int
		err := l.store.Update(ctx, key, func(ts []time.Time) []time.Time {
			ts = evict(ts, now, s.Period)
			count = len(ts)
			return ts
		})
		if err != nil {
			return GlobalStats{}, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if count == 0 {
			continue
		}
		stats.ActiveKeys++
		stats.TotalActiveRequests += count
		if count >= s.Calls {
			stats.LimitedKeys++
		}
	}

	stats.TotalAllowed = l.allowed.Load()
	stats.TotalBlocked = l.blocked.Load()
	active := stats.ActiveKeys
	if active < 1 {
		active = 1
	}
	stats.AveragePerKey = float64(stats.TotalActiveRequests) / float64(active)
	return stats, nil
}

// SweepStale drops entries older than multiplier periods and removes empty
// records. A multiplier below 1 is treated as 2.
func (l *SlidingWindowLimiter) SweepStale(ctx context.Context, multiplier int) (SweepResult, error) {
	if multiplier < 1 {
		multiplier = 2
	}
	s := l.settings.Get(ctx)
	now := l.now()
	cutoff := now.Add(-time.Duration(multiplier) * s.Period)

	keys, err := l.store.Keys(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list keys: %w", err)
	}

	var result SweepResult
	for _, key := range keys {
		var before, after int
		err := l.store.Update(ctx, key, func(ts []time.Time) []time.Time {
			before = len(ts)
			ts = purgeBefore(ts, cutoff)
			after = len(ts)
			return ts
		})
		if err != nil {
			return result, fmt.Errorf("failed to sweep %s: %w", key, err)
		}

		result.RemovedRequests += before - after
		if after < before {
			result.KeysCleaned++
		}
		// Update has already removed an emptied record.
		if after == 0 {
			result.EmptyKeysRemoved++
		}
	}

	remaining, err := l.store.Keys(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list keys: %w", err)
	}
	result.RemainingKeys = len(remaining)

	l.pruneBypass(now)

	slog.Info("Rate limit sweep completed",
		"removed_requests", result.RemovedRequests,
		"users_cleaned", result.KeysCleaned,
		"empty_users_removed", result.EmptyKeysRemoved,
		"remaining_users", result.RemainingKeys)
	return result, nil
}

// DisableTemporarily lets every event for key through until d has elapsed.
func (l *SlidingWindowLimiter) DisableTemporarily(key string, d time.Duration) time.Time {
	until := l.now().Add(d)
	l.mu.Lock()
	l.bypass[key] = until
	l.mu.Unlock()
	slog.Info("Rate limiting bypassed", "key", key, "duration", d)
	return until
}

// RefreshSettings forces the next decision to refetch settings.
func (l *SlidingWindowLimiter) RefreshSettings() {
	l.settings.Invalidate()
}

// Settings returns the settings currently in effect.
func (l *SlidingWindowLimiter) Settings(ctx context.Context) Settings {
	return l.settings.Get(ctx)
}

func (l *SlidingWindowLimiter) isBypassed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.bypass[key]
	if !ok {
		return false
	}
	if l.now().Before(until) {
		return true
	}
	delete(l.bypass, key)
	return false
}

func (l *SlidingWindowLimiter) pruneBypass(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, until := range l.bypass {
		if !now.Before(until) {
			delete(l.bypass, key)
		}
	}
}

// evict drops leading timestamps strictly older than period.
func evict(ts []time.Time, now time.Time, period time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) > period {
		i++
	}
	return ts[i:]
}

// purgeBefore drops leading timestamps before cutoff.
// purgeOverflow bounds a record that grew past twice the call limit, as
// happens after calls is lowered at runtime, by dropping entries older than
// two periods.
func purgeOverflow(ts []time.Time, now time.Time, s Settings) []time.Time {
	if len(ts) <= 2*s.Calls {
		return ts
	}
	return purgeBefore(ts, now.Add(-2*s.Period))
}

func purgeBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}

// retryAfter is period minus the age of the oldest entry, in whole seconds,
// floored at zero.
func retryAfter(ts []time.Time, now time.Time, period time.Duration) time.Duration {
	if len(ts) == 0 {
		return 0
	}
	d := period - now.Sub(ts[0])
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}
