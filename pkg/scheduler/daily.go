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

// Package scheduler runs the daily quota reset.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultGuard is the pause after each firing that keeps one wall-clock
// second from triggering twice.
const DefaultGuard = time.Second

// Resetter resets every user's quota.
type Resetter interface {
	ResetAll(ctx context.Context) (int, error)
}

// ResetterFunc adapts a function to Resetter.
type ResetterFunc func(ctx context.Context) (int, error)

// ResetAll calls f.
func (f ResetterFunc) ResetAll(ctx context.Context) (int, error) {
	return f(ctx)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a DailyResetScheduler.
type Option func(*DailyResetScheduler)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *DailyResetScheduler) { s.now = now }
}

// WithSleep overrides how the scheduler waits.
func WithSleep(sleep SleepFunc) Option {
	return func(s *DailyResetScheduler) { s.sleep = sleep }
}

// WithLocation sets the time zone whose midnight triggers the reset.
func WithLocation(loc *time.Location) Option {
	return func(s *DailyResetScheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithGuard overrides the post-firing guard delay.
func WithGuard(d time.Duration) Option {
	return func(s *DailyResetScheduler) { s.guard = d }
}

// WithResetHook registers a callback invoked after every firing.
func WithResetHook(hook func(users int, err error)) Option {
	return func(s *DailyResetScheduler) { s.hook = hook }
}

// DailyResetScheduler calls Resetter.ResetAll at every local midnight.
// The next firing is recomputed on each iteration, so clock and time zone
// changes correct themselves.
type DailyResetScheduler struct {
	resetter Resetter
	now      func() time.Time
	sleep    SleepFunc
	loc      *time.Location
	guard    time.Duration
	hook     func(users int, err error)

	mu      sync.RWMutex
	nextRun time.Time
	lastRun time.Time
}

// New creates a scheduler that resets through r.
func New(r Resetter, opts ...Option) *DailyResetScheduler {
	s := &DailyResetScheduler{
		resetter: r,
		now:      time.Now,
		sleep:    sleepContext,
		loc:      time.Local,
		guard:    DefaultGuard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run loops until ctx is cancelled and then returns ctx.Err(). A failed reset
// is logged and the loop continues.
func (s *DailyResetScheduler) Run(ctx context.Context) error {
	slog.Info("Daily reset scheduler started", "location", s.loc.String())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := s.now().In(s.loc)
		next := NextMidnight(now)
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()

		wait := next.Sub(now)
		slog.Debug("Next quota reset scheduled", "at", next, "in", wait)

		if err := s.sleep(ctx, wait); err != nil {
			slog.Info("Daily reset scheduler stopped")
			return err
		}

		s.fire(ctx)

		if err := s.sleep(ctx, s.guard); err != nil {
			slog.Info("Daily reset scheduler stopped")
			return err
		}
	}
}

func (s *DailyResetScheduler) fire(ctx context.Context) {
	n, err := s.resetter.ResetAll(ctx)

	s.mu.Lock()
	s.lastRun = s.now()
	s.mu.Unlock()

	if err != nil {
		slog.Error("Daily quota reset failed", "error", err)
	} else {
		slog.Info("Daily quota reset completed", "users", n)
	}
	if s.hook != nil {
		s.hook(n, err)
	}
}

// NextRun returns the instant of the pending firing, or zero before Run.
func (s *DailyResetScheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRun
}

// LastRun returns when the scheduler last fired, or zero.
func (s *DailyResetScheduler) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// NextMidnight returns 00:00:00 of the day after t in t's location.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
