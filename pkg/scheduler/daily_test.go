package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simClock advances only when the scheduler sleeps.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type recordingResetter struct {
	mu     sync.Mutex
	clock  *simClock
	at     []time.Time
	failOn map[int]bool
	stopAt int
	cancel context.CancelFunc
}

func (r *recordingResetter) ResetAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.at = append(r.at, r.clock.Now())
	n := len(r.at)
	if n >= r.stopAt {
		r.cancel()
	}
	if r.failOn[n] {
		return 0, errors.New("store unavailable")
	}
	return 3, nil
}

func TestNextMidnight(t *testing.T) {
	utc := time.UTC
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, utc), NextMidnight(time.Date(2025, 3, 1, 13, 45, 0, 0, utc)))
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, utc), NextMidnight(time.Date(2025, 3, 1, 0, 0, 0, 0, utc)))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, utc), NextMidnight(time.Date(2025, 12, 31, 23, 59, 59, 0, utc)))

	loc := time.FixedZone("UTC+3", 3*3600)
	got := NextMidnight(time.Date(2025, 3, 1, 22, 30, 0, 0, utc).In(loc))
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, loc), got)
}

func TestScheduler_FiresOncePerDay(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	clock := &simClock{now: time.Date(2025, 3, 1, 15, 20, 0, 0, loc)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &recordingResetter{clock: clock, stopAt: 4, cancel: cancel}
	var hookCalls int
	s := New(r,
		WithClock(clock.Now),
		WithSleep(clock.sleep),
		WithLocation(loc),
		WithResetHook(func(users int, err error) { hookCalls++ }),
	)

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, r.at, 4)
	assert.Equal(t, 4, hookCalls)
	days := make(map[string]bool)
	for i, at := range r.at {
		local := at.In(loc)
		assert.Equal(t, 0, local.Hour())
		assert.Equal(t, 0, local.Minute())
		assert.Equal(t, 0, local.Second())
		day := local.Format("2006-01-02")
		assert.False(t, days[day], "fired twice on %s", day)
		days[day] = true
		if i > 0 {
			assert.Equal(t, 24*time.Hour, at.Sub(r.at[i-1]))
		}
	}
	assert.True(t, days["2025-03-02"])
	assert.False(t, s.LastRun().IsZero())
}

func TestScheduler_FailureDoesNotStopLoop(t *testing.T) {
	clock := &simClock{now: time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &recordingResetter{clock: clock, stopAt: 3, cancel: cancel, failOn: map[int]bool{1: true, 2: true}}
	var failures int
	s := New(r,
		WithClock(clock.Now),
		WithSleep(clock.sleep),
		WithLocation(time.UTC),
		WithResetHook(func(users int, err error) {
			if err != nil {
				failures++
			}
		}),
	)

	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.Len(t, r.at, 3)
	assert.Equal(t, 2, failures)
}

func TestScheduler_CancelWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	called := false
	s := New(ResetterFunc(func(context.Context) (int, error) {
		called = true
		return 0, nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return !s.NextRun().IsZero() }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, called)
	assert.True(t, s.NextRun().After(time.Now()))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleepContext(ctx, 0), context.Canceled)
}
