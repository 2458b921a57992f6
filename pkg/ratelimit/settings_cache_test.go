package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettingsCache_TTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	src := &stubSource{settings: Settings{Enabled: true, Calls: 7, Period: 20 * time.Second}}
	cache := NewSettingsCache(src, WithCacheClock(clock.Now), WithCacheTTL(30*time.Second))

	assert.Equal(t, 7, cache.Get(ctx).Calls)
	assert.Equal(t, int32(1), src.fetches.Load())

	clock.Advance(29 * time.Second)
	src.set(Settings{Enabled: true, Calls: 9, Period: 20 * time.Second}, nil)
	assert.Equal(t, 7, cache.Get(ctx).Calls, "still within TTL")
	assert.Equal(t, int32(1), src.fetches.Load())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 9, cache.Get(ctx).Calls)
	assert.Equal(t, int32(2), src.fetches.Load())
}

func TestSettingsCache_Fallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("default when never fetched", func(t *testing.T) {
		src := &stubSource{err: errors.New("boom")}
		cache := NewSettingsCache(src)
		assert.Equal(t, DefaultSettings(), cache.Get(ctx))
	})

	t.Run("nil source yields defaults", func(t *testing.T) {
		cache := NewSettingsCache(nil)
		assert.Equal(t, DefaultSettings(), cache.Get(ctx))
	})

	t.Run("invalid settings are treated as a failed fetch", func(t *testing.T) {
		src := &stubSource{settings: Settings{Enabled: true, Calls: 0, Period: time.Minute}}
		cache := NewSettingsCache(src)
		assert.Equal(t, DefaultSettings(), cache.Get(ctx))
	})

	t.Run("last good survives repeated failures", func(t *testing.T) {
		clock := newFakeClock()
		src := &stubSource{settings: Settings{Enabled: false, Calls: 3, Period: 15 * time.Second}}
		cache := NewSettingsCache(src, WithCacheClock(clock.Now))
		good := cache.Get(ctx)

		src.set(Settings{}, errors.New("unavailable"))
		for i := 0; i < 3; i++ {
			clock.Advance(DefaultCacheTTL)
			assert.Equal(t, good, cache.Get(ctx))
		}
	})
}

func TestSettingsCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{settings: Settings{Enabled: true, Calls: 2, Period: time.Minute}}
	cache := NewSettingsCache(src)

	assert.Equal(t, 2, cache.Get(ctx).Calls)
	src.set(Settings{Enabled: true, Calls: 4, Period: time.Minute}, nil)
	assert.Equal(t, 2, cache.Get(ctx).Calls)

	cache.Invalidate()
	assert.Equal(t, 4, cache.Get(ctx).Calls)
	assert.False(t, cache.LastFetched().IsZero())
}

func TestSettingsCache_ConcurrentGet(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{settings: Settings{Enabled: true, Calls: 5, Period: time.Minute}}
	cache := NewSettingsCache(src)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 5, cache.Get(ctx).Calls)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, src.fetches.Load(), int32(50))
	assert.GreaterOrEqual(t, src.fetches.Load(), int32(1))
}

func TestSettings_Validate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
	assert.Error(t, Settings{Calls: 0, Period: time.Minute}.Validate())
	assert.Error(t, Settings{Calls: 1, Period: 500 * time.Millisecond}.Validate())
	assert.Equal(t, "5 requests per 60 seconds", DefaultSettings().Description())
}
