package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestMemoryThrottleBlocksSixthAttempt(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	th := NewMemoryThrottle(5, 10*time.Minute)
	th.now = clk.now
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := th.Hit(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i)
		assert.Equal(t, 5-i, d.Remaining())
		clk.advance(time.Minute)
	}

	d, err := th.Hit(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 5*time.Minute, d.RetryAfter)

	other, _ := th.Hit(ctx, "5.6.7.8")
	assert.True(t, other.Allowed, "keys are counted independently")
}

func TestMemoryThrottleResetsAfterWindow(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	th := NewMemoryThrottle(5, 10*time.Minute)
	th.now = clk.now
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, _ = th.Hit(ctx, "k")
	}
	clk.advance(9*time.Minute + 59*time.Second)
	d, _ := th.Hit(ctx, "k")
	assert.False(t, d.Allowed)

	clk.advance(time.Second)
	d, _ = th.Hit(ctx, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestMemoryThrottleSweepsElapsedWindows(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	th := NewMemoryThrottle(5, time.Minute)
	th.now = clk.now
	ctx := context.Background()

	_, _ = th.Hit(ctx, "a")
	_, _ = th.Hit(ctx, "b")
	clk.advance(2 * time.Minute)
	_, _ = th.Hit(ctx, "c")

	th.mu.Lock()
	defer th.mu.Unlock()
	assert.Len(t, th.entries, 1)
}

func TestMemoryThrottleConcurrentHits(t *testing.T) {
	th := NewMemoryThrottle(5, time.Hour)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := th.Hit(context.Background(), "same")
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}

func TestRedisThrottle(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	th := NewRedisThrottle(rdb, 5, 10*time.Minute, "login", zap.NewNop())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := th.Hit(ctx, "9.9.9.9")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i)
		assert.Equal(t, i, d.Count)
	}
	d, err := th.Hit(ctx, "9.9.9.9")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 10*time.Minute)
	assert.True(t, mr.Exists("login:9.9.9.9"))

	mr.FastForward(10 * time.Minute)
	d, err = th.Hit(ctx, "9.9.9.9")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestRedisThrottleFallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	th := NewRedisThrottle(rdb, 2, time.Minute, "login", zap.NewNop())
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := th.Hit(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := th.Hit(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, d.Allowed, "a broken redis must not let attempts through unbounded")
}
