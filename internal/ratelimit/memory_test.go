package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMemoryLimiter(t *testing.T, options Options) (*MemoryLimiter, *fakeClock) {
	t.Helper()
	limiter, err := NewMemoryLimiter(options)
	assert.NilError(t, err)

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter.Now = clock.Now
	return limiter, clock
}

func allowed(t *testing.T, l Limiter, key string) bool {
	t.Helper()
	decision, err := l.Allow(context.Background(), key)
	assert.NilError(t, err)
	return decision.Allowed
}

func TestNewMemoryLimiter_InvalidOptions(t *testing.T) {
	_, err := NewMemoryLimiter(Options{MaxRequests: 0, Window: time.Minute})
	assert.ErrorContains(t, err, "max requests")

	_, err = NewMemoryLimiter(Options{MaxRequests: 1})
	assert.ErrorContains(t, err, "window")
}

func TestMemoryLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("quota within a window", func(t *testing.T) {
		limiter, _ := newTestMemoryLimiter(t, Options{MaxRequests: 3, Window: time.Minute})

		var results []bool
		for i := 0; i < 4; i++ {
			results = append(results, allowed(t, limiter, "k"))
		}
		assert.DeepEqual(t, results, []bool{true, true, true, false})
	})

	t.Run("retry after is the time left in the window", func(t *testing.T) {
		limiter, clock := newTestMemoryLimiter(t, Options{MaxRequests: 1, Window: time.Minute})

		assert.Assert(t, allowed(t, limiter, "k"))
		clock.Advance(15 * time.Second)

		decision, err := limiter.Allow(ctx, "k")
		assert.NilError(t, err)
		assert.Assert(t, !decision.Allowed)
		assert.Equal(t, decision.RetryAfter, 45*time.Second)
		assert.Equal(t, decision.RetryAfterSeconds(), 45)
	})

	t.Run("retry after override", func(t *testing.T) {
		limiter, _ := newTestMemoryLimiter(t, Options{MaxRequests: 1, Window: time.Minute, RetryAfter: 5 * time.Second})

		assert.Assert(t, allowed(t, limiter, "k"))
		decision, err := limiter.Allow(ctx, "k")
		assert.NilError(t, err)
		assert.Equal(t, decision.RetryAfter, 5*time.Second)
	})

	t.Run("window reset", func(t *testing.T) {
		limiter, clock := newTestMemoryLimiter(t, Options{MaxRequests: 3, Window: time.Minute})

		for i := 0; i < 3; i++ {
			assert.Assert(t, allowed(t, limiter, "k"))
		}
		assert.Assert(t, !allowed(t, limiter, "k"))

		clock.Advance(time.Minute)
		assert.Assert(t, allowed(t, limiter, "k"))

		status, err := limiter.Status(ctx, "k")
		assert.NilError(t, err)
		assert.Equal(t, status.Count, 1)
		assert.Equal(t, status.Remaining, 2)
		assert.Equal(t, status.ResetTime, clock.Now().Add(time.Minute))
	})

	t.Run("keys are counted separately", func(t *testing.T) {
		limiter, _ := newTestMemoryLimiter(t, Options{MaxRequests: 1, Window: time.Minute})

		for _, key := range []string{"user1:grist-key", "user2:grist-key", "user1:grist-api"} {
			assert.Assert(t, allowed(t, limiter, key))
			assert.Assert(t, !allowed(t, limiter, key))
		}
	})

	t.Run("expired entries are cleaned up", func(t *testing.T) {
		limiter, clock := newTestMemoryLimiter(t, Options{MaxRequests: 5, Window: time.Minute})

		allowed(t, limiter, "a")
		allowed(t, limiter, "b")
		assert.Equal(t, limiter.Len(), 2)

		clock.Advance(2 * time.Minute)
		allowed(t, limiter, "c")
		assert.Equal(t, limiter.Len(), 1)
	})
}

func TestMemoryLimiter_Status(t *testing.T) {
	ctx := context.Background()
	limiter, clock := newTestMemoryLimiter(t, Options{MaxRequests: 2, Window: time.Minute})

	status, err := limiter.Status(ctx, "k")
	assert.NilError(t, err)
	assert.DeepEqual(t, status, Status{Count: 0, Remaining: 2, ResetTime: clock.Now().Add(time.Minute)})

	allowed(t, limiter, "k")
	allowed(t, limiter, "k")
	allowed(t, limiter, "k")

	status, err = limiter.Status(ctx, "k")
	assert.NilError(t, err)
	assert.DeepEqual(t, status, Status{Count: 2, Remaining: 0, ResetTime: clock.Now().Add(time.Minute)})

	// status does not record an operation
	status2, err := limiter.Status(ctx, "k")
	assert.NilError(t, err)
	assert.DeepEqual(t, status, status2)
}

func TestMemoryLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestMemoryLimiter(t, Options{MaxRequests: 1, Window: time.Hour})

	assert.Assert(t, allowed(t, limiter, "k"))
	assert.Assert(t, !allowed(t, limiter, "k"))

	assert.NilError(t, limiter.Reset(ctx, "k"))
	assert.Assert(t, allowed(t, limiter, "k"))

	// resetting an unknown key is a noop
	assert.NilError(t, limiter.Reset(ctx, "unknown"))
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	limiter, _ := newTestMemoryLimiter(t, Options{MaxRequests: 50, Window: time.Hour})

	var wg sync.WaitGroup
	var mu sync.Mutex
	count := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := limiter.Allow(context.Background(), "shared")
			assert.Check(t, err)
			if decision.Allowed {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, count, 50)
}

func TestCheck(t *testing.T) {
	limiter, _ := newTestMemoryLimiter(t, Options{MaxRequests: 1, Window: time.Minute})

	assert.NilError(t, Check(context.Background(), limiter, "k"))

	err := Check(context.Background(), limiter, "k")
	var overLimit *OverLimitError
	assert.Assert(t, errors.As(err, &overLimit))
	assert.Equal(t, overLimit.RetryAfter, time.Minute)
	assert.ErrorContains(t, err, "over limit")
}
