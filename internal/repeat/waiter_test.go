package repeat

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gotest.tools/v3/assert"
)

func TestWaiter_Reset(t *testing.T) {
	policy := newExponentialBackOff(time.Millisecond, time.Second, noJitter)
	w := NewWaiter(policy)

	assert.NilError(t, w.Wait(context.Background()))
	assert.NilError(t, w.Wait(context.Background()))
	assert.Equal(t, w.LastDelay(), 2*time.Millisecond)

	w.Reset()
	assert.Equal(t, w.LastDelay(), time.Duration(0))
	assert.NilError(t, w.Wait(context.Background()))
	assert.Equal(t, w.LastDelay(), time.Millisecond)
}

func TestWaiter_Wait(t *testing.T) {
	t.Run("error when context done", func(t *testing.T) {
		w := NewWaiter(backoff.NewConstantBackOff(time.Minute))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, w.Wait(ctx), context.Canceled)
	})
	t.Run("error when the policy stops", func(t *testing.T) {
		w := NewWaiter(&backoff.StopBackOff{})
		assert.ErrorIs(t, w.Wait(context.Background()), ErrRetryLimit)
	})
	t.Run("policy with a retry limit", func(t *testing.T) {
		w := NewWaiter(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 1))
		assert.NilError(t, w.Wait(context.Background()))
		assert.ErrorIs(t, w.Wait(context.Background()), ErrRetryLimit)
	})
	t.Run("no error on timer tick", func(t *testing.T) {
		w := NewWaiter(backoff.NewConstantBackOff(time.Millisecond))
		assert.NilError(t, w.Wait(context.Background()))
	})
}
