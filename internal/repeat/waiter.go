package repeat

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetryLimit is returned by Waiter.Wait once the backoff policy stops.
var ErrRetryLimit = errors.New("retry limit exceeded")

// Waiter sleeps between the attempts of an operation for the delays given by
// a backoff policy.
type Waiter struct {
	policy backoff.BackOff
	delay  time.Duration
}

func NewWaiter(policy backoff.BackOff) *Waiter {
	policy.Reset()
	return &Waiter{policy: policy}
}

// Reset starts the policy over, the next Wait uses the first delay.
func (w *Waiter) Reset() {
	w.policy.Reset()
	w.delay = 0
}

// LastDelay returns the delay of the most recent Wait.
func (w *Waiter) LastDelay() time.Duration {
	return w.delay
}

// Wait sleeps for the next delay of the policy. It returns ErrRetryLimit when
// the policy stops, and the context error when ctx is done first.
func (w *Waiter) Wait(ctx context.Context) error {
	return w.WaitAtLeast(ctx, 0)
}

// WaitAtLeast is Wait with a lower bound on the delay.
func (w *Waiter) WaitAtLeast(ctx context.Context, floor time.Duration) error {
	next := w.policy.NextBackOff()
	if next == backoff.Stop {
		return ErrRetryLimit
	}
	if next < floor {
		next = floor
	}
	w.delay = next

	t := time.NewTimer(next)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
