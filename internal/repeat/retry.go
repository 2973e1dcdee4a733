package repeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gristips/gristips/internal/logging"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

type RetryOptions struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnRetry is called after the backoff delay, just before a failed
	// operation is called again.
	OnRetry func(state RetryState, err error)
}

// RetryState describes one call to Execute. It is created for every call and
// discarded once the call returns.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Delay       time.Duration
}

// Retrier calls an operation until it succeeds, fails with an error that is
// not retryable, or runs out of attempts. A Retrier holds no state between
// calls and may be shared.
type Retrier struct {
	options RetryOptions
	jitter  func() float64
}

func NewRetrier(options RetryOptions) *Retrier {
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = DefaultMaxAttempts
	}
	if options.BaseDelay <= 0 {
		options.BaseDelay = DefaultBaseDelay
	}
	if options.MaxDelay <= 0 {
		options.MaxDelay = DefaultMaxDelay
	}
	return &Retrier{options: options}
}

func (r *Retrier) Options() RetryOptions {
	return r.options
}

// Do is Execute for operations that return only an error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Execute calls op, retrying with exponential backoff while it fails with a
// retryable error. The last error is returned unchanged once attempts are
// exhausted, and a non-retryable error is returned immediately.
func Execute[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	state := RetryState{
		MaxAttempts: r.options.MaxAttempts,
		BaseDelay:   r.options.BaseDelay,
		MaxDelay:    r.options.MaxDelay,
	}
	waiter := NewWaiter(newExponentialBackOff(state.BaseDelay, state.MaxDelay, r.jitter))

	for {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		state.Attempt++
		if state.Attempt >= state.MaxAttempts {
			return result, err
		}

		kind := Classify(err)
		if !kind.Retryable() {
			return result, err
		}

		if werr := waiter.WaitAtLeast(ctx, requestedDelay(err, state.MaxDelay)); werr != nil {
			var zero T
			return zero, fmt.Errorf("%w: giving up after %d attempts: %v", werr, state.Attempt, err)
		}
		state.Delay = waiter.LastDelay()

		logging.L.Debug().
			Err(err).
			Str("kind", kind.String()).
			Int("attempt", state.Attempt).
			Int("maxAttempts", state.MaxAttempts).
			Dur("delay", state.Delay).
			Msg("retrying failed operation")

		if r.options.OnRetry != nil {
			r.options.OnRetry(state, err)
		}
	}
}

// RetryAfterError is implemented by errors that carry the delay the remote
// side asked for before the next attempt, like a Retry-After header.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// requestedDelay returns the delay asked for by err, capped at max.
func requestedDelay(err error, max time.Duration) time.Duration {
	var raErr RetryAfterError
	if !errors.As(err, &raErr) {
		return 0
	}
	if d := raErr.RetryAfter(); d < max {
		return d
	}
	return max
}
