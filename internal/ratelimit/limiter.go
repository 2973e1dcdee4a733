// Package ratelimit caps the number of operations per key within a fixed
// window of time. A key is any caller supplied string, usually a user ID or a
// client address combined with the name of an action.
//
// Windows are discrete: the count for a key starts over once its window has
// elapsed, instead of decaying continuously.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

type Options struct {
	// MaxRequests is the number of operations allowed per window.
	MaxRequests int
	// Window is the length of a window.
	Window time.Duration
	// RetryAfter, when set, replaces the time remaining in the window as
	// the wait suggested to denied callers.
	RetryAfter time.Duration
}

func (o Options) Validate() error {
	switch {
	case o.MaxRequests <= 0:
		return errors.New("max requests must be positive")
	case o.Window <= 0:
		return errors.New("window must be positive")
	case o.RetryAfter < 0:
		return errors.New("retry after must not be negative")
	}
	return nil
}

// Decision is the result of Allow.
type Decision struct {
	Allowed bool
	// RetryAfter is how long a denied caller should wait. It is zero when
	// Allowed is true.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, as used by the
// Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Status is the quota of a key in its current window. For a key without a
// current window it describes a fresh window starting now.
type Status struct {
	Count     int
	Remaining int
	ResetTime time.Time
}

type Limiter interface {
	// Allow records an operation for key, and reports whether it fits in the
	// quota.
	Allow(ctx context.Context, key string) (Decision, error)
	// Status returns the quota for key without recording an operation.
	Status(ctx context.Context, key string) (Status, error)
	// Reset forgets everything recorded for key.
	Reset(ctx context.Context, key string) error
}

// OverLimitError is returned by Check when an operation is denied.
type OverLimitError struct {
	RetryAfter time.Duration
}

func (e *OverLimitError) Error() string {
	return fmt.Sprintf("over limit; retry after %v", e.RetryAfter)
}

// Check calls Allow and converts a denial into an *OverLimitError.
func Check(ctx context.Context, limiter Limiter, key string) error {
	decision, err := limiter.Allow(ctx, key)
	if err != nil {
		return err
	}

	if !decision.Allowed {
		return &OverLimitError{RetryAfter: decision.RetryAfter}
	}

	return nil
}

func remaining(max, count int) int {
	if count >= max {
		return 0
	}
	return max - count
}
