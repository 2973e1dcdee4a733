package repeat

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxJitter is the largest fraction of the delay added as random jitter.
const maxJitter = 0.1

// exponentialBackOff doubles the delay after every failure, starting at base:
//
//	delay(n) = min(base * 2^(n-1) * (1 + jitter), max)  where jitter is in [0, 0.1)
//
// Unlike backoff.ExponentialBackOff the jitter only ever lengthens the delay.
type exponentialBackOff struct {
	base    time.Duration
	max     time.Duration
	attempt int
	jitter  func() float64
}

var _ backoff.BackOff = (*exponentialBackOff)(nil)

func newExponentialBackOff(base, max time.Duration, jitter func() float64) *exponentialBackOff {
	if jitter == nil {
		//nolint:gosec // jitter does not need a cryptographic source
		jitter = rand.Float64
	}
	return &exponentialBackOff{base: base, max: max, jitter: jitter}
}

func (b *exponentialBackOff) NextBackOff() time.Duration {
	b.attempt++

	delay := b.base
	for i := 1; i < b.attempt && delay < b.max; i++ {
		delay *= 2
	}

	delay += time.Duration(float64(delay) * maxJitter * b.jitter())
	if b.max > 0 && delay > b.max {
		delay = b.max
	}

	return delay
}

func (b *exponentialBackOff) Reset() {
	b.attempt = 0
}
