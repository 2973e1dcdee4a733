package repeat

import (
	"context"
	"time"
)

// Start a goroutine which repeatedly calls run and then sleep for interval between each
// call. The goroutine runs until the context is cancelled. The returned channel
// is closed once the goroutine has exited, so callers can wait for an in
// progress run to finish during shutdown.
func Start(ctx context.Context, interval time.Duration, run func(context.Context)) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		run(ctx)

		for {
			timer := time.NewTimer(interval)
			select {
			case <-timer.C:
				run(ctx)
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()

	return done
}
