package repeat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestStart_StopsWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count int32
	start := time.Now()
	stopped := Start(ctx, 5*time.Second, func(context.Context) {
		atomic.AddInt32(&count, 1)
	})
	cancel()
	<-stopped

	assert.Assert(t, time.Since(start) < time.Second)
	assert.Equal(t, atomic.LoadInt32(&count), int32(1))
}

func TestStart_CallsToRunNeverOverlap(t *testing.T) {
	done := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count, overlap int32
	Start(ctx, time.Millisecond, func(context.Context) {
		value := atomic.AddInt32(&overlap, 1)
		// value should only be 1 if the calls never overlap
		assert.Check(t, is.Equal(int32(1), value))

		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&overlap, -1)

		if atomic.AddInt32(&count, 1) == 2 {
			close(done)
		}
	})

	<-done
}
