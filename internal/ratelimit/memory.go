package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count     int
	resetTime time.Time
}

// MemoryLimiter keeps counts in process memory. It is safe for concurrent use,
// but counts are not shared between processes.
type MemoryLimiter struct {
	options Options

	// Now returns the current time. Tests may replace it.
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(options Options) (*MemoryLimiter, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	return &MemoryLimiter{
		options: options,
		Now:     time.Now,
		entries: make(map[string]entry),
	}, nil
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	l.cleanup(now)

	e, ok := l.entries[key]
	switch {
	case !ok, !now.Before(e.resetTime):
		l.entries[key] = entry{count: 1, resetTime: now.Add(l.options.Window)}
		return Decision{Allowed: true}, nil

	case e.count < l.options.MaxRequests:
		e.count++
		l.entries[key] = e
		return Decision{Allowed: true}, nil
	}

	retryAfter := l.options.RetryAfter
	if retryAfter == 0 {
		retryAfter = e.resetTime.Sub(now)
	}

	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}

func (l *MemoryLimiter) Status(_ context.Context, key string) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetTime) {
		return Status{
			Count:     0,
			Remaining: l.options.MaxRequests,
			ResetTime: now.Add(l.options.Window),
		}, nil
	}

	return Status{
		Count:     e.count,
		Remaining: remaining(l.options.MaxRequests, e.count),
		ResetTime: e.resetTime,
	}, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)
	return nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// cleanup removes every entry whose window has elapsed. It runs on every call
// to Allow, which keeps memory bounded without a background goroutine.
func (l *MemoryLimiter) cleanup(now time.Time) {
	for key, e := range l.entries {
		if !now.Before(e.resetTime) {
			delete(l.entries, key)
		}
	}
}
