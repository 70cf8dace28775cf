package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// IntervalLimiter enforces a minimum interval between consecutive calls.
// Callers block in Wait until the interval since the previous call has
// elapsed; they are never rejected. Safe for concurrent use — one limiter
// instance serializes the pace of all its callers.
type IntervalLimiter struct {
	mutex    sync.Mutex
	minGap   time.Duration
	lastCall time.Time
}

// NewIntervalLimiter creates a limiter that permits at most
// requestsPerMinute calls per minute, evenly spaced.
func NewIntervalLimiter(requestsPerMinute int) *IntervalLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &IntervalLimiter{
		minGap: time.Duration(float64(time.Minute) / float64(requestsPerMinute)),
	}
}

// Wait blocks until the minimum interval since the previous permitted call
// has elapsed, then records this call. Returns early with the context's
// error if the context is cancelled while waiting.
func (l *IntervalLimiter) Wait(ctx context.Context) error {
	l.mutex.Lock()
	now := time.Now()
	sleep := l.minGap - now.Sub(l.lastCall)
	if sleep < 0 {
		sleep = 0
	}
	// Reserve the slot before sleeping so concurrent waiters queue up
	// behind each other instead of all firing at once.
	l.lastCall = now.Add(sleep)
	l.mutex.Unlock()

	if sleep == 0 {
		return nil
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ BlockingLimiter = (*IntervalLimiter)(nil)
