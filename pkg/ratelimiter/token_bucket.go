package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket is a non-blocking RateLimiter that admits bursts up to its
// capacity and refills at a fixed rate per second.
type TokenBucket struct {
	mutex    sync.Mutex
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

// NewTokenBucket creates a full bucket refilling at rate tokens per
// second, holding at most capacity tokens.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:     rate,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		last:     time.Now(),
	}
}

// Allow consumes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refillLocked(time.Now())
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// refillLocked credits tokens for the time elapsed since the last
// refill. The caller must hold the lock.
func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.last)
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed.Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.last = now
}

var _ RateLimiter = (*TokenBucket)(nil)
