package ratelimiter

import "context"

// RateLimiter is the interface for non-blocking rate limiting.
// Allow returns true if a request is permitted right now.
type RateLimiter interface {
	Allow() bool
}

// BlockingLimiter is the interface for limiters that make the caller wait
// rather than reject. Wait blocks until the next request is permitted or the
// context is cancelled.
type BlockingLimiter interface {
	Wait(ctx context.Context) error
}
