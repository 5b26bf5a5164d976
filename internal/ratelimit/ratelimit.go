// Package ratelimit throttles expensive requests per caller.
//
// Limiter is the contract; MemoryLimiter is a single-instance token bucket.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether the request may proceed. An error signals a
	// limiter malfunction; Middleware treats it as fail-open.
	Allow(ctx context.Context, key string) (bool, error)
}

// NoopLimiter permits every request.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
