// Package ratelimiter gates the accept loop with a token bucket so a burst
// of connection attempts cannot starve established clients.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps golang.org/x/time/rate with the zero-means-unlimited
// convention used by the server configuration.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing acceptsPerSecond sustained accepts with
// the given burst capacity. acceptsPerSecond == 0 disables limiting.
func New(acceptsPerSecond, burst uint) *RateLimiter {
	if acceptsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = acceptsPerSecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(acceptsPerSecond), int(burst)),
	}
}

// Allow consumes a token if one is available. The accept loop drops the
// connection when this returns false rather than queueing it.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
