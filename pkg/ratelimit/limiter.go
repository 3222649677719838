package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed right now
	Allow() bool
	// Wait blocks until the rate limit allows another request or ctx is done
	Wait(ctx context.Context) error
}

// TokenBucket spaces requests evenly over a minute
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewPerMinute returns a limiter allowing requestsPerMinute requests with a
// burst of one. Zero or a negative value means unlimited.
func NewPerMinute(requestsPerMinute int) Limiter {
	if requestsPerMinute <= 0 {
		return Unlimited{}
	}
	return NewTokenBucket(requestsPerMinute, time.Minute, 1)
}

// NewTokenBucket creates a limiter that refills requests tokens every period.
func NewTokenBucket(requests int, period time.Duration, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	every := period / time.Duration(requests)
	return &TokenBucket{limiter: rate.NewLimiter(rate.Every(every), burst)}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.limiter.Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool { return true }

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
