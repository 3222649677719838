// Package ratelimit throttles remote writes.
//
// It wraps golang.org/x/time/rate behind a small Limiter interface:
//
//	limiter := ratelimit.NewPerMinute(cfg.Remote.RequestsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//
// A rate of zero disables throttling.
package ratelimit
