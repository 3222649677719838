// Package retry re-issues remote writes that failed for a transient reason.
//
// Only network, rate_limit and server_error failures are retried by default;
// auth, not_found and client errors are returned immediately. The delay
// between attempts depends on the error type:
//
//	cfg := retry.DefaultConfig(log)
//	cfg.MaxAttempts = 3
//	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
//		return client.Update(ctx, tgt, id, values)
//	})
//
// Waiting honours ctx, so an interrupted run stops between attempts.
package retry
