package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "topicsync/pkg/errors"
	"topicsync/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts; values below 1 mean 1
	MaxAttempts int
	// Backoff picks the delay before the next attempt
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration that never retries
func DefaultConfig(log logger.Logger) *Config {
	return &Config{
		MaxAttempts: 1,
		Backoff:     NewErrorTypeBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      log,
	}
}

// DefaultRetryIf retries only remote errors whose type is transient.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation is final. A per-request timeout surfaces as a network
	// error and may be retried.
	if errors.Is(err, context.Canceled) {
		return false
	}

	return errs.IsRetryableError(err)
}

// Do executes an operation with retry logic
func Do(ctx context.Context, cfg *Config, op Operation) error {
	if cfg == nil {
		cfg = DefaultConfig(nil)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if !retryIf(err) {
			return err
		}

		if attempt >= maxAttempts {
			if maxAttempts == 1 {
				return err
			}
			log.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		delay := backoffFor(backoff, err).NextDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": maxAttempts,
		})

		if werr := Wait(ctx, delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", errors.Join(werr, err))
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, cfg *Config, op OperationWithResult[T]) (T, error) {
	var result T

	err := Do(ctx, cfg, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})

	return result, err
}

func backoffFor(b BackoffStrategy, err error) BackoffStrategy {
	if etb, ok := b.(*ErrorTypeBackoff); ok {
		return etb.ForError(err)
	}
	return b
}
