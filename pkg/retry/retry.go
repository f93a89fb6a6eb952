package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
)

// Operation performs one attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Config holds retry configuration
type Config struct {
	// MaxRetries is the number of additional attempts after the first one
	MaxRetries int
	// Backoff strategy to use between attempts
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry wait
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		Backoff:    DefaultExponentialBackoff(),
		RetryIf:    DefaultRetryIf,
	}
}

// DefaultRetryIf retries transport failures and transient HTTP statuses.
// Cancellation is never retried.
func DefaultRetryIf(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errs.IsRetryable(err)
}

// Do runs op until it succeeds, returns a non-retryable error, or the retry
// budget is spent. It returns the number of attempts made and the last error.
func Do(ctx context.Context, op Operation, cfg Config) (int, error) {
	if cfg.RetryIf == nil {
		cfg.RetryIf = DefaultRetryIf
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultExponentialBackoff()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return attempt - 1, err
		}

		err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return attempt, nil
		}
		lastErr = err

		if !cfg.RetryIf(err) {
			return attempt, err
		}
		if attempt > cfg.MaxRetries {
			return attempt, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		delay := cfg.Backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if cfg.Logger != nil {
			cfg.Logger.DebugWithFields("retrying operation", map[string]interface{}{
				"attempt":  attempt,
				"error":    err.Error(),
				"delay_ms": delay.Milliseconds(),
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return attempt, lastErr
		}
	}
}

// DoWithResult is Do for operations that produce a value
func DoWithResult[T any](ctx context.Context, op func(ctx context.Context, attempt int) (T, error), cfg Config) (T, int, error) {
	var result T
	attempts, err := Do(ctx, func(ctx context.Context, attempt int) error {
		var opErr error
		result, opErr = op(ctx, attempt)
		return opErr
	}, cfg)
	return result, attempts, err
}
