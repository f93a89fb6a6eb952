// Package retry provides backoff and retry logic for transient fetch
// failures.
//
// Do runs an operation up to 1+MaxRetries times, waiting between attempts
// according to a BackoffStrategy. Only errors accepted by RetryIf are retried;
// the default accepts fetch_transport errors and retryable HTTP statuses
// (408, 429, 5xx). Waits honour context cancellation.
//
//	attempts, err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
//		data, err = fetcher.FetchImage(ctx, url)
//		return err
//	}, retry.Config{
//		MaxRetries: cfg.Download.RetryAttempts,
//		Backoff:    retry.NewExponentialBackoff(cfg.Download.RetryDelay),
//	})
package retry
