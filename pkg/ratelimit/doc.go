// Package ratelimit paces outbound image fetches.
//
// TokenBucket wraps golang.org/x/time/rate behind the small Limiter
// interface so the download stage can be tested with Unlimited. RandomDelay
// adds the randomized politeness pause between consecutive attempts.
//
//	limiter := ratelimit.NewPerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//	// fetch
//	_ = ratelimit.RandomDelay(ctx, cfg.Download.DelayMin, cfg.Download.DelayMax)
package ratelimit
