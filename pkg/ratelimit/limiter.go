package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may happen now, consuming a token if so
	Allow() bool
	// Wait blocks until a request is allowed or ctx is done
	Wait(ctx context.Context) error
	// Reset restores the limiter to a full bucket
	Reset()
}

// TokenBucket is a Limiter backed by golang.org/x/time/rate
type TokenBucket struct {
	limit rate.Limit
	burst int
	rl    *rate.Limiter
}

// NewTokenBucket creates a token bucket refilling at limit tokens per second
func NewTokenBucket(limit rate.Limit, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		limit: limit,
		burst: burst,
		rl:    rate.NewLimiter(limit, burst),
	}
}

// NewPerMinute creates a token bucket allowing requests per minute. A
// non-positive rate disables limiting.
func NewPerMinute(requests, burst int) *TokenBucket {
	if requests <= 0 {
		return NewTokenBucket(rate.Inf, burst)
	}
	return NewTokenBucket(rate.Every(time.Minute/time.Duration(requests)), burst)
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.rl.Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.rl.Wait(ctx)
}

// Reset refills the bucket
func (tb *TokenBucket) Reset() {
	tb.rl = rate.NewLimiter(tb.limit, tb.burst)
}

// Unlimited is a Limiter that never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool { return true }

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

func (Unlimited) Reset() {}

// RandomDelay sleeps for a uniformly random duration in [min, max] and
// returns early with ctx.Err() when ctx is cancelled
func RandomDelay(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += rand.N(max - min + 1)
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
