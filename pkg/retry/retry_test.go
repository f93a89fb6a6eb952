package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "imgharvest/pkg/errors"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{9, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}

	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 160*time.Millisecond)
		assert.LessOrEqual(t, d, 240*time.Millisecond)
	}
}

func TestNewExponentialBackoff(t *testing.T) {
	b := NewExponentialBackoff(time.Minute)
	assert.Equal(t, time.Minute, b.BaseDelay)
	assert.Equal(t, time.Minute, b.MaxDelay)
}

func fastConfig(retries int) Config {
	return Config{
		MaxRetries: retries,
		Backoff:    &ConstantBackoff{Delay: time.Millisecond},
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return errs.NewStatus(503, "https://example.com/a.jpg")
		}
		return nil
	}, fastConfig(2))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUp(t *testing.T) {
	transport := errs.New(errs.ErrorTypeFetchTransport, "connection reset", nil)
	var retried []int

	cfg := fastConfig(2)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	attempts, err := Do(context.Background(), func(context.Context, int) error {
		return transport
	}, cfg)

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
	assert.True(t, errs.Is(err, errs.ErrorTypeFetchTransport))
}

func TestDoNonRetryable(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), func(context.Context, int) error {
		calls++
		return errs.NewStatus(404, "")
	}, fastConfig(5))

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoZeroRetries(t *testing.T) {
	attempts, err := Do(context.Background(), func(context.Context, int) error {
		return errs.NewStatus(500, "")
	}, fastConfig(0))

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{MaxRetries: 10, Backoff: &ConstantBackoff{Delay: time.Hour}}
	done := make(chan struct{})
	var attempts int
	var err error
	go func() {
		defer close(done)
		attempts, err = Do(ctx, func(context.Context, int) error {
			return errs.NewStatus(502, "")
		}, cfg)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, errs.Is(err, errs.ErrorTypeFetchStatus))
}

func TestDoWithResult(t *testing.T) {
	data, attempts, err := DoWithResult(context.Background(), func(ctx context.Context, attempt int) ([]byte, error) {
		if attempt == 1 {
			return nil, errs.New(errs.ErrorTypeFetchTransport, "eof", nil)
		}
		return []byte("ok"), nil
	}, fastConfig(1))

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []byte("ok"), data)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.False(t, DefaultRetryIf(errors.New("untyped")))
	assert.False(t, DefaultRetryIf(errs.New(errs.ErrorTypeDecode, "", nil)))
	assert.True(t, DefaultRetryIf(errs.NewStatus(429, "")))
	assert.True(t, DefaultRetryIf(errs.New(errs.ErrorTypeFetchTransport, "", nil)))
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
