package blocked

import (
	"context"
	"time"

	"imgharvest/pkg/browser"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
)

// Recoverer tries to get the driver past a challenge page
type Recoverer interface {
	Recover(ctx context.Context, d browser.Driver) error
}

// RecovererFunc adapts a function to Recoverer
type RecovererFunc func(ctx context.Context, d browser.Driver) error

// Recover calls f
func (f RecovererFunc) Recover(ctx context.Context, d browser.Driver) error {
	return f(ctx, d)
}

// WaitRecoverer pauses while a human solves the challenge in the visible
// browser, polling the page until the detector clears or Timeout elapses.
// With Headless set nobody can solve it, and only a challenge that lifts by
// itself clears.
type WaitRecoverer struct {
	Detector *Detector
	Timeout  time.Duration
	Poll     time.Duration
	Headless bool
	Log      logger.Logger
}

// NewWaitRecoverer creates a WaitRecoverer
func NewWaitRecoverer(det *Detector, timeout, poll time.Duration, log logger.Logger) *WaitRecoverer {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &WaitRecoverer{Detector: det, Timeout: timeout, Poll: poll, Log: log}
}

// Recover blocks until the page is no longer a challenge. It returns a
// blocked_page_unrecoverable error on timeout.
func (w *WaitRecoverer) Recover(ctx context.Context, d browser.Driver) error {
	w.Log.WithField("timeout", w.Timeout).Warn("Blocked page detected, waiting for the challenge to be solved")
	if w.Headless {
		w.Log.Warn("Browser is headless, the challenge cannot be solved by hand; run with headless off to solve it")
	}

	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	ticker := time.NewTicker(w.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errs.New(errs.ErrorTypeBlockedPage, "challenge was not cleared in time", ctx.Err())
		case <-ticker.C:
		}

		snap, err := d.Snapshot(ctx)
		if err != nil {
			w.Log.WithError(err).Debug("Snapshot during recovery failed")
			continue
		}
		if !w.Detector.Detect(snap) {
			w.Log.Info("Challenge cleared")
			return nil
		}
	}
}
