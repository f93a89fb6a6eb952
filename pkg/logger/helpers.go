package logger

import (
	"fmt"
	"time"
)

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	l = l.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// LogScrollProgress logs one scroll iteration of a category
func LogScrollProgress(l Logger, iteration, added, total, target int, pause time.Duration) {
	percentage := 0.0
	if target > 0 {
		percentage = float64(total) / float64(target) * 100
	}

	l.WithFields(map[string]interface{}{
		"iteration":  iteration,
		"new":        added,
		"candidates": total,
		"target":     target,
		"pause":      pause,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	}).Debug("Scroll progress")
}

// LogDownloadOutcome logs the result of one candidate download. A nil err
// with an empty path means the candidate was skipped after the target was
// reached.
func LogDownloadOutcome(l Logger, url, savedPath string, attempts int, err error) {
	l = l.WithFields(map[string]interface{}{
		"url":      url,
		"attempts": attempts,
	})

	switch {
	case err != nil:
		l.WithError(err).Debug("Candidate rejected")
	case savedPath != "":
		l.WithField("path", savedPath).Info("Image saved")
	default:
		l.Debug("Candidate skipped")
	}
}

// LogRunSummary logs the final numbers of a category run
func LogRunSummary(l Logger, requested, achieved, candidates int, state string, duration time.Duration) {
	fields := map[string]interface{}{
		"requested":    requested,
		"achieved":     achieved,
		"candidates":   candidates,
		"scroll_state": state,
		"duration":     duration.Round(time.Millisecond),
	}

	if achieved < requested {
		l.WarnWithFields("Category finished with shortfall", fields)
		return
	}
	l.InfoWithFields("Category finished", fields)
}
