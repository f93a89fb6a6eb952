// Package logger provides structured logging for imgharvest.
//
// It wraps zerolog behind a small Logger interface with field helpers.
// Console output is colored only when stdout is a terminal; an optional log
// file receives JSON lines.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("category", "polar_bear")
//	log.Info("Scroll phase started")
//	log.WithError(err).Warn("Heuristic failed")
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
