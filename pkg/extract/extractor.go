package extract

import (
	"fmt"

	"imgharvest/pkg/browser"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
)

// HeuristicFunc returns raw URL strings found in a snapshot. Relative and
// protocol-relative values are allowed; the Extractor normalizes them.
type HeuristicFunc func(snap browser.Snapshot) ([]string, error)

// Heuristic is a named extraction strategy
type Heuristic struct {
	Name string
	Func HeuristicFunc
}

// Extractor applies heuristics in order with an early-stop threshold
type Extractor struct {
	heuristics []Heuristic
	sufficient int
	log        logger.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithHeuristics replaces the default heuristic list
func WithHeuristics(h ...Heuristic) Option {
	return func(e *Extractor) {
		e.heuristics = h
	}
}

// WithLogger sets the logger used for heuristic failures
func WithLogger(l logger.Logger) Option {
	return func(e *Extractor) {
		e.log = l
	}
}

// New creates an Extractor. A later heuristic only runs while fewer than
// sufficient URLs have been collected from the current snapshot; a
// non-positive sufficient runs every heuristic.
func New(sufficient int, opts ...Option) *Extractor {
	e := &Extractor{
		heuristics: DefaultHeuristics(),
		sufficient: sufficient,
		log:        logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Heuristics returns the configured heuristic names in order
func (e *Extractor) Heuristics() []string {
	names := make([]string, len(e.heuristics))
	for i, h := range e.heuristics {
		names[i] = h.Name
	}
	return names
}

// Extract returns the distinct absolute http(s) URLs found in snap, in
// discovery order
func (e *Extractor) Extract(snap browser.Snapshot) []string {
	base := snap.URL()
	seen := make(map[string]struct{})
	var out []string

	for i, h := range e.heuristics {
		if i > 0 && e.sufficient > 0 && len(out) >= e.sufficient {
			break
		}

		raw, err := e.run(h, snap)
		if err != nil {
			e.log.WithFields(map[string]interface{}{
				"heuristic": h.Name,
				"page":      base,
			}).WithError(err).Warn("Extraction heuristic failed")
			continue
		}

		for _, r := range raw {
			u, ok := Normalize(r, base)
			if !ok {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

// run calls one heuristic, converting a panic into a typed error
func (e *Extractor) run(h Heuristic, snap browser.Snapshot) (urls []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.ErrorTypeHeuristicFailure, h.Name, fmt.Errorf("panic: %v", r))
		}
	}()

	urls, err = h.Func(snap)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeHeuristicFailure, h.Name, err)
	}
	return urls, nil
}
