package scroll

import (
	"context"
	"fmt"
	"math"
	"time"

	"imgharvest/pkg/blocked"
	"imgharvest/pkg/browser"
	"imgharvest/pkg/candidates"
	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/extract"
	"imgharvest/pkg/logger"
)

// State is a scroll controller state
type State string

const (
	StateLoading   State = "LOADING"
	StateScrolling State = "SCROLLING"
	StateConverged State = "CONVERGED"
	StateExhausted State = "EXHAUSTED"
	StateBlocked   State = "BLOCKED"
	StateFailed    State = "FAILED"
	StateDone      State = "DONE"
)

// Options controls pacing and termination
type Options struct {
	PageLoadTimeout time.Duration
	ReadySelector   string
	ReadyPoll       time.Duration
	MaxIterations   int
	MinNewPerScroll int
	NoProgressLimit int
	ScrollPause     time.Duration
	MaxScrollPause  time.Duration
	PauseGrowth     float64
}

// OptionsFromConfig builds Options from the harvest and browser sections
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PageLoadTimeout: cfg.Browser.PageLoadTimeout,
		ReadySelector:   cfg.Browser.ReadySelector,
		ReadyPoll:       250 * time.Millisecond,
		MaxIterations:   cfg.Harvest.MaxScrollIterations,
		MinNewPerScroll: cfg.Harvest.MinNewPerScroll,
		NoProgressLimit: cfg.Harvest.NoProgressLimit,
		ScrollPause:     cfg.Harvest.ScrollPause,
		MaxScrollPause:  cfg.Harvest.MaxScrollPause,
		PauseGrowth:     cfg.Harvest.PauseGrowth,
	}
}

// Result is the outcome of one scroll phase
type Result struct {
	Candidates []string
	// State is the terminal state reached before DONE
	State      State
	Iterations int
	Err        error
	// Transitions lists every state entered, ending with DONE
	Transitions []State
}

// Controller runs the scroll-and-extract loop
type Controller struct {
	opts      Options
	extractor *extract.Extractor
	detector  *blocked.Detector
	recoverer blocked.Recoverer
	log       logger.Logger
}

// NewController creates a Controller. recoverer may be nil, in which case
// the first challenge page ends the run as BLOCKED.
func NewController(opts Options, ex *extract.Extractor, det *blocked.Detector, rec blocked.Recoverer, log logger.Logger) *Controller {
	if opts.ReadyPoll <= 0 {
		opts.ReadyPoll = 250 * time.Millisecond
	}
	if opts.PauseGrowth < 1 {
		opts.PauseGrowth = 1
	}
	if opts.MaxScrollPause < opts.ScrollPause {
		opts.MaxScrollPause = opts.ScrollPause
	}
	if opts.NoProgressLimit <= 0 {
		opts.NoProgressLimit = 1
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Controller{opts: opts, extractor: ex, detector: det, recoverer: rec, log: log}
}

// run holds the per-call state
type run struct {
	*Controller
	driver    browser.Driver
	set       *candidates.Set
	target    int
	result    *Result
	recovered bool
}

func (r *run) enter(s State) {
	r.result.Transitions = append(r.result.Transitions, s)
	if s != StateDone {
		r.result.State = s
	}
}

// Run loads pageURL and scrolls until target candidates are collected or a
// terminal condition is hit. The driver is closed before Run returns.
func (c *Controller) Run(ctx context.Context, d browser.Driver, pageURL string, target int) (res Result) {
	r := &run{
		Controller: c,
		driver:     d,
		set:        candidates.NewSet(),
		target:     target,
		result:     &res,
	}

	defer func() {
		if err := d.Close(); err != nil {
			c.log.WithError(err).Warn("Closing page driver failed")
		}
		res.Candidates = r.set.URLs()
		r.enter(StateDone)
	}()

	r.enter(StateLoading)
	if err := r.load(ctx, pageURL); err != nil {
		res.Err = err
		r.enter(StateFailed)
		return
	}

	r.enter(StateScrolling)
	terminal, err := r.scroll(ctx)
	res.Err = err
	r.enter(terminal)
	return
}

// load navigates and waits for the document to become ready
func (r *run) load(ctx context.Context, pageURL string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.PageLoadTimeout)
	defer cancel()

	if err := r.driver.Navigate(ctx, pageURL); err != nil {
		return errs.New(errs.ErrorTypePageLoadTimeout, "navigation failed", err)
	}

	for {
		if r.ready(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return errs.New(errs.ErrorTypePageLoadTimeout,
				fmt.Sprintf("page not ready after %s", r.opts.PageLoadTimeout), ctx.Err())
		case <-time.After(r.opts.ReadyPoll):
		}
	}
}

func (r *run) ready(ctx context.Context) bool {
	state, err := r.driver.ExecuteScript(ctx, browser.ScriptReadyState)
	if err != nil {
		return false
	}
	if s := state.Str(); s != "interactive" && s != "complete" {
		return false
	}
	if r.opts.ReadySelector == "" {
		return true
	}

	snap, err := r.driver.Snapshot(ctx)
	if err != nil {
		return false
	}
	// a challenge page never shows the results selector; let the scroll
	// loop deal with it
	if r.detector != nil && r.detector.Detect(snap) {
		return true
	}
	found, err := snap.Query(r.opts.ReadySelector)
	return err == nil && len(found) > 0
}

// scroll is the SCROLLING state; it returns the terminal state
func (r *run) scroll(ctx context.Context) (State, error) {
	pause := r.opts.ScrollPause
	noProgress := 0

	for i := 1; i <= r.opts.MaxIterations; i++ {
		if r.set.Len() >= r.target {
			return StateConverged, nil
		}
		r.result.Iterations = i

		if _, err := r.driver.ExecuteScript(ctx, browser.ScriptScrollToBottom); err != nil {
			r.log.WithError(err).WithField("iteration", i).Debug("Scroll script failed")
		}

		if err := sleep(ctx, pause); err != nil {
			return StateExhausted, err
		}

		added, state, err := r.collect(ctx)
		if state != "" {
			return state, err
		}

		logger.LogScrollProgress(r.log, i, added, r.set.Len(), r.target, pause)

		if r.set.Len() >= r.target {
			return StateConverged, nil
		}

		if added == 0 {
			noProgress++
			if noProgress >= r.opts.NoProgressLimit {
				r.log.WithField("iterations", i).Info("No new candidates, page exhausted")
				return StateExhausted, nil
			}
		} else {
			noProgress = 0
		}

		if added < r.opts.MinNewPerScroll {
			pause = grow(pause, r.opts.PauseGrowth, r.opts.MaxScrollPause)
		} else {
			pause = r.opts.ScrollPause
		}
	}

	if r.set.Len() >= r.target {
		return StateConverged, nil
	}
	return StateExhausted, nil
}

// collect snapshots the page, handles a challenge page and merges new URLs.
// A non-empty state ends the scroll phase.
func (r *run) collect(ctx context.Context) (int, State, error) {
	snap, err := r.driver.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, StateExhausted, ctx.Err()
		}
		r.log.WithError(err).Debug("Snapshot failed")
		return 0, "", nil
	}

	if r.detector != nil && r.detector.Detect(snap) {
		if r.recovered {
			r.log.Warn("Challenge page returned after recovery, stopping scroll")
			return 0, StateExhausted, errs.New(errs.ErrorTypeBlockedPage, "challenge page returned after recovery", nil)
		}
		r.recovered = true

		if r.recoverer == nil {
			return 0, StateBlocked, errs.New(errs.ErrorTypeBlockedPage, "no recovery configured", nil)
		}
		if err := r.recoverer.Recover(ctx, r.driver); err != nil {
			return 0, StateBlocked, err
		}

		if snap, err = r.driver.Snapshot(ctx); err != nil {
			r.log.WithError(err).Debug("Snapshot after recovery failed")
			return 0, "", nil
		}
	}

	added := 0
	for _, u := range r.extractor.Extract(snap) {
		if r.set.Len() >= r.target {
			break
		}
		if r.set.Add(u) {
			added++
		}
	}
	return added, "", nil
}

func grow(pause time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(math.Round(float64(pause) * factor))
	if next > max {
		return max
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) error {
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
