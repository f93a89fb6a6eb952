package scraper

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"imgharvest/internal/downloader"
	"imgharvest/pkg/blocked"
	"imgharvest/pkg/browser"
	"imgharvest/pkg/config"
	"imgharvest/pkg/extract"
	"imgharvest/pkg/fetch"
	"imgharvest/pkg/imaging"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/metadata"
	"imgharvest/pkg/ratelimit"
	"imgharvest/pkg/scroll"
	"imgharvest/pkg/storage"
)

// RunResult is the report of one category run
type RunResult struct {
	Category     string
	RunID        string
	Requested    int
	SuccessCount int
	// FailedURLs lists failed candidates in the order they were tried
	FailedURLs       []string
	CandidateCount   int
	ScrollState      scroll.State
	ScrollIterations int
	// Err is the error that cut the category short, if any. Per-candidate
	// failures are only reflected in FailedURLs.
	Err            error
	FailedListPath string
	ManifestPath   string
	Duration       time.Duration
}

// Shortfall returns how many images are missing from the target
func (r RunResult) Shortfall() int {
	if r.SuccessCount >= r.Requested {
		return 0
	}
	return r.Requested - r.SuccessCount
}

// Scraper orchestrates scrolling and downloading per category
type Scraper struct {
	config    *config.Config
	newDriver DriverFactory
	fetcher   ImageFetcher
	decoder   ImageDecoder
	limiter   Limiter
	recoverer blocked.Recoverer
	onResult  func(RunResult)
	logger    logger.Logger
}

// Option customizes a Scraper
type Option func(*Scraper)

// WithDriverFactory replaces the rod browser
func WithDriverFactory(f DriverFactory) Option {
	return func(s *Scraper) { s.newDriver = f }
}

// WithFetcher replaces the HTTP fetch client
func WithFetcher(f ImageFetcher) Option {
	return func(s *Scraper) { s.fetcher = f }
}

// WithDecoder replaces the image decoder
func WithDecoder(d ImageDecoder) Option {
	return func(s *Scraper) { s.decoder = d }
}

// WithLimiter replaces the fetch rate limiter
func WithLimiter(l Limiter) Option {
	return func(s *Scraper) { s.limiter = l }
}

// WithRecoverer replaces the challenge-page recoverer
func WithRecoverer(r blocked.Recoverer) Option {
	return func(s *Scraper) { s.recoverer = r }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scraper) { s.logger = l }
}

// OnResult registers a callback invoked after each category finishes
func OnResult(fn func(RunResult)) Option {
	return func(s *Scraper) { s.onResult = fn }
}

// New creates a Scraper from a validated configuration
func New(cfg *config.Config, opts ...Option) (*Scraper, error) {
	s := &Scraper{config: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	if s.newDriver == nil {
		s.newDriver = browser.NewRodFactory(cfg, s.logger)
	}
	if s.fetcher == nil {
		client, err := fetch.NewClient(fetch.OptionsFromConfig(cfg), s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fetch client: %w", err)
		}
		s.fetcher = client
	}
	if s.decoder == nil {
		s.decoder = imaging.NewDecoder()
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewPerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}
	if s.recoverer == nil {
		rec := blocked.NewWaitRecoverer(blocked.NewDetector(), cfg.Browser.RecoveryTimeout, cfg.Browser.RecoveryPoll, s.logger)
		rec.Headless = cfg.Browser.Headless
		s.recoverer = rec
	}
	return s, nil
}

// Run processes every configured category in name order. It stops early
// only when ctx is cancelled.
func (s *Scraper) Run(ctx context.Context) []RunResult {
	var results []RunResult
	for _, cat := range s.config.CategoryList() {
		if ctx.Err() != nil {
			s.logger.Warn("Harvest cancelled, skipping remaining categories")
			break
		}
		res := s.RunCategory(ctx, cat)
		results = append(results, res)
		if s.onResult != nil {
			s.onResult(res)
		}
	}
	return results
}

// RunCategory harvests a single category
func (s *Scraper) RunCategory(ctx context.Context, cat config.Category) RunResult {
	start := time.Now()
	res := RunResult{
		Category:  cat.Name,
		RunID:     uuid.NewString(),
		Requested: s.config.Harvest.TargetCount,
	}
	log := s.logger.WithFields(map[string]interface{}{
		"category": cat.Name,
		"run_id":   res.RunID,
	})
	defer func() {
		res.Duration = time.Since(start)
		logger.LogRunSummary(log, res.Requested, res.SuccessCount, res.CandidateCount, string(res.ScrollState), res.Duration)
	}()

	store, err := storage.NewManager(s.config.Output.BaseDirectory, cat.Name)
	if err != nil {
		log.WithError(err).Error("Failed to prepare category directory")
		res.Err = err
		return res
	}

	pageURL := SearchURL(s.config.Harvest.SearchURL, cat.Query)
	log.InfoWithFields("Starting category", map[string]interface{}{
		"query":            cat.Query,
		"url":              pageURL,
		"target":           res.Requested,
		"candidate_target": s.config.CandidateTarget(),
	})

	found := s.collect(ctx, pageURL, log, &res)
	res.CandidateCount = len(found)

	dl := downloader.New(downloader.OptionsFromConfig(s.config), s.fetcher, s.decoder, store, s.limiter, log)
	summary := dl.Run(ctx, found, res.Requested)
	res.SuccessCount = summary.Successes
	res.FailedURLs = summary.Failed

	if s.config.Output.WriteManifest {
		s.writeManifest(store.Dir(), cat, pageURL, summary, &res, log)
	}

	if res.Shortfall() > 0 {
		path, err := store.WriteFailedURLs(res.FailedURLs)
		if err != nil {
			log.WithError(err).Error("Failed to write failed URL list")
		} else {
			res.FailedListPath = path
		}
		return res
	}
	if err := store.RemoveFailedList(); err != nil {
		log.WithError(err).Warn("Failed to remove stale failed URL list")
	}
	return res
}

// collect runs the scroll phase. A driver that cannot be created yields an
// empty candidate set so the category still reports a shortfall.
func (s *Scraper) collect(ctx context.Context, pageURL string, log logger.Logger, res *RunResult) []string {
	driver, err := s.newDriver(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to start page driver")
		res.Err = err
		res.ScrollState = scroll.StateFailed
		return nil
	}

	ex := extract.New(s.config.Harvest.SufficientPerSnapshot, extract.WithLogger(log))
	ctrl := scroll.NewController(scroll.OptionsFromConfig(s.config), ex, blocked.NewDetector(), s.recoverer, log)

	sres := ctrl.Run(ctx, driver, pageURL, s.config.CandidateTarget())
	res.ScrollState = sres.State
	res.ScrollIterations = sres.Iterations
	if sres.Err != nil {
		log.WithError(sres.Err).WarnWithFields("Scroll phase ended early", map[string]interface{}{
			"state":      sres.State,
			"candidates": len(sres.Candidates),
		})
		res.Err = sres.Err
	}
	return sres.Candidates
}

func (s *Scraper) writeManifest(dir string, cat config.Category, pageURL string, summary downloader.Summary, res *RunResult, log logger.Logger) {
	m := &metadata.Manifest{
		Category:    cat.Name,
		Query:       cat.Query,
		RunID:       res.RunID,
		SearchURL:   pageURL,
		Requested:   res.Requested,
		Achieved:    res.SuccessCount,
		GeneratedAt: time.Now().UTC(),
	}
	for _, o := range summary.Outcomes {
		if o.Success {
			m.Images = append(m.Images, metadata.NewImageRecord(o.SavedPath, o.URL, o.Width, o.Height, o.Size, o.Attempts))
		}
	}
	slices.SortFunc(m.Images, func(a, b metadata.ImageRecord) int { return strings.Compare(a.File, b.File) })

	path, err := m.Save(dir)
	if err != nil {
		log.WithError(err).Warn("Failed to write manifest")
		return
	}
	res.ManifestPath = path
}

// SearchURL fills the query into the search URL template
func SearchURL(template, query string) string {
	escaped := url.QueryEscape(query)
	if strings.Contains(template, "%s") {
		return strings.Replace(template, "%s", escaped, 1)
	}
	return template + escaped
}
