// Package downloader fetches, validates and stores candidate images until a
// category reaches its exact target count.
package downloader

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/fetch"
	"imgharvest/pkg/imaging"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/ratelimit"
	"imgharvest/pkg/retry"
)

// Storage persists validated images under their dataset index
type Storage interface {
	Save(index int, ext string, data []byte) (string, error)
}

// Options controls the download stage
type Options struct {
	Workers           int
	RetryAttempts     int
	RetryDelay        time.Duration
	MinFileBytes      int64
	MinImageDimension int
	DelayMin          time.Duration
	DelayMax          time.Duration
	Shuffle           bool
}

// OptionsFromConfig builds Options from the download section
func OptionsFromConfig(cfg *config.Config) Options {
	d := cfg.Download
	return Options{
		Workers:           d.ConcurrentDownloads,
		RetryAttempts:     d.RetryAttempts,
		RetryDelay:        d.RetryDelay,
		MinFileBytes:      d.MinFileBytes,
		MinImageDimension: d.MinImageDimension,
		DelayMin:          d.DelayMin,
		DelayMax:          d.DelayMax,
		Shuffle:           d.Shuffle,
	}
}

// Outcome is the immutable result of one candidate
type Outcome struct {
	URL     string
	Success bool
	// Skipped marks candidates abandoned after the target was reached
	Skipped   bool
	Kind      errs.ErrorType
	Err       error
	SavedPath string
	Size      int
	Width     int
	Height    int
	Attempts  int
	Duration  time.Duration

	seq     int
	payload payload
}

// Summary aggregates a download run. Failed lists failed candidates in
// dispatch order; skipped candidates are not failures.
type Summary struct {
	Successes int
	Failed    []string
	Outcomes  []Outcome
}

// Downloader runs the download and validate stage for one category
type Downloader struct {
	opts    Options
	fetcher fetch.Fetcher
	decoder imaging.Decoder
	store   Storage
	limiter ratelimit.Limiter
	logger  logger.Logger
}

// New creates a Downloader. A nil limiter means unlimited.
func New(opts Options, fetcher fetch.Fetcher, decoder imaging.Decoder, store Storage, limiter ratelimit.Limiter, log logger.Logger) *Downloader {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Downloader{
		opts:    opts,
		fetcher: fetcher,
		decoder: decoder,
		store:   store,
		limiter: limiter,
		logger:  log.WithField("component", "downloader"),
	}
}

// claim guards the success counter together with persistence so that saved
// indices are contiguous and never exceed the target
type claim struct {
	mu      sync.Mutex
	saved   int
	target  int
	reached atomic.Bool
}

// Run downloads candidates until target images are stored or the
// candidates run out
func (d *Downloader) Run(ctx context.Context, candidates []string, target int) Summary {
	var summary Summary
	if target <= 0 || len(candidates) == 0 {
		return summary
	}

	queue := slices.Clone(candidates)
	if d.opts.Shuffle {
		rand.Shuffle(len(queue), func(i, j int) { queue[i], queue[j] = queue[j], queue[i] })
	}

	logger.LogComponentStart(d.logger, "downloader", map[string]interface{}{
		"candidates": len(queue),
		"target":     target,
		"workers":    d.opts.Workers,
	})

	c := &claim{target: target}
	var pool *WorkerPool
	pool = NewWorkerPool(ctx, d.opts.Workers, func(ctx context.Context, job Job, workerID int) Outcome {
		o := d.process(ctx, job, c)
		if c.reached.Load() {
			pool.Cancel()
		}
		return o
	}, d.logger)
	pool.Start()

	go func() {
		defer pool.Stop()
		for i, u := range queue {
			if c.reached.Load() {
				return
			}
			if err := pool.Submit(Job{Seq: i, URL: u}); err != nil {
				return
			}
		}
	}()

	for o := range pool.Results() {
		summary.Outcomes = append(summary.Outcomes, o)
	}

	slices.SortFunc(summary.Outcomes, func(a, b Outcome) int { return a.seq - b.seq })
	for _, o := range summary.Outcomes {
		switch {
		case o.Success:
			summary.Successes++
		case !o.Skipped:
			summary.Failed = append(summary.Failed, o.URL)
		}
	}

	reason := "candidates exhausted"
	switch {
	case c.reached.Load():
		reason = "target reached"
	case ctx.Err() != nil:
		reason = "cancelled"
	}
	logger.LogComponentStop(d.logger, "downloader", reason)
	return summary
}

func (d *Downloader) process(ctx context.Context, job Job, c *claim) Outcome {
	start := time.Now()
	o := Outcome{URL: job.URL, seq: job.Seq}

	if c.reached.Load() {
		o.Skipped = true
		return o
	}

	o = d.validate(ctx, job, o)
	if o.Err == nil {
		o = d.persist(o, c)
	}
	// Work cut short by the target stop is skipped. A candidate that
	// finished its attempts keeps its failure.
	if !o.Success && c.reached.Load() && (o.Skipped || errs.IsCanceled(o.Err)) {
		o.Skipped = true
		o.Err, o.Kind = nil, ""
	}
	o.Duration = time.Since(start)

	logger.LogDownloadOutcome(d.logger, job.URL, o.SavedPath, o.Attempts, o.Err)

	if !o.Skipped {
		ratelimit.RandomDelay(ctx, d.opts.DelayMin, d.opts.DelayMax)
	}
	return o
}

// validate fetches and checks one candidate, leaving the decoded payload in
// the outcome on success
func (d *Downloader) validate(ctx context.Context, job Job, o Outcome) Outcome {
	fetchURL := StripCacheBuster(job.URL)

	data, attempts, err := retry.DoWithResult(ctx, func(ctx context.Context, attempt int) ([]byte, error) {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return d.fetcher.FetchImage(ctx, fetchURL)
	}, retry.Config{
		MaxRetries: d.opts.RetryAttempts,
		Backoff:    retry.NewExponentialBackoff(d.opts.RetryDelay),
		Logger:     d.logger,
	})
	o.Attempts = attempts
	if err != nil {
		return fail(o, err)
	}
	o.Size = len(data)

	if int64(len(data)) < d.opts.MinFileBytes {
		return fail(o, &errs.Error{
			Type:    errs.ErrorTypeContentTooSmall,
			Message: fmt.Sprintf("%d bytes is below the %d byte minimum", len(data), d.opts.MinFileBytes),
			URL:     job.URL,
		})
	}

	img, err := d.decoder.Decode(data)
	if err != nil {
		return fail(o, err)
	}
	o.Width, o.Height = img.Width, img.Height

	if err := imaging.CheckDimensions(img, d.opts.MinImageDimension); err != nil {
		return fail(o, err)
	}

	o.payload = payload{data: data, ext: chooseExtension(fetchURL, img.Format)}
	return o
}

// persist claims the next index and stores the image under the claim lock
func (d *Downloader) persist(o Outcome, c *claim) Outcome {
	p := o.payload
	o.payload = payload{}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.saved >= c.target {
		o.Skipped = true
		return o
	}

	savedPath, err := d.store.Save(c.saved, p.ext, p.data)
	if err != nil {
		return fail(o, err)
	}

	c.saved++
	if c.saved >= c.target {
		c.reached.Store(true)
	}
	o.Success = true
	o.SavedPath = savedPath
	return o
}

func fail(o Outcome, err error) Outcome {
	o.Err = err
	o.Kind = errs.TypeOf(err)
	return o
}

// payload carries a validated image from validate to persist
type payload struct {
	data []byte
	ext  string
}

var knownExtensions = map[string]string{
	"jpg":  "jpg",
	"jpeg": "jpg",
	"png":  "png",
	"gif":  "gif",
	"webp": "webp",
	"bmp":  "bmp",
	"tif":  "tif",
	"tiff": "tif",
}

// chooseExtension prefers the URL's extension, then the decoded format,
// then jpg
func chooseExtension(rawURL, format string) string {
	if ext := urlExtension(rawURL); ext != "" {
		return ext
	}
	if ext := imaging.Extension(format); ext != "" {
		return ext
	}
	return "jpg"
}

func urlExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	return knownExtensions[ext]
}

var cacheBusterParams = []string{"_", "t", "ts", "cb", "cache", "v", "rnd", "nocache", "timestamp"}

// StripCacheBuster removes cache-busting query parameters. When the path
// already names an image file the whole query is dropped.
func StripCacheBuster(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}

	if urlExtension(rawURL) != "" {
		u.RawQuery = ""
		return u.String()
	}

	q := u.Query()
	changed := false
	for _, name := range cacheBusterParams {
		if q.Has(name) {
			q.Del(name)
			changed = true
		}
	}
	if !changed {
		return rawURL
	}
	u.RawQuery = q.Encode()
	return u.String()
}
