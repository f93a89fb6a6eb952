package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgharvest/pkg/browser"
	"imgharvest/pkg/browser/browsertest"
	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/metadata"
	"imgharvest/pkg/ratelimit"
	"imgharvest/pkg/scroll"
	"imgharvest/pkg/storage"
)

func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	r := rand.New(rand.NewPCG(uint64(w), uint64(h)))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(r.IntN(256)), uint8(r.IntN(256)), uint8(r.IntN(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// imageServer serves a valid image under /ok/ and 404 everywhere else
func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	payload := noisyPNG(t, 128, 128)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/ok/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func resultsPage(urls []string) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"results\">")
	for i, u := range urls {
		fmt.Fprintf(&b, "<div class=\"serp-item\"><a class=\"serp-item__link\" href=\"/images/search?pos=%d\"><img src=%q></a></div>", i, u)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func testConfig(t *testing.T, target int) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Categories = map[string]string{"test": "x"}
	cfg.Harvest.TargetCount = target
	cfg.Harvest.FetchMultiplier = 1.5
	cfg.Harvest.ScrollPause = time.Millisecond
	cfg.Harvest.MaxScrollPause = 2 * time.Millisecond
	cfg.Browser.PageLoadTimeout = time.Second
	cfg.Download.ConcurrentDownloads = 1
	cfg.Download.Shuffle = false
	cfg.Download.RetryDelay = time.Millisecond
	cfg.Download.DelayMin = 0
	cfg.Download.DelayMax = 0
	cfg.Output.BaseDirectory = t.TempDir()
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config, factory browser.Factory, opts ...Option) *Scraper {
	t.Helper()
	opts = append([]Option{
		WithDriverFactory(factory),
		WithLimiter(ratelimit.Unlimited{}),
		WithLogger(logger.NewNopLogger()),
	}, opts...)
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	return s
}

func candidateURLs(base string, ok ...bool) []string {
	var urls []string
	for i, good := range ok {
		dir := "bad"
		if good {
			dir = "ok"
		}
		urls = append(urls, fmt.Sprintf("%s/%s/%d.png", base, dir, i))
	}
	return urls
}

func TestRunCategoryMeetsTarget(t *testing.T) {
	srv := imageServer(t)
	urls := candidateURLs(srv.URL, false, true, false, true, true)

	cfg := testConfig(t, 3)
	driver := browsertest.NewDriver(browsertest.Frame{
		URL:  "https://yandex.ru/images/search?text=x",
		HTML: resultsPage(urls),
	})
	s := newTestScraper(t, cfg, driver.Factory())

	res := s.RunCategory(context.Background(), config.Category{Name: "test", Query: "x"})

	assert.Equal(t, 3, res.Requested)
	assert.Equal(t, 3, res.SuccessCount)
	assert.Equal(t, []string{urls[0], urls[2]}, res.FailedURLs)
	assert.Equal(t, 5, res.CandidateCount)
	assert.Equal(t, scroll.StateConverged, res.ScrollState)
	assert.Zero(t, res.Shortfall())
	assert.Empty(t, res.FailedListPath)
	assert.NotEmpty(t, res.RunID)

	dir := filepath.Join(cfg.Output.BaseDirectory, "test")
	for i := 0; i < 3; i++ {
		assert.FileExists(t, filepath.Join(dir, storage.FileName(i, "png")))
	}
	assert.NoFileExists(t, filepath.Join(dir, storage.FailedListName))
	assert.Equal(t, []string{"https://yandex.ru/images/search?text=x"}, driver.Navigated())
	assert.Equal(t, 1, driver.Closed())
}

func TestRunCategoryShortfall(t *testing.T) {
	srv := imageServer(t)
	urls := candidateURLs(srv.URL, false, true, false, false, true)

	cfg := testConfig(t, 3)
	driver := browsertest.NewDriver(browsertest.Frame{URL: "https://yandex.ru/images/search?text=x", HTML: resultsPage(urls)})
	s := newTestScraper(t, cfg, driver.Factory())

	res := s.RunCategory(context.Background(), config.Category{Name: "test", Query: "x"})

	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.Shortfall())
	assert.Equal(t, []string{urls[0], urls[2], urls[3]}, res.FailedURLs)

	require.NotEmpty(t, res.FailedListPath)
	data, err := os.ReadFile(res.FailedListPath)
	require.NoError(t, err)
	assert.Equal(t, urls[0]+"\n"+urls[2]+"\n"+urls[3]+"\n", string(data))
}

func TestRunCategoryRemovesStaleOutput(t *testing.T) {
	srv := imageServer(t)
	urls := candidateURLs(srv.URL, true, true)

	cfg := testConfig(t, 1)
	dir := filepath.Join(cfg.Output.BaseDirectory, "test")
	require.NoError(t, os.MkdirAll(dir, 0755))
	stale := []string{storage.FailedListName, "0000.jpg", "0001.png", "0002.png"}
	for _, name := range stale {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("old\n"), 0644))
	}

	driver := browsertest.NewDriver(browsertest.Frame{URL: "https://example.com/", HTML: resultsPage(urls)})
	res := newTestScraper(t, cfg, driver.Factory()).RunCategory(context.Background(), config.Category{Name: "test", Query: "x"})

	assert.Equal(t, 1, res.SuccessCount)
	for _, name := range stale {
		assert.NoFileExists(t, filepath.Join(dir, name))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^0000\.png$`, entries[0].Name())
}

func TestRunCategoryDriverInitFailure(t *testing.T) {
	cfg := testConfig(t, 2)
	initErr := errs.New(errs.ErrorTypeDriverInit, "no browser", nil)
	factory := func(context.Context) (browser.Driver, error) { return nil, initErr }

	res := newTestScraper(t, cfg, factory).RunCategory(context.Background(), config.Category{Name: "test", Query: "x"})

	assert.Equal(t, scroll.StateFailed, res.ScrollState)
	assert.Zero(t, res.CandidateCount)
	assert.Equal(t, 2, res.Shortfall())
	assert.True(t, errors.Is(res.Err, initErr))
	assert.FileExists(t, res.FailedListPath)
}

func TestRunCategoryWaitsForResultTiles(t *testing.T) {
	srv := imageServer(t)
	urls := candidateURLs(srv.URL, true, true)

	var bare strings.Builder
	for _, u := range urls {
		fmt.Fprintf(&bare, "<img src=%q>", u)
	}

	cfg := testConfig(t, 2)
	cfg.Browser.PageLoadTimeout = 100 * time.Millisecond
	driver := browsertest.NewDriver(browsertest.Frame{URL: "https://yandex.ru/images/search?text=x", HTML: "<html><body>" + bare.String() + "</body></html>"})

	res := newTestScraper(t, cfg, driver.Factory()).RunCategory(context.Background(), config.Category{Name: "test", Query: "x"})

	assert.Equal(t, scroll.StateFailed, res.ScrollState)
	assert.True(t, errs.Is(res.Err, errs.ErrorTypePageLoadTimeout))
	assert.Zero(t, res.CandidateCount)
	assert.Equal(t, 2, res.Shortfall())
}

func TestRunContinuesAfterCategoryFailure(t *testing.T) {
	srv := imageServer(t)
	urls := candidateURLs(srv.URL, true, true)

	cfg := testConfig(t, 1)
	cfg.Categories = map[string]string{"alpha": "first", "beta": "second query"}

	var calls int32
	var drivers []*browsertest.Driver
	factory := func(context.Context) (browser.Driver, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errs.New(errs.ErrorTypeDriverInit, "launch failed", nil)
		}
		d := browsertest.NewDriver(browsertest.Frame{URL: "https://example.com/", HTML: resultsPage(urls)})
		drivers = append(drivers, d)
		return d, nil
	}

	var reported []string
	s := newTestScraper(t, cfg, factory, OnResult(func(r RunResult) { reported = append(reported, r.Category) }))
	results := s.Run(context.Background())

	require.Len(t, results, 2)
	assert.Equal(t, []string{"alpha", "beta"}, reported)
	assert.Equal(t, 1, results[0].Shortfall())
	assert.Equal(t, 1, results[1].SuccessCount)
	require.Len(t, drivers, 1)
	assert.Equal(t, []string{"https://yandex.ru/images/search?text=second+query"}, drivers[0].Navigated())
}

func TestRunStopsWhenCancelled(t *testing.T) {
	cfg := testConfig(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	factory := func(context.Context) (browser.Driver, error) {
		t.Fatal("no driver expected after cancellation")
		return nil, nil
	}
	assert.Empty(t, newTestScraper(t, cfg, factory).Run(ctx))
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "https://yandex.ru/images/search?text=red+fox", SearchURL("https://yandex.ru/images/search?text=%s", "red fox"))
	assert.Equal(t, "https://example.com/?q=a%26b", SearchURL("https://example.com/?q=", "a&b"))
}

func TestShortfall(t *testing.T) {
	assert.Equal(t, 2, RunResult{Requested: 5, SuccessCount: 3}.Shortfall())
	assert.Zero(t, RunResult{Requested: 5, SuccessCount: 5}.Shortfall())
}

func TestRunCategoryWritesManifest(t *testing.T) {
	srv := imageServer(t)
	urls := candidateURLs(srv.URL, true, false, true)

	cfg := testConfig(t, 2)
	cfg.Output.WriteManifest = true
	driver := browsertest.NewDriver(browsertest.Frame{URL: "https://example.com/", HTML: resultsPage(urls)})

	res := newTestScraper(t, cfg, driver.Factory()).RunCategory(context.Background(), config.Category{Name: "test", Query: "x"})
	require.Equal(t, 2, res.SuccessCount)
	require.NotEmpty(t, res.ManifestPath)

	m, err := metadata.Load(filepath.Dir(res.ManifestPath))
	require.NoError(t, err)
	assert.Equal(t, res.RunID, m.RunID)
	require.Len(t, m.Images, 2)
	assert.Equal(t, "0000.png", m.Images[0].File)
	assert.Equal(t, urls[0], m.Images[0].SourceURL)
	assert.Equal(t, 128, m.Images[0].Width)
	assert.Equal(t, "1:1", m.Images[0].AspectRatio)
}
