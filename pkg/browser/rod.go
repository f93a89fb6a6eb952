package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
)

// resourceTypes maps config names to protocol resource types
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// RodDriver drives a single Chromium tab through go-rod
type RodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	owned    bool
	log      logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewRodDriver launches (or connects to) a browser and opens one prepared
// tab. Failures are reported as driver_init errors.
func NewRodDriver(ctx context.Context, cfg config.BrowserConfig, fetchCfg config.FetchConfig, log logger.Logger) (*RodDriver, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	d := &RodDriver{log: log}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		d.launcher = newLauncher(cfg)
		u, err := d.launcher.Context(ctx).Launch()
		if err != nil {
			return nil, errs.New(errs.ErrorTypeDriverInit, "failed to launch browser", err)
		}
		controlURL = u
		d.owned = true
	}

	d.browser = rod.New().ControlURL(controlURL)
	if err := d.browser.Connect(); err != nil {
		d.killLauncher()
		return nil, errs.New(errs.ErrorTypeDriverInit, "failed to connect to browser", err)
	}

	page, err := d.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = d.Close()
		return nil, errs.New(errs.ErrorTypeDriverInit, "failed to open page", err)
	}
	d.page = page

	if cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			log.WithError(err).Warn("Stealth injection failed, proceeding without stealth")
		}
	}

	if fetchCfg.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{
			UserAgent:      fetchCfg.UserAgent,
			AcceptLanguage: fetchCfg.AcceptLanguage,
		}).Call(page); err != nil {
			log.WithError(err).Warn("User agent override failed")
		}
	}

	headers := map[string]string{}
	if fetchCfg.AcceptLanguage != "" {
		headers["Accept-Language"] = fetchCfg.AcceptLanguage
	}
	if fetchCfg.Referer != "" {
		headers["Referer"] = fetchCfg.Referer
	}
	if len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)
	}

	d.router = blockResources(page, cfg.BlockedResources)
	return d, nil
}

// NewRodFactory returns a Factory producing RodDrivers for cfg
func NewRodFactory(cfg *config.Config, log logger.Logger) Factory {
	return func(ctx context.Context) (Driver, error) {
		return NewRodDriver(ctx, cfg.Browser, cfg.Fetch, log)
	}
}

func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	if cfg.Stealth {
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
	}
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))
	return l
}

// blockResources fails requests for the named resource types. It returns
// nil when nothing is blocked.
func blockResources(page *rod.Page, names []string) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(names))
	for _, name := range names {
		if rt, ok := resourceTypes[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if _, ok := blocked[h.Request.Type()]; ok {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// Navigate starts loading url in the tab
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	if err := d.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// ExecuteScript evaluates js in the tab
func (d *RodDriver) ExecuteScript(ctx context.Context, js string) (gson.JSON, error) {
	res, err := d.page.Context(ctx).Eval(js)
	if err != nil {
		return gson.JSON{}, fmt.Errorf("execute script: %w", err)
	}
	return res.Value, nil
}

// Snapshot captures the rendered HTML and current URL
func (d *RodDriver) Snapshot(ctx context.Context) (Snapshot, error) {
	p := d.page.Context(ctx)

	raw, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}

	pageURL := ""
	if info, err := p.Info(); err == nil {
		pageURL = info.URL
	}
	return NewSnapshot(raw, pageURL)
}

// Close stops request interception, closes the tab and, when the browser
// was launched by this driver, shuts it down
func (d *RodDriver) Close() error {
	d.closeOnce.Do(func() {
		var closeErrs []error
		if d.router != nil {
			if err := d.router.Stop(); err != nil {
				closeErrs = append(closeErrs, fmt.Errorf("stop hijack router: %w", err))
			}
		}
		if d.page != nil {
			if err := d.page.Close(); err != nil {
				closeErrs = append(closeErrs, fmt.Errorf("close page: %w", err))
			}
		}
		if d.owned && d.browser != nil {
			if err := d.browser.Close(); err != nil {
				closeErrs = append(closeErrs, fmt.Errorf("close browser: %w", err))
			}
		}
		d.killLauncher()
		d.closeErr = errors.Join(closeErrs...)
	})
	return d.closeErr
}

func (d *RodDriver) killLauncher() {
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
		d.launcher = nil
	}
}
