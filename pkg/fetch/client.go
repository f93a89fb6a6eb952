package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
	"imgharvest/pkg/logger"
)

// Fetcher retrieves a single image payload
type Fetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Options configures a Client
type Options struct {
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
	Referer        string
	Proxy          string
	ChromeTLS      bool
	// MaxBytes caps the payload size; zero means unlimited
	MaxBytes int64
	// RequireContentLength rejects responses without a positive
	// Content-Length header
	RequireContentLength bool
}

// OptionsFromConfig builds Options from the fetch and download sections
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:              cfg.Download.DownloadTimeout,
		UserAgent:            cfg.Fetch.UserAgent,
		AcceptLanguage:       cfg.Fetch.AcceptLanguage,
		Referer:              cfg.Fetch.Referer,
		Proxy:                cfg.Fetch.Proxy,
		ChromeTLS:            cfg.Fetch.ChromeTLS,
		MaxBytes:             cfg.Download.MaxFileBytes,
		RequireContentLength: cfg.Download.RequireContentLength,
	}
}

// Client is an HTTP client for image downloads
type Client struct {
	httpClient    *http.Client
	headers       map[string]string
	maxBytes      int64
	requireLength bool
	logger        logger.Logger
}

// NewClient creates a new image download client
func NewClient(opts Options, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// keep Content-Length meaningful
	transport.DisableCompression = true

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", opts.Proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if opts.ChromeTLS {
		transport.DialTLSContext = dialTLSChrome
	}

	headers := map[string]string{
		"User-Agent":    opts.UserAgent,
		"Accept":        "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
		"Cache-Control": "no-cache",
		"Pragma":        "no-cache",
	}
	if opts.UserAgent == "" {
		headers["User-Agent"] = config.DefaultUserAgent
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}
	if opts.Referer != "" {
		headers["Referer"] = opts.Referer
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		headers:       headers,
		maxBytes:      opts.MaxBytes,
		requireLength: opts.RequireContentLength,
		logger:        log,
	}, nil
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// FetchImage downloads rawURL and returns the body
func (c *Client) FetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &errs.Error{Type: errs.ErrorTypeUnknown, Message: "invalid request", URL: rawURL, Err: err}
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errs.Error{Type: errs.ErrorTypeFetchTransport, Message: "request failed", URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":            rawURL,
		"status":         resp.StatusCode,
		"content_length": resp.ContentLength,
		"duration":       time.Since(start),
	})

	if err := checkResponseStatus(resp, rawURL); err != nil {
		return nil, err
	}

	if c.requireLength && resp.ContentLength <= 0 {
		return nil, &errs.Error{Type: errs.ErrorTypeContentTooSmall, Message: "missing or zero content length", URL: rawURL}
	}
	if c.maxBytes > 0 && resp.ContentLength > c.maxBytes {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeContentTooLarge,
			Message: fmt.Sprintf("content length %d exceeds %d bytes", resp.ContentLength, c.maxBytes),
			URL:     rawURL,
		}
	}

	var body io.Reader = resp.Body
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &errs.Error{Type: errs.ErrorTypeFetchTransport, Message: "failed to read body", URL: rawURL, Err: err}
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeContentTooLarge,
			Message: fmt.Sprintf("body exceeds %d bytes", c.maxBytes),
			URL:     rawURL,
		}
	}
	if len(data) == 0 {
		return nil, &errs.Error{Type: errs.ErrorTypeContentTooSmall, Message: "empty body", URL: rawURL}
	}
	return data, nil
}

// checkResponseStatus maps non-2xx responses to fetch_status errors
func checkResponseStatus(resp *http.Response, rawURL string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return errs.NewStatus(resp.StatusCode, rawURL)
}
