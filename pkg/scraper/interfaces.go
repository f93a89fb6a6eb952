package scraper

import (
	"imgharvest/pkg/browser"
	"imgharvest/pkg/fetch"
	"imgharvest/pkg/imaging"
	"imgharvest/pkg/ratelimit"
)

// Collaborators the pipeline consumes. The defaults are a rod browser, the
// HTTP fetch client, the standard image decoder and a per-minute limiter.
type (
	DriverFactory = browser.Factory
	ImageFetcher  = fetch.Fetcher
	ImageDecoder  = imaging.Decoder
	Limiter       = ratelimit.Limiter
)
