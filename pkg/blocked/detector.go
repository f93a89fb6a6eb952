// Package blocked recognizes anti-bot interstitials on the search page and
// waits for them to be cleared.
package blocked

import (
	"net/url"
	"strings"

	"imgharvest/pkg/browser"
)

// DefaultTextMarkers are matched case-insensitively against the page text
var DefaultTextMarkers = []string{
	"captcha",
	"are you a robot",
	"not a robot",
	"unusual traffic",
	"подтвердите, что запросы отправляли вы",
	"вы не робот",
}

// DefaultURLMarkers are matched case-insensitively against the page URL path
var DefaultURLMarkers = []string{
	"showcaptcha",
	"/captcha",
	"/sorry/",
}

// DefaultSelectors match challenge widgets
var DefaultSelectors = []string{
	`form[action*="captcha"]`,
	`iframe[src*="captcha"]`,
	`iframe[src*="recaptcha"]`,
	`.CheckboxCaptcha`,
	`.AdvancedCaptcha`,
	`#captcha`,
}

// Detector inspects snapshots for challenge pages. It holds no state.
type Detector struct {
	textMarkers []string
	urlMarkers  []string
	selectors   []string
}

// NewDetector creates a Detector with the default markers
func NewDetector() *Detector {
	return &Detector{
		textMarkers: lowerAll(DefaultTextMarkers),
		urlMarkers:  lowerAll(DefaultURLMarkers),
		selectors:   DefaultSelectors,
	}
}

// Detect reports whether snap looks like a challenge page
func (d *Detector) Detect(snap browser.Snapshot) bool {
	_, blocked := d.Reason(snap)
	return blocked
}

// Reason returns the first marker that matched, if any
func (d *Detector) Reason(snap browser.Snapshot) (string, bool) {
	if u, err := url.Parse(snap.URL()); err == nil {
		path := strings.ToLower(u.Path)
		for _, m := range d.urlMarkers {
			if strings.Contains(path, m) {
				return "url:" + m, true
			}
		}
	}

	text := strings.ToLower(snap.Text())
	for _, m := range d.textMarkers {
		if strings.Contains(text, m) {
			return "text:" + m, true
		}
	}

	for _, sel := range d.selectors {
		found, err := snap.Query(sel)
		if err == nil && len(found) > 0 {
			return "selector:" + sel, true
		}
	}
	return "", false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
