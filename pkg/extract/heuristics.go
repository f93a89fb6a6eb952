package extract

import (
	"net/url"
	"strings"

	"imgharvest/pkg/browser"
)

// Heuristic names
const (
	HeuristicImgURLLinks = "img_url_links"
	HeuristicDirectImg   = "direct_img_src"
	HeuristicLazyImg     = "lazy_img_attrs"
)

// denyMarkers flag image sources that are page chrome rather than results
var denyMarkers = []string{
	"logo",
	"captcha",
	"sprite",
	"pixel",
	"spacer",
	"favicon",
	"1x1",
	"tracking",
	"blank.gif",
}

// lazyAttrs are the attributes lazy loaders keep the real source in
var lazyAttrs = []string{"data-src", "data-original", "data-lazy-src"}

// DefaultHeuristics returns the standard heuristic order
func DefaultHeuristics() []Heuristic {
	return []Heuristic{
		{Name: HeuristicImgURLLinks, Func: ImgURLLinks},
		{Name: HeuristicDirectImg, Func: DirectImages},
		{Name: HeuristicLazyImg, Func: LazyImages},
	}
}

// ImgURLLinks reads the original image address from result links carrying
// an img_url query parameter
func ImgURLLinks(snap browser.Snapshot) ([]string, error) {
	links, err := snap.Query(`a[href*="img_url="]`)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(snap.URL())
	var out []string
	for _, link := range links {
		href, ok := link.Attr("href")
		if !ok {
			continue
		}
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		if base != nil {
			u = base.ResolveReference(u)
		}

		target := u.Query().Get("img_url")
		if target == "" {
			continue
		}
		// some engines encode the parameter twice
		if lower := strings.ToLower(target); strings.HasPrefix(lower, "http%3a") || strings.HasPrefix(lower, "https%3a") {
			if decoded, err := url.QueryUnescape(target); err == nil {
				target = decoded
			}
		}
		if lower := strings.ToLower(target); !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			continue
		}
		out = append(out, target)
	}
	return out, nil
}

// DirectImages collects img src values that do not look like page chrome
func DirectImages(snap browser.Snapshot) ([]string, error) {
	imgs, err := snap.Query("img[src]")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, img := range imgs {
		src, ok := img.Attr("src")
		if !ok || src == "" || isDenied(src) {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}

// LazyImages collects sources from lazy-loading attributes
func LazyImages(snap browser.Snapshot) ([]string, error) {
	imgs, err := snap.Query("img[data-src], img[data-original], img[data-lazy-src]")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, img := range imgs {
		for _, attr := range lazyAttrs {
			v, ok := img.Attr(attr)
			if ok && v != "" && !isDenied(v) {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func isDenied(src string) bool {
	lower := strings.ToLower(src)
	for _, marker := range denyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Normalize resolves raw against base and reports whether the result is an
// absolute http(s) URL with a host. Fragments are dropped.
func Normalize(raw, base string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "javascript:") {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		b, err := url.Parse(base)
		if err != nil || !b.IsAbs() {
			return "", false
		}
		u = b.ResolveReference(u)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
