package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Element is a matched DOM element
type Element interface {
	Attr(name string) (string, bool)
	Text() string
}

// Snapshot is an immutable copy of the page DOM at one point in time
type Snapshot interface {
	// Query returns the elements matching a CSS selector. An invalid selector
	// is an error rather than an empty result.
	Query(selector string) ([]Element, error)
	// Text returns the visible text content of the document
	Text() string
	// URL returns the page URL the snapshot was taken from
	URL() string
	// HTML returns the serialized document
	HTML() string
}

type htmlSnapshot struct {
	doc  *goquery.Document
	raw  string
	url  string
	text string
}

type selectionElement struct {
	sel *goquery.Selection
}

// NewSnapshot parses rawHTML into a Snapshot for pageURL
func NewSnapshot(rawHTML, pageURL string) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &htmlSnapshot{
		doc:  doc,
		raw:  rawHTML,
		url:  pageURL,
		text: visibleText(doc),
	}, nil
}

// nonVisible holds elements whose text never renders
const nonVisible = "script, style, noscript, template"

// visibleText collapses the rendered text of doc, leaving the original tree
// intact for queries
func visibleText(doc *goquery.Document) string {
	visible := doc.Selection.Clone()
	visible.Find(nonVisible).Remove()
	return strings.Join(strings.Fields(visible.Text()), " ")
}

func (s *htmlSnapshot) Query(selector string) ([]Element, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	found := s.doc.FindMatcher(matcher)
	elements := make([]Element, 0, found.Length())
	found.Each(func(_ int, sel *goquery.Selection) {
		elements = append(elements, selectionElement{sel: sel})
	})
	return elements, nil
}

func (s *htmlSnapshot) Text() string { return s.text }
func (s *htmlSnapshot) URL() string  { return s.url }
func (s *htmlSnapshot) HTML() string { return s.raw }

func (e selectionElement) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e selectionElement) Text() string {
	return strings.TrimSpace(e.sel.Text())
}
