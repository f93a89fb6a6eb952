// Package candidates holds the deduplicated set of image URLs discovered for
// one category.
package candidates

// Set is an insertion-ordered set of candidate URLs. The raw string is the
// identity. It is not safe for concurrent use; the scroll controller is its
// only owner.
type Set struct {
	seen  map[string]struct{}
	order []string
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Add inserts url and reports whether it was new
func (s *Set) Add(url string) bool {
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	s.order = append(s.order, url)
	return true
}

// AddAll inserts every url and returns how many were new
func (s *Set) AddAll(urls []string) int {
	added := 0
	for _, u := range urls {
		if s.Add(u) {
			added++
		}
	}
	return added
}

// Contains reports whether url is in the set
func (s *Set) Contains(url string) bool {
	_, ok := s.seen[url]
	return ok
}

// Len returns the number of distinct URLs
func (s *Set) Len() int {
	return len(s.order)
}

// URLs returns a copy of the URLs in insertion order
func (s *Set) URLs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
