// Package scroll drives an infinite-scroll result page until enough
// candidate URLs are collected or the page stops yielding new ones.
//
// A run moves through LOADING, SCROLLING and one terminal state
// (CONVERGED, EXHAUSTED, BLOCKED or FAILED) before DONE. The driver is
// closed on every path and the candidates gathered so far are always
// returned.
package scroll
