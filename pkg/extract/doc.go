// Package extract turns a page snapshot into candidate image URLs.
//
// An Extractor runs an ordered list of heuristics, most reliable first, and
// stops consulting later ones once a snapshot has produced enough URLs.
// Every returned URL is absolute http or https. A failing heuristic is
// logged and skipped; it never aborts extraction.
package extract
