// Package browser abstracts the page driver used to render and scroll the
// image search results.
//
// Driver is the narrow surface the scroll controller needs: navigate,
// run a script, take a DOM snapshot, close. RodDriver implements it over
// go-rod with stealth injection, extra request headers and resource
// blocking. Snapshots are parsed with goquery so heuristics and the blocked
// page detector can run CSS selectors without touching the live page.
package browser
