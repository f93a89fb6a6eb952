// Package scraper runs the harvest pipeline for every configured category.
//
// Each category is processed on its own, one after another:
//
//  1. A page driver is created and the search page for the category query
//     is scrolled until enough candidate URLs are collected (package scroll).
//  2. The candidates are downloaded, validated and stored until the exact
//     target count is reached (package downloader).
//  3. When the target is missed, the failed URLs are written to
//     <output>/<category>/failed_urls.txt.
//
// A failure in one category never stops the next one. Nothing is carried
// over between categories or between runs.
//
// Usage:
//
//	cfg, err := config.Load("", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s, err := scraper.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, res := range s.Run(ctx) {
//	    if res.Shortfall() > 0 {
//	        fmt.Printf("%s: %d short\n", res.Category, res.Shortfall())
//	    }
//	}
package scraper
