package ui

import (
	"fmt"
	"strings"
	"time"

	"imgharvest/pkg/scraper"
)

// PrintRunReport prints the report block for one finished category
func PrintRunReport(res scraper.RunResult) {
	if quiet.Load() && res.Shortfall() == 0 {
		return
	}

	fmt.Fprintf(out, "\n%s %s %s\n", Magenta("▶"), Bold(res.Category), Dim(res.RunID))
	fmt.Fprintf(out, "  %-12s %d / %d\n", "images", res.SuccessCount, res.Requested)
	fmt.Fprintf(out, "  %-12s %d (scroll %s after %d iterations)\n", "candidates",
		res.CandidateCount, res.ScrollState, res.ScrollIterations)
	fmt.Fprintf(out, "  %-12s %d\n", "failed", len(res.FailedURLs))
	fmt.Fprintf(out, "  %-12s %s\n", "duration", res.Duration.Round(time.Millisecond))

	if res.Err != nil {
		fmt.Fprintf(out, "  %-12s %s\n", "error", Red(res.Err.Error()))
	}
	if n := res.Shortfall(); n > 0 {
		line := fmt.Sprintf("  SHORTFALL: %d of %d images missing", n, res.Requested)
		if res.FailedListPath != "" {
			line += " (see " + res.FailedListPath + ")"
		}
		fmt.Fprintln(out, Red(line))
	}
}

// PrintSummary prints a table over all categories and returns the number
// of categories that ended in shortfall
func PrintSummary(results []scraper.RunResult) int {
	nameWidth := len("CATEGORY")
	for _, r := range results {
		nameWidth = max(nameWidth, len(r.Category))
	}

	header := fmt.Sprintf("%-*s  %9s  %8s  %10s  %-10s", nameWidth, "CATEGORY", "REQUESTED", "ACHIEVED", "CANDIDATES", "SCROLL")
	fmt.Fprintln(out)
	fmt.Fprintln(out, Bold(header))
	fmt.Fprintln(out, Dim(strings.Repeat("-", len(header))))

	short := 0
	for _, r := range results {
		row := fmt.Sprintf("%-*s  %9d  %8d  %10d  %-10s", nameWidth, r.Category, r.Requested, r.SuccessCount, r.CandidateCount, r.ScrollState)
		if r.Shortfall() > 0 {
			short++
			fmt.Fprintln(out, Red(row+"  SHORTFALL"))
			continue
		}
		fmt.Fprintln(out, Green(row))
	}

	if short > 0 {
		fmt.Fprintln(out, Red(fmt.Sprintf("\n%d of %d categories ended in shortfall", short, len(results))))
	} else if len(results) > 0 {
		fmt.Fprintln(out, Green(fmt.Sprintf("\nAll %d categories reached their target", len(results))))
	}
	return short
}
