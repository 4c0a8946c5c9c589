package ui

import (
	"fmt"
	"io"
	"time"

	"postgrab/pkg/address"
	"postgrab/pkg/report"
)

// PrintReport writes the failed and skipped lists followed by the totals.
// API prefixes are stripped so the listed URLs open in a browser.
func PrintReport(w io.Writer, rep *report.Report, outDir string, elapsed time.Duration) {
	if rep == nil {
		return
	}
	for _, ref := range rep.Failed {
		fmt.Fprintf(w, " %s\t%s\n", Red("Failed"), Red(address.WebURL(ref)))
	}
	for _, ref := range rep.Skipped {
		fmt.Fprintf(w, " %s\t%s\n", Yellow("Skip"), Yellow(address.WebURL(ref)))
	}

	fmt.Fprintf(w, "Downloaded to %s in %s\n", Cyan(outDir), formatDuration(elapsed))
	fmt.Fprintf(w, "%s: %s\n", Cyan("Total size"), rep.Size())
	fmt.Fprintf(w, "%s: %d\n", Green("Success files"), rep.SuccessCount)
	fmt.Fprintf(w, "%s: %d\n", Yellow("Skipped files"), len(rep.Skipped))
	fmt.Fprintf(w, "%s: %d\n", Red("Failed files"), len(rep.Failed))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
