package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/lifecycle"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

// printSummary writes the run totals and where the report went
func printSummary(w io.Writer, s domain.Summary, out lifecycle.Outcome) {
	fmt.Fprintln(w)
	bold.Fprintf(w, "Run %s\n", runID(out))
	fmt.Fprintf(w, "   Total:    %d (%s)\n", s.Total, s.Duration.Round(time.Second))
	green.Fprintf(w, "   Passed:   %d\n", s.Passed)
	if s.FailedTotal() > 0 {
		red.Fprintf(w, "   Failed:   %d", s.Failed)
		if s.Errors > 0 {
			red.Fprintf(w, " (+%d errors)", s.Errors)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "   Failed:   0\n")
	}
	if s.Skipped > 0 {
		yellow.Fprintf(w, "   Skipped:  %d\n", s.Skipped)
	}
	if s.XFailed+s.XPassed > 0 {
		dim.Fprintf(w, "   Expected failures: %d, unexpected passes: %d\n", s.XFailed, s.XPassed)
	}

	fmt.Fprintln(w)
	switch {
	case out.ReportPath != "":
		fmt.Fprintf(w, "   Report:   %s\n", out.ReportPath)
	case out.Err != nil:
		red.Fprintf(w, "   No report: %v\n", out.Err)
	}
	for _, uri := range out.Published {
		dim.Fprintf(w, "   Published %s\n", uri)
	}
	if len(out.Pruned) > 0 {
		dim.Fprintf(w, "   Pruned %d old run(s)\n", len(out.Pruned))
	}
}

func runID(out lifecycle.Outcome) string {
	if out.Run == nil {
		return "-"
	}
	return out.Run.ID
}
