package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/lifecycle"
)

func TestPrintSummary(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name    string
		summary domain.Summary
		out     lifecycle.Outcome
		want    []string
		absent  []string
	}{
		{
			name:    "failures with report",
			summary: domain.Summary{Total: 3, Passed: 1, Failed: 1, Errors: 1, Duration: 90 * time.Second},
			out: lifecycle.Outcome{
				Run:        &domain.Run{ID: "20240102_030405"},
				ReportPath: "execution_reports/20240102_030405/report.html",
				Pruned:     []string{"a", "b"},
			},
			want: []string{"Run 20240102_030405", "Total:    3 (1m30s)", "Failed:   1 (+1 errors)", "Report:   execution_reports/20240102_030405/report.html", "Pruned 2 old run(s)"},
		},
		{
			name:    "no report",
			summary: domain.Summary{Total: 2, Passed: 1, Skipped: 1},
			out:     lifecycle.Outcome{Err: errors.New("cannot parse results file")},
			want:    []string{"Run -", "Skipped:  1", "No report: cannot parse results file"},
			absent:  []string{"Report:"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSummary(&buf, tt.summary, tt.out)
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}
