package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/lifecycle"
)

func TestFinishProgress_BeforeSummary(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer

	bar := newProgressBar(&out, 2)
	require.NoError(t, bar.Add(2))
	finishProgress(&out, bar)
	printSummary(&out, domain.Summary{Total: 2, Passed: 2}, lifecycle.Outcome{Run: &domain.Run{ID: "20240102_030405"}})

	text := out.String()
	i := strings.Index(text, "Run 20240102_030405")
	require.GreaterOrEqual(t, i, 0)
	assert.Contains(t, text[:i], "2/2")
	assert.NotContains(t, text[i:], "█", "nothing redraws after the summary")
}

func TestFinishProgress_NoBar(t *testing.T) {
	var out bytes.Buffer
	finishProgress(&out, nil)
	assert.Empty(t, out.String())
}
