package runner

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/portalsuite/internal/artifact"
	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/results"
)

func sampleReport() *Report {
	return &Report{
		Name:       "portalsuite",
		StartedAt:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Duration:   12 * time.Second,
		Properties: map[string]string{"browser": "chromium"},
		Records: []domain.TestRecord{
			{Group: "portal.login", Name: "ok", Outcome: domain.OutcomePassed, Duration: time.Second},
			{Group: "portal.login", Name: "broken", Outcome: domain.OutcomeFailed, Duration: 2 * time.Second, Detail: "E   locator timeout\nE   call log"},
			{Group: "portal.cargo", Name: "skipped", Outcome: domain.OutcomeSkipped, Detail: "blocked"},
			{Group: "portal.cargo", Name: "known", Outcome: domain.OutcomeXFailed, Detail: "E   not fixed yet"},
		},
	}
}

func TestMarshalJUnit(t *testing.T) {
	data, err := MarshalJUnit(sampleReport())
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `<testsuite name="portalsuite" tests="4" failures="1" errors="0" skipped="2" time="12.000" timestamp="2024-01-01T10:00:00"`)
	assert.Contains(t, out, `<property name="browser" value="chromium"></property>`)
	assert.Contains(t, out, `<failure message="E   locator timeout">E   locator timeout`)
	assert.Contains(t, out, `<skipped type="xfail" message="expected failure">`)
}

func TestWriteJUnit_RoundTripsThroughParser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "report.xml")
	require.NoError(t, WriteJUnit(path, sampleReport()))

	p := results.NewParser(artifact.NewLocator(SourceExt, nil), artifact.NewEmbedder(nil), nil)
	res, err := p.Parse(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.Passed)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, 1, res.Summary.Skipped)
	assert.Equal(t, 1, res.Summary.XFailed)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, "portal.login", res.Groups[0].Key)
	assert.Equal(t, "E   locator timeout\nE   call log", res.Groups[0].Records[1].Detail)
}

func TestWriteJUnit_ExpectedOutcomes(t *testing.T) {
	rep := &Report{
		Name: "portalsuite",
		Records: []domain.TestRecord{
			{Group: "portal.cargo", Name: "fixed_upstream", Outcome: domain.OutcomeXPassed, Duration: time.Second},
			{Group: "portal.cargo", Name: "known", Outcome: domain.OutcomeXFailed, Detail: "E   not fixed yet"},
			{Group: "portal.cargo", Name: "ok", Outcome: domain.OutcomePassed},
		},
	}
	data, err := MarshalJUnit(rep)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<property name="outcome" value="xpassed"></property>`)
	assert.Contains(t, string(data), `<property name="outcome" value="xfailed"></property>`)

	path := filepath.Join(t.TempDir(), "report.xml")
	require.NoError(t, WriteJUnit(path, rep))
	res, err := results.NewParser(nil, nil, nil).Parse(path, nil)
	require.NoError(t, err)

	recs := res.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, domain.OutcomeXPassed, recs[0].Outcome)
	assert.Equal(t, domain.OutcomeXFailed, recs[1].Outcome)
	assert.Equal(t, "E   not fixed yet", recs[1].Detail)
	assert.Equal(t, domain.OutcomePassed, recs[2].Outcome)
	assert.Equal(t, 1, res.Summary.XPassed)
	assert.Equal(t, 1, res.Summary.Passed)
}
