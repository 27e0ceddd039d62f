package results

import (
	"errors"
	"html"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/portalsuite/internal/artifact"
	"github.com/testforge/portalsuite/internal/domain"
)

const threeCaseJUnit = `<?xml version="1.0" encoding="utf-8"?>
<testsuites>
  <testsuite name="pytest" errors="0" failures="1" skipped="1" tests="3" time="12.5" hostname="ci-runner-1" timestamp="2024-01-01T10:00:00">
    <testcase classname="tests.test_login" name="test_ok[chromium]" time="1.25"/>
    <testcase classname="tests.test_login" name="test_login[chromium]" time="8.00">
      <failure message="AssertionError">E   AssertionError: expected dashboard
&gt; assert page.is_visible()</failure>
    </testcase>
    <testcase classname="tests.test_proposal" name="test_skip[chromium]" time="0.00">
      <skipped type="pytest.skip" message="blocked by an earlier terminal failure"/>
    </testcase>
  </testsuite>
</testsuites>`

func newTestParser() *Parser {
	return NewParser(artifact.NewLocator(".py", nil), artifact.NewEmbedder(nil), nil)
}

func writeResults(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n"), 0o644))
}

func TestParser_JUnit_ThreeCases(t *testing.T) {
	run := t.TempDir()
	resultsDir := filepath.Join(run, "test-results")
	shot := filepath.Join(resultsDir, "tests-test-login-py-test-login-chromium", "test-failed-1.png")
	writePNG(t, shot)
	path := writeResults(t, run, "report.xml", threeCaseJUnit)

	res, err := newTestParser().Parse(path, []string{resultsDir, filepath.Join(run, "screenshots")})
	require.NoError(t, err)

	assert.Equal(t, FormatJUnit, res.Format)
	assert.Equal(t, 3, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.Passed)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, 1, res.Summary.Skipped)
	assert.Equal(t, res.Summary.Total, res.Summary.Passed+res.Summary.Failed+res.Summary.Skipped)
	assert.Equal(t, 12500*time.Millisecond, res.Summary.Duration)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, "tests.test_login", res.Groups[0].Key)
	assert.Equal(t, "tests.test_proposal", res.Groups[1].Key)

	recs := res.Records()
	require.Len(t, recs, 3)
	assert.Empty(t, recs[0].ScreenshotURI)
	assert.True(t, strings.HasPrefix(recs[1].ScreenshotURI, "data:image/png;base64,"))
	assert.Equal(t, shot, recs[1].ScreenshotPath)
	assert.Contains(t, recs[1].Detail, "AssertionError: expected dashboard")
	assert.Empty(t, recs[2].ScreenshotURI)
	assert.Equal(t, "blocked by an earlier terminal failure", recs[2].Detail)

	assert.Equal(t, []string{shot}, res.Embedded)
	assert.Contains(t, res.Environment, EnvEntry{Key: "Host", Value: "ci-runner-1"})
}

func TestParser_JUnit_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.Outcome
	}{
		{"clean", ``, domain.OutcomePassed},
		{"failure", `<failure message="boom"/>`, domain.OutcomeFailed},
		{"error", `<error message="setup failed"/>`, domain.OutcomeFailed},
		{"skipped", `<skipped/>`, domain.OutcomeSkipped},
		{"failure wins over skipped", `<skipped/><failure>x</failure>`, domain.OutcomeFailed},
		{"output only", `<system-out>hello</system-out>`, domain.OutcomePassed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xml := `<testsuite name="s" time="1"><testcase classname="c" name="n" time="0.5">` + tt.body + `</testcase></testsuite>`
			path := writeResults(t, t.TempDir(), "report.xml", xml)

			res, err := NewParser(nil, nil, nil).Parse(path, nil)
			require.NoError(t, err)
			recs := res.Records()
			require.Len(t, recs, 1)
			assert.Equal(t, tt.want, recs[0].Outcome)
			s := res.Summary
			assert.Equal(t, s.Total, s.Passed+s.Failed+s.Skipped)
		})
	}
}

func TestParser_JUnit_OutcomeProperty(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.Outcome
	}{
		{"xpassed marker", `<properties><property name="outcome" value="xpassed"/></properties>`, domain.OutcomeXPassed},
		{"xfailed marker", `<properties><property name="outcome" value="xfailed"/></properties><skipped type="xfail"/>`, domain.OutcomeXFailed},
		{"pytest xfail without marker", `<skipped type="pytest.xfail" message="known"/>`, domain.OutcomeSkipped},
		{"failure ignores marker", `<properties><property name="outcome" value="xpassed"/></properties><failure>x</failure>`, domain.OutcomeFailed},
		{"other properties ignored", `<properties><property name="outcome" value="bogus"/></properties>`, domain.OutcomePassed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xml := `<testsuite name="s" time="1"><testcase classname="c" name="n" time="0.5">` + tt.body + `</testcase></testsuite>`
			path := writeResults(t, t.TempDir(), "report.xml", xml)

			res, err := NewParser(nil, nil, nil).Parse(path, nil)
			require.NoError(t, err)
			recs := res.Records()
			require.Len(t, recs, 1)
			assert.Equal(t, tt.want, recs[0].Outcome)
		})
	}
}

func TestParser_JUnit_DuplicatesCollapse(t *testing.T) {
	xml := `<testsuites>
  <testsuite name="s" time="3">
    <testcase classname="tests.test_a" name="test_one" time="1"><failure>first attempt</failure></testcase>
    <testcase classname="tests.test_a" name="test_two" time="1"/>
    <testcase classname="tests.test_a" name="test_one" time="1"/>
  </testsuite>
</testsuites>`
	path := writeResults(t, t.TempDir(), "report.xml", xml)

	res, err := NewParser(nil, nil, nil).Parse(path, nil)
	require.NoError(t, err)

	recs := res.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "test_one", recs[0].Name)
	assert.Equal(t, domain.OutcomePassed, recs[0].Outcome)
	assert.Equal(t, 2, res.Summary.Passed)
	assert.Equal(t, 0, res.Summary.Failed)
}

func TestParser_JUnit_MissingScreenshot(t *testing.T) {
	run := t.TempDir()
	path := writeResults(t, run, "report.xml", threeCaseJUnit)

	res, err := newTestParser().Parse(path, []string{filepath.Join(run, "test-results")})
	require.NoError(t, err)
	assert.Empty(t, res.Embedded)
	for _, r := range res.Records() {
		assert.Empty(t, r.ScreenshotURI)
	}
}

func TestParser_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "absent.xml")},
		{"malformed xml", writeResults(t, dir, "bad.xml", `<testsuites><testsuite>`)},
		{"wrong root", writeResults(t, dir, "root.xml", `<results/>`)},
		{"malformed json", writeResults(t, dir, "bad.json", `{"tests": [`)},
		{"json without tests", writeResults(t, dir, "empty.json", `{"title": "x"}`)},
		{"html without blob", writeResults(t, dir, "page.html", `<html><body><p>nothing</p></body></html>`)},
		{"unknown content", writeResults(t, dir, "results.txt", `plain text`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestParser().Parse(tt.path, nil)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, domain.ErrResultsParse))
		})
	}
}

const jsonBlob = `{
  "title": "report.html",
  "environment": {"Python": "3.12", "Plugins": {"playwright": "0.5", "html": "4.1"}, "Browser": "chromium"},
  "tests": {
    "tests/test_proposal.py::test_criar_booking[chromium]": [
      {"result": "Rerun", "duration": "00:00:40", "log": "E   Timeout", "extras": [{"format_type": "image", "content": "screenshots\\first.png"}]},
      {"result": "Failed", "duration": "00:01:05", "log": "E   TimeoutError: waiting for locator\n> page.click()", "extras": [{"name": "Screenshot", "format_type": "image", "content": "screenshots\\booking.png"}]}
    ],
    "tests/test_proposal.py::test_integracao_carga[chromium]": [
      {"result": "Skipped", "duration": "0 ms", "log": "blocked by an earlier terminal failure", "extras": []}
    ],
    "tests/test_login.py::test_login[chromium]": [
      {"result": "Passed", "duration": "1500 ms", "log": "", "extras": []}
    ]
  }
}`

func TestParser_JSON(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "screenshots", "booking.png"))
	writePNG(t, filepath.Join(dir, "screenshots", "first.png"))
	path := writeResults(t, dir, "results.json", jsonBlob)

	res, err := newTestParser().Parse(path, nil)
	require.NoError(t, err)

	assert.Equal(t, FormatJSON, res.Format)
	assert.Equal(t, "report.html", res.Title)
	assert.Equal(t, 3, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.Passed)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, 1, res.Summary.Skipped)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, "tests/test_proposal.py", res.Groups[0].Key)
	assert.Equal(t, "tests/test_login.py", res.Groups[1].Key)

	booking := res.Groups[0].Records[0]
	assert.Equal(t, "test_criar_booking[chromium]", booking.Name)
	assert.Equal(t, domain.OutcomeFailed, booking.Outcome)
	assert.Equal(t, 2, booking.Attempts)
	assert.Equal(t, 65*time.Second, booking.Duration)
	assert.Equal(t, "00:01:05", booking.DurationText)
	assert.True(t, strings.HasPrefix(booking.ScreenshotURI, "data:image/png;base64,"))
	assert.Equal(t, filepath.Join(dir, "screenshots", "booking.png"), booking.ScreenshotPath)

	assert.Equal(t, []string{filepath.Join(dir, "screenshots", "booking.png")}, res.Embedded,
		"only the final attempt's screenshot is embedded")

	require.Len(t, res.Environment, 3)
	assert.Equal(t, "Browser", res.Environment[0].Key)
	assert.Equal(t, "Plugins", res.Environment[1].Key)
	assert.Len(t, res.Environment[1].Items, 2)
}

func TestParser_HTMLBlob(t *testing.T) {
	dir := t.TempDir()
	page := `<!DOCTYPE html><html><head><title>report</title></head><body>
<div id="data-container" data-jsonblob="` + html.EscapeString(jsonBlob) + `"></div>
</body></html>`
	path := writeResults(t, dir, "report.html", page)

	res, err := newTestParser().Parse(path, nil)
	require.NoError(t, err)

	assert.Equal(t, FormatHTML, res.Format)
	assert.Equal(t, 3, res.Summary.Total)
	// Image files are absent, so nothing is inlined
	assert.Empty(t, res.Embedded)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		path string
		data string
		want Format
	}{
		{"xml ext", "r.xml", "", FormatJUnit},
		{"json ext", "r.json", "", FormatJSON},
		{"html ext", "r.HTML", "", FormatHTML},
		{"sniff json", "results", ` {"tests":{}}`, FormatJSON},
		{"sniff html blob", "results", `<html><div data-jsonblob="{}"></div></html>`, FormatHTML},
		{"sniff xml", "results", `<?xml version="1.0"?><testsuites/>`, FormatJUnit},
		{"unknown", "results", `hello`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.path, []byte(tt.data)))
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"00:00:05", 5 * time.Second, false},
		{"01:02:03", time.Hour + 2*time.Minute + 3*time.Second, false},
		{"00:00:01.5", 1500 * time.Millisecond, false},
		{"250 ms", 250 * time.Millisecond, false},
		{"2.5", 2500 * time.Millisecond, false},
		{"1m30s", 90 * time.Second, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitTestID(t *testing.T) {
	group, name := splitTestID("tests/test_a.py::TestClass::test_b[chromium]")
	assert.Equal(t, "tests/test_a.py::TestClass", group)
	assert.Equal(t, "test_b[chromium]", name)

	group, name = splitTestID("standalone")
	assert.Empty(t, group)
	assert.Equal(t, "standalone", name)
}
