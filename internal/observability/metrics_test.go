package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/portalsuite/internal/domain"
)

func TestMetrics_RecordRun(t *testing.T) {
	m := NewMetrics("")

	m.RecordTest(domain.OutcomePassed)
	m.RecordTest(domain.OutcomePassed)
	m.RecordTest(domain.OutcomeFailed)
	m.RecordRun(domain.Summary{Total: 3, Passed: 2, Failed: 1, Duration: time.Minute}, time.Unix(1700000000, 0))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TestsTotal.WithLabelValues("passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastRunTimestamp))
	assert.InDelta(t, 66.67, testutil.ToFloat64(m.LastRunPassRate), 0.01)
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a := NewMetrics("suite")
	b := NewMetrics("suite")

	a.RecordPruned(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.RunsPruned))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RunsPruned))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("suite")
	m.RecordReport(true)
	m.RecordReport(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `suite_reports_total{status="failed"} 1`)
	assert.Contains(t, body, `suite_reports_total{status="ok"} 1`)
	assert.NotContains(t, body, "go_goroutines")
}

func TestMetrics_HTTPMiddleware(t *testing.T) {
	m := NewMetrics("suite")
	h := m.HTTPMiddleware(func(*http.Request) string { return "/runs/{id}" })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}),
	)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs/x", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/runs/{id}", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsActive))
}

func TestMetrics_Push(t *testing.T) {
	var gotPath, gotBody string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	m := NewMetrics("suite")
	m.RecordTest(domain.OutcomeSkipped)

	require.NoError(t, m.Push(context.Background(), gw.URL, "portalsuite", "20240102_030405"))
	assert.Equal(t, "/metrics/job/portalsuite/run_id/20240102_030405", gotPath)
	assert.NotEmpty(t, gotBody)

	gw.Close()
	err := m.Push(context.Background(), gw.URL, "portalsuite", "")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "pushing metrics"))
}

func TestNewLogger(t *testing.T) {
	for _, tt := range []struct {
		level, format string
		verbose       bool
		debug         bool
	}{
		{"info", "console", false, false},
		{"info", "json", true, true},
		{"debug", "json", false, true},
		{"bogus", "console", false, false},
	} {
		l := NewLogger(tt.level, tt.format, tt.verbose)
		require.NotNil(t, l)
		assert.Equal(t, tt.debug, l.Core().Enabled(-1), "%s/%s verbose=%v", tt.level, tt.format, tt.verbose)
	}
}
