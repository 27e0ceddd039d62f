package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/testforge/portalsuite/internal/domain"
)

// Metrics holds the suite's Prometheus metrics on a private registry, so a
// process can push one run's numbers without the Go runtime collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Run metrics
	TestsTotal       *prometheus.CounterVec
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	LastRunTimestamp prometheus.Gauge
	LastRunPassRate  prometheus.Gauge
	ReportsTotal     *prometheus.CounterVec
	RunsPruned       prometheus.Counter

	// HTTP metrics of the report browser
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge
}

// NewMetrics creates a metrics instance with every metric registered
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "portalsuite"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tests_total",
				Help:      "Test results by final outcome",
			},
			[]string{"outcome"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished runs by status",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of a run",
				Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
			},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
		LastRunPassRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_pass_rate",
				Help:      "Percentage of passed tests in the last run",
			},
		),
		ReportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Report generations by status",
			},
			[]string{"status"},
		),
		RunsPruned: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_pruned_total",
				Help:      "Run directories removed by retention",
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of active HTTP requests",
			},
		),
	}
}

// Registry exposes the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordTest counts one test by its final outcome
func (m *Metrics) RecordTest(outcome domain.Outcome) {
	m.TestsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordRun records the summary of a finished run
func (m *Metrics) RecordRun(s domain.Summary, finishedAt time.Time) {
	status := "passed"
	if s.HasFailures() {
		status = "failed"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(s.Duration.Seconds())
	m.LastRunTimestamp.Set(float64(finishedAt.Unix()))
	m.LastRunPassRate.Set(s.PassRate())
}

// RecordReport counts a report generation attempt
func (m *Metrics) RecordReport(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.ReportsTotal.WithLabelValues(status).Inc()
}

// RecordPruned counts removed run directories
func (m *Metrics) RecordPruned(n int) {
	m.RunsPruned.Add(float64(n))
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Push sends the registry to a Pushgateway, grouped by run id
func (m *Metrics) Push(ctx context.Context, gatewayURL, job, runID string) error {
	p := push.New(gatewayURL, job).Gatherer(m.registry)
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// HTTPMiddleware returns middleware for recording HTTP metrics.
// pathOf maps a request to a low-cardinality label; nil uses the URL path.
func (m *Metrics) HTTPMiddleware(pathOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsActive.Inc()
			defer m.HTTPRequestsActive.Dec()

			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			path := r.URL.Path
			if pathOf != nil {
				path = pathOf(r)
			}
			m.RecordHTTPRequest(r.Method, path, wrapped.statusCode, time.Since(start))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
