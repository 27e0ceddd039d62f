// Package server serves the reports of past runs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/lifecycle"
	"github.com/testforge/portalsuite/internal/observability"
	"github.com/testforge/portalsuite/internal/report"
)

// RemoteReports resolves links to reports published to object storage
type RemoteReports interface {
	ReportURL(ctx context.Context, runID string) (string, error)
}

// RouterConfig contains configuration for the router
type RouterConfig struct {
	BaseDir        string
	Remote         RemoteReports
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	EnableCORS     bool
	RateLimitRPS   float64
	RateLimitBurst int
}

// RunInfo describes one run directory
type RunInfo struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	HasReport bool            `json:"has_report"`
	Summary   *domain.Summary `json:"summary,omitempty"`
}

type handler struct {
	base   string
	remote RemoteReports
	logger *zap.Logger
}

// NewRouter creates the HTTP router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &handler{base: cfg.BaseDir, remote: cfg.Remote, logger: cfg.Logger}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(NewRecoveryMiddleware(cfg.Logger).Handler)
	r.Use(NewLoggingMiddleware(cfg.Logger).Handler)
	r.Use(chimw.Timeout(60 * time.Second))

	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.HTTPMiddleware(routePattern))
	}

	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit"},
			MaxAge:         300,
		}))
	}

	if cfg.RateLimitRPS > 0 {
		r.Use(NewRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst).Handler)
	}

	r.Get("/health", healthHandler)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Get("/", h.latest)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/report", h.report)
		r.Get("/{id}/remote", h.remoteReport)
	})

	return r
}

// routePattern labels metrics by route instead of raw path
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portalsuite-reports",
	})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	ids, err := lifecycle.RunIDs(h.base)
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}

	p := GetPagination(r, 20, 100)
	start, end := p.Window(len(ids))
	runs := make([]RunInfo, 0, end-start)
	for _, id := range ids[start:end] {
		runs = append(runs, h.info(id))
	}

	JSONWithMeta(w, http.StatusOK, runs, &Meta{Page: p.Page, PerPage: p.PerPage, Total: len(ids)})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, h.info(id))
}

func (h *handler) report(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	path := domain.RunFromDir(filepath.Join(h.base, id)).ReportPath()
	if _, err := os.Stat(path); err != nil {
		JSONError(w, http.StatusNotFound, "NOT_FOUND", "run has no report")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, path)
}

func (h *handler) remoteReport(w http.ResponseWriter, r *http.Request) {
	if h.remote == nil {
		JSONError(w, http.StatusNotFound, "NOT_FOUND", "report publishing is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if !domain.IsRunID(id) {
		JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid run id")
		return
	}
	url, err := h.remote.ReportURL(r.Context(), id)
	if err != nil {
		h.logger.Warn("Could not sign report URL", zap.String("run_id", id), zap.Error(err))
		JSONError(w, http.StatusBadGateway, "STORAGE_ERROR", "could not resolve the published report")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// latest redirects to the newest run that has a report
func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	ids, err := lifecycle.RunIDs(h.base)
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}
	for _, id := range ids {
		if h.info(id).HasReport {
			http.Redirect(w, r, "/runs/"+id+"/report", http.StatusFound)
			return
		}
	}
	JSONError(w, http.StatusNotFound, "NOT_FOUND", "no reports yet")
}

// runID validates the id path parameter and that the run exists
func (h *handler) runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !domain.IsRunID(id) {
		JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid run id")
		return "", false
	}
	info, err := os.Stat(filepath.Join(h.base, id))
	if err != nil || !info.IsDir() {
		JSONError(w, http.StatusNotFound, "NOT_FOUND", "run not found")
		return "", false
	}
	return id, true
}

func (h *handler) info(id string) RunInfo {
	run := domain.RunFromDir(filepath.Join(h.base, id))
	info := RunInfo{ID: run.ID, StartedAt: run.StartedAt}

	if _, err := os.Stat(run.ReportPath()); err == nil {
		info.HasReport = true
	}

	data, err := os.ReadFile(run.ReportJSONPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.logger.Debug("Could not read JSON report", zap.String("run_id", id), zap.Error(err))
		}
		return info
	}
	var rep report.JSONReport
	if err := json.Unmarshal(data, &rep); err != nil {
		h.logger.Debug("Malformed JSON report", zap.String("run_id", id), zap.Error(err))
		return info
	}
	info.Summary = &rep.Summary
	return info
}
