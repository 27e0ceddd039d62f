// Package lifecycle owns a run directory from creation to retention: it
// creates the run layout, turns the results file into a report once the
// tests are done, removes what was inlined and prunes old runs.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/artifact"
	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/report"
	"github.com/testforge/portalsuite/internal/results"
)

// AssetSource provides the stylesheet and script inlined into reports
type AssetSource interface {
	Fetch(ctx context.Context) artifact.Assets
}

// Publisher copies finished report files somewhere outside the run dir
type Publisher interface {
	Publish(ctx context.Context, run *domain.Run, files []string) ([]string, error)
}

// MetricsSink receives the numbers of a finalized run
type MetricsSink interface {
	RecordTest(outcome domain.Outcome)
	RecordRun(s domain.Summary, finishedAt time.Time)
	RecordReport(ok bool)
	RecordPruned(n int)
	Push(ctx context.Context, gatewayURL, job, runID string) error
}

// Options configure a Manager
type Options struct {
	BaseDir  string
	KeepRuns int

	// SourceExt is the extension the locator puts on dotted class names.
	// Runs produced by the in-process runner use their own extension.
	SourceExt string
	// FallbackScreenshotDir is searched after the run's own directories
	FallbackScreenshotDir string
	WriteJSON             bool

	PushgatewayURL string
	MetricsJob     string
}

// Outcome describes what Finalize managed to do. Nothing in it is fatal to
// the caller; Err holds the first failure for display.
type Outcome struct {
	Run        *domain.Run
	Result     *results.Result
	ReportPath string
	JSONPath   string
	Published  []string
	Cleaned    artifact.CleanupResult
	Pruned     []string
	Err        error
}

// HasFailures reports whether the parsed results contain failures or errors
func (o Outcome) HasFailures() bool {
	return o.Result != nil && o.Result.Summary.HasFailures()
}

// Manager runs the lifecycle of run directories under one base directory
type Manager struct {
	opts      Options
	renderer  *report.Renderer
	assets    AssetSource
	embedder  *artifact.Embedder
	cleaner   *artifact.Cleaner
	publisher Publisher
	metrics   MetricsSink
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a Manager. assets may be nil, in which case reports link
// nothing and render unstyled.
func New(opts Options, renderer *report.Renderer, assets AssetSource, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SourceExt == "" {
		opts.SourceExt = artifact.DefaultSourceExt
	}
	return &Manager{
		opts:     opts,
		renderer: renderer,
		assets:   assets,
		embedder: artifact.NewEmbedder(logger),
		cleaner:  artifact.NewCleaner(logger),
		now:      time.Now,
		logger:   logger,
	}
}

// WithPublisher sets where finished reports are uploaded
func (m *Manager) WithPublisher(p Publisher) *Manager {
	m.publisher = p
	return m
}

// WithMetrics sets the sink run metrics are recorded to
func (m *Manager) WithMetrics(s MetricsSink) *Manager {
	m.metrics = s
	return m
}

// WithClock replaces the clock run ids are derived from
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithSourceExt returns a copy of the manager locating screenshots for
// class names with the given extension
func (m *Manager) WithSourceExt(ext string) *Manager {
	c := *m
	c.opts.SourceExt = ext
	return &c
}

// BaseDir is the directory holding every run
func (m *Manager) BaseDir() string {
	return m.opts.BaseDir
}

// StartRun creates a new run directory with its artifact and screenshot
// subdirectories. A run directory that already exists is an error, as is
// any failure to create the layout.
func (m *Manager) StartRun() (*domain.Run, error) {
	if err := os.MkdirAll(m.opts.BaseDir, 0o755); err != nil {
		return nil, domain.ErrArtifactIOFailed(m.opts.BaseDir, err)
	}

	run := domain.NewRun(m.opts.BaseDir, m.now())
	if err := os.Mkdir(run.Dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, domain.ErrRunDirExists(run.Dir)
		}
		return nil, domain.ErrArtifactIOFailed(run.Dir, err)
	}
	for _, d := range []string{run.ArtifactDir(), run.ScreenshotDir()} {
		if err := os.Mkdir(d, 0o755); err != nil {
			return nil, domain.ErrArtifactIOFailed(d, err)
		}
	}

	m.logger.Info("Started run", zap.String("run_id", run.ID), zap.String("dir", run.Dir))
	return run, nil
}

// ScreenshotDirs lists where screenshots of a run are searched, in order
func (m *Manager) ScreenshotDirs(run *domain.Run) []string {
	dirs := []string{run.ScreenshotDir(), run.ArtifactDir()}
	if m.opts.FallbackScreenshotDir != "" {
		dirs = append(dirs, m.opts.FallbackScreenshotDir)
	}
	return dirs
}

// Finalize builds the report of a finished run from its results file,
// deletes the screenshots the report inlined, publishes the report and
// applies retention. Every failure is logged and recorded in the outcome;
// none is returned.
func (m *Manager) Finalize(ctx context.Context, run *domain.Run) Outcome {
	out := m.render(ctx, run, run.ResultsPath(), m.ScreenshotDirs(run))

	if out.ReportPath != "" && out.Result != nil {
		out.Cleaned = m.cleaner.Cleanup(out.Result.Embedded, run.Dir, m.opts.FallbackScreenshotDir)
		m.logger.Debug("Removed embedded screenshots",
			zap.Int("files", out.Cleaned.Files),
			zap.Int("dirs", out.Cleaned.Dirs),
		)
	}

	m.publish(ctx, run, &out)
	m.pushMetrics(ctx, run, out)

	pruned, err := m.Prune()
	out.Pruned = pruned
	out.setErr(err)
	return out
}

// RenderExisting renders a report for a results file produced elsewhere
// into a new run directory. Screenshots are searched next to the results
// file and are left in place.
func (m *Manager) RenderExisting(ctx context.Context, resultsPath string) (Outcome, error) {
	if _, err := os.Stat(resultsPath); err != nil {
		return Outcome{}, domain.ErrResultsParseFailed(resultsPath, err)
	}

	run, err := m.StartRun()
	if err != nil {
		return Outcome{}, err
	}

	src := filepath.Dir(resultsPath)
	dirs := []string{
		filepath.Join(src, domain.ScreenshotDirName),
		filepath.Join(src, domain.ArtifactDirName),
		src,
	}
	if m.opts.FallbackScreenshotDir != "" {
		dirs = append(dirs, m.opts.FallbackScreenshotDir)
	}

	out := m.render(ctx, run, resultsPath, dirs)
	m.publish(ctx, run, &out)
	return out, nil
}

func (m *Manager) render(ctx context.Context, run *domain.Run, resultsPath string, dirs []string) Outcome {
	out := Outcome{Run: run}
	log := m.logger.With(zap.String("run_id", run.ID))

	parser := results.NewParser(artifact.NewLocator(m.opts.SourceExt, m.logger), m.embedder, m.logger)
	res, err := parser.Parse(resultsPath, dirs)
	if err != nil {
		log.Error("Could not read results, no report generated", zap.String("path", resultsPath), zap.Error(err))
		out.setErr(err)
		m.recordReport(false)
		return out
	}
	out.Result = res

	var assets artifact.Assets
	if m.assets != nil {
		assets = m.assets.Fetch(ctx)
	}
	doc := report.Document{
		Result:      res,
		Assets:      assets,
		RunID:       run.ID,
		GeneratedAt: m.now(),
	}

	page, err := m.renderer.Render(doc)
	if err != nil {
		log.Error("Could not render report", zap.Error(err))
		out.setErr(err)
		m.recordReport(false)
		return out
	}
	if err := writeFileAtomic(run.ReportPath(), []byte(page)); err != nil {
		log.Error("Could not write report", zap.String("path", run.ReportPath()), zap.Error(err))
		out.setErr(err)
		m.recordReport(false)
		return out
	}
	out.ReportPath = run.ReportPath()
	m.recordReport(true)

	if m.opts.WriteJSON {
		if data, err := m.renderer.RenderJSON(doc); err != nil {
			log.Warn("Could not render JSON report", zap.Error(err))
		} else if err := writeFileAtomic(run.ReportJSONPath(), data); err != nil {
			log.Warn("Could not write JSON report", zap.String("path", run.ReportJSONPath()), zap.Error(err))
		} else {
			out.JSONPath = run.ReportJSONPath()
		}
	}

	log.Info("Report generated",
		zap.String("path", out.ReportPath),
		zap.Int("total", res.Summary.Total),
		zap.Int("passed", res.Summary.Passed),
		zap.Int("failed", res.Summary.FailedTotal()),
		zap.Int("embedded", len(res.Embedded)),
	)
	return out
}

func (m *Manager) publish(ctx context.Context, run *domain.Run, out *Outcome) {
	if m.publisher == nil || out.ReportPath == "" {
		return
	}
	files := []string{out.ReportPath}
	if out.JSONPath != "" {
		files = append(files, out.JSONPath)
	}
	uris, err := m.publisher.Publish(ctx, run, files)
	out.Published = uris
	if err != nil {
		m.logger.Warn("Could not publish report", zap.String("run_id", run.ID), zap.Error(err))
		out.setErr(err)
	}
}

func (m *Manager) pushMetrics(ctx context.Context, run *domain.Run, out Outcome) {
	if m.metrics == nil || out.Result == nil {
		return
	}
	for _, rec := range out.Result.Records() {
		m.metrics.RecordTest(rec.Outcome)
	}
	m.metrics.RecordRun(out.Result.Summary, m.now())

	if m.opts.PushgatewayURL == "" {
		return
	}
	if err := m.metrics.Push(ctx, m.opts.PushgatewayURL, m.opts.MetricsJob, run.ID); err != nil {
		m.logger.Warn("Could not push run metrics", zap.Error(err))
	}
}

func (m *Manager) recordReport(ok bool) {
	if m.metrics != nil {
		m.metrics.RecordReport(ok)
	}
}

// Prune applies retention to the base directory
func (m *Manager) Prune() ([]string, error) {
	removed, err := Prune(m.opts.BaseDir, m.opts.KeepRuns, m.logger)
	if m.metrics != nil && len(removed) > 0 {
		m.metrics.RecordPruned(len(removed))
	}
	return removed, err
}

func (o *Outcome) setErr(err error) {
	if err != nil && o.Err == nil {
		o.Err = err
	}
}

// writeFileAtomic writes data next to path and renames it into place, so a
// reader never sees a partial file
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return domain.ErrArtifactIOFailed(path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return domain.ErrArtifactIOFailed(path, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.ErrArtifactIOFailed(path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return domain.ErrArtifactIOFailed(path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return domain.ErrArtifactIOFailed(path, fmt.Errorf("renaming into place: %w", err))
	}
	return nil
}
