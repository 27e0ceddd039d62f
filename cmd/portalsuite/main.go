// Command portalsuite runs the portal end-to-end scenarios and turns their
// results into self-contained HTML reports.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/artifact"
	"github.com/testforge/portalsuite/internal/config"
	"github.com/testforge/portalsuite/internal/lifecycle"
	"github.com/testforge/portalsuite/internal/observability"
	"github.com/testforge/portalsuite/internal/report"
	"github.com/testforge/portalsuite/internal/storage"
)

// Version is set at build time.
var Version = "dev"

// Exit codes
const (
	exitFailures = 1
	exitSetup    = 2
)

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
}

func main() {
	a := &app{}
	cliApp := &cli.App{
		Name:    "portalsuite",
		Usage:   "Portal end-to-end suite runner and report generator",
		Version: Version,
		Description: `Runs the browser scenarios against both portals, keeps one timestamped
directory per run and renders a self-contained HTML report from its results.

Examples:
  portalsuite run
  portalsuite run cargo
  portalsuite exec -- pytest tests/ --junitxml=$RESULTS_FILE
  portalsuite report execution_reports/20240102_030405/report.xml`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Dotenv files to load before the environment",
				Value: cli.NewStringSlice(".env"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
				EnvVars: []string{"PORTALSUITE_VERBOSE"},
			},
		},
		Before: a.setup,
		After: func(*cli.Context) error {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			a.runCommand(),
			a.execCommand(),
			a.reportCommand(),
			a.pruneCommand(),
			a.serveCommand(),
			a.fixtureCommand(),
			a.listCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitSetup)
	}
}

func (a *app) setup(c *cli.Context) error {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return cli.Exit(err.Error(), exitSetup)
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(cfg.LogLevel, cfg.LogFormat, c.Bool("verbose"))
	a.metrics = observability.NewMetrics("portalsuite")
	return nil
}

// manager builds the lifecycle manager with the renderer, asset source,
// publisher and metrics configured in the environment. sourceExt selects
// how class names map to screenshot file names.
func (a *app) manager(ctx context.Context, sourceExt string) (*lifecycle.Manager, error) {
	renderer, err := report.NewRenderer(sourceExt)
	if err != nil {
		return nil, err
	}

	var assets lifecycle.AssetSource = linkedAssets{css: a.cfg.Report.CSSURL, js: a.cfg.Report.JSURL}
	if a.cfg.Report.FetchAssets {
		assets = artifact.NewAssetFetcher(&http.Client{Timeout: a.cfg.Report.AssetTimeout},
			a.cfg.Report.CSSURL, a.cfg.Report.JSURL, a.cfg.Report.AssetTimeout, a.logger)
	}

	m := lifecycle.New(lifecycle.Options{
		BaseDir:               a.cfg.Suite.ReportsDir,
		KeepRuns:              a.cfg.Suite.KeepRuns,
		SourceExt:             sourceExt,
		FallbackScreenshotDir: a.cfg.Suite.FallbackScreenshotDir,
		WriteJSON:             a.cfg.Report.WriteJSON,
		PushgatewayURL:        a.cfg.Metrics.PushgatewayURL,
		MetricsJob:            a.cfg.Metrics.Job,
	}, renderer, assets, a.logger).WithMetrics(a.metrics)

	if store := a.reportStore(ctx); store != nil {
		m.WithPublisher(store)
	}
	return m, nil
}

// reportStore connects to object storage when publishing is enabled.
// Failures disable publishing instead of aborting.
func (a *app) reportStore(ctx context.Context) *storage.ReportStore {
	if !a.cfg.Storage.Enabled {
		return nil
	}
	store, err := storage.NewReportStore(a.cfg.Storage, a.logger)
	if err != nil {
		a.logger.Warn("Report publishing disabled", zap.Error(err))
		return nil
	}
	if err := store.EnsureBucket(ctx); err != nil {
		a.logger.Warn("Report publishing disabled", zap.String("bucket", a.cfg.Storage.Bucket), zap.Error(err))
		return nil
	}
	return store
}

// linkedAssets makes reports reference the stylesheet and script by URL
type linkedAssets struct {
	css, js string
}

func (l linkedAssets) Fetch(context.Context) artifact.Assets {
	return artifact.Assets{CSSURL: l.css, JSURL: l.js}
}
