package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/browser"
	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/failfast"
	"github.com/testforge/portalsuite/internal/fixtures"
	"github.com/testforge/portalsuite/internal/portal"
	"github.com/testforge/portalsuite/internal/runner"
)

func (a *app) runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run the portal scenarios and generate the report",
		ArgsUsage: "[target...]",
		Description: `Targets select scenarios by a case-insensitive substring of their id,
e.g. "cargo" or "proposal.go::create_booking".`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Do not draw the progress bar",
			},
		},
		Action: a.run,
	}
}

func (a *app) run(c *cli.Context) error {
	if missing := a.cfg.MissingPortalVars(); len(missing) > 0 {
		return cli.Exit(domain.ErrConfigMissing(missing).Error(), exitSetup)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Browser.Install {
		if err := browser.Install(a.cfg.Browser.Names, a.logger); err != nil {
			return cli.Exit(err.Error(), exitSetup)
		}
	}

	// Screenshots taken by the failure hook are named after in-process node ids
	mgr, err := a.manager(ctx, runner.SourceExt)
	if err != nil {
		return cli.Exit(err.Error(), exitSetup)
	}
	run, err := mgr.StartRun()
	if err != nil {
		return cli.Exit(err.Error(), exitSetup)
	}

	data := portal.LoadDataStore(a.cfg.Suite.DataFile)
	containers, closeDBs := a.containerSource(ctx)
	defer closeDBs()
	suite := portal.NewSuite(a.cfg.Portal, data, containers, a.logger)

	cases := runner.Expand(suite.Cases(), a.cfg.Browser.Names)
	if targets := c.Args().Slice(); len(targets) > 0 {
		cases = runner.Select(cases, targets...)
	}
	if len(cases) == 0 {
		return cli.Exit(fmt.Sprintf("no scenario matches %v", c.Args().Slice()), exitSetup)
	}

	session, closeFlag, err := a.session(ctx, run)
	if err != nil {
		return cli.Exit(err.Error(), exitSetup)
	}
	defer closeFlag()

	launcher, err := browser.NewLauncher(a.cfg.Browser, a.logger)
	if err != nil {
		return cli.Exit(err.Error(), exitSetup)
	}
	defer launcher.Close()

	r := runner.New(runner.Config{
		MaxAttempts: a.cfg.Suite.MaxAttempts,
		Timeout:     a.cfg.Suite.TestTimeout,
	}, failfast.NewController(a.cfg.Suite.DisableFailFast, a.logger), launcher, a.logger)

	var bar *progressbar.ProgressBar
	if !c.Bool("no-progress") {
		bar = newProgressBar(os.Stderr, len(cases))
		r.OnResult = func(rec domain.TestRecord) {
			bar.Describe(fmt.Sprintf("   %-9s %s", rec.Outcome, rec.Name))
			_ = bar.Add(1)
		}
	}

	a.logger.Info("Running scenarios",
		zap.String("run_id", run.ID),
		zap.String("session", session.ID),
		zap.Int("cases", len(cases)),
	)
	rep := r.Run(ctx, session, cases)
	finishProgress(os.Stderr, bar)
	if err := runner.WriteJUnit(run.ResultsPath(), rep); err != nil {
		a.logger.Error("Could not write results file", zap.String("path", run.ResultsPath()), zap.Error(err))
	}

	// Interrupted runs still get their report
	out := mgr.Finalize(context.WithoutCancel(ctx), run)
	summary := rep.Summary()
	printSummary(os.Stdout, summary, out)

	if summary.HasFailures() {
		return cli.Exit("", exitFailures)
	}
	return nil
}

// session creates the fail-fast session, sharing its flag through Redis
// when configured. The returned func releases the connection.
func (a *app) session(ctx context.Context, run *domain.Run) (*failfast.Session, func(), error) {
	noop := func() {}
	if a.cfg.Suite.FailFastBackend != "redis" {
		return failfast.NewSession(a.cfg.Suite.FailFastSession, run.ScreenshotDir(), nil), noop, nil
	}

	if a.cfg.Suite.FailFastSession == "" {
		return nil, noop, errors.New("SUITE_FAILFAST_SESSION must be set when SUITE_FAILFAST_BACKEND is redis")
	}
	client, err := failfast.NewRedisClient(ctx, a.cfg.Redis)
	if err != nil {
		return nil, noop, err
	}
	flag := failfast.NewRedisFlag(client, a.cfg.Suite.FailFastSession, a.cfg.Suite.FailFastSessionTTL)
	a.logger.Info("Sharing fail-fast flag through Redis",
		zap.String("addr", a.cfg.Redis.Addr()),
		zap.String("session", a.cfg.Suite.FailFastSession),
	)
	return failfast.NewSession(a.cfg.Suite.FailFastSession, run.ScreenshotDir(), flag), func() { client.Close() }, nil
}

// containerSource opens both fixture databases. Without them the cargo
// scenario fails with a clear error instead of aborting the run.
func (a *app) containerSource(ctx context.Context) (portal.ContainerSource, func()) {
	noop := func() {}
	if missing := a.cfg.MissingDatabaseVars(); len(missing) > 0 {
		a.logger.Warn("Fixture databases not configured", zap.Strings("missing", missing))
		return nil, noop
	}
	finder, closeDBs, err := a.openContainerFinder(ctx)
	if err != nil {
		a.logger.Warn("Fixture databases unavailable", zap.Error(err))
		return nil, noop
	}
	return finder, closeDBs
}

func (a *app) openContainerFinder(ctx context.Context) (*fixtures.ContainerFinder, func(), error) {
	db1, err := fixtures.Open(ctx, "DB1", a.cfg.DB1, a.cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	db2, err := fixtures.Open(ctx, "DB2", a.cfg.DB2, a.cfg.DB)
	if err != nil {
		db1.Close()
		return nil, nil, err
	}
	closeDBs := func() {
		db1.Close()
		db2.Close()
	}
	return fixtures.NewContainerFinder(db1, db2, 0, a.logger), closeDBs, nil
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("   Running scenarios..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// finishProgress completes the bar and ends its line. It must run before the
// summary is printed.
func finishProgress(w io.Writer, bar *progressbar.ProgressBar) {
	if bar == nil {
		return
	}
	_ = bar.Finish()
	fmt.Fprintln(w)
}
