package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/config"
	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/lifecycle"
	"github.com/testforge/portalsuite/internal/portal"
	"github.com/testforge/portalsuite/internal/runner"
	"github.com/testforge/portalsuite/internal/server"
)

func (a *app) execCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "Run an external test command inside a new run directory",
		ArgsUsage: "-- <command> [args...]",
		Description: `The command receives RESULTS_FILE, ARTIFACT_DIR, SCREENSHOT_DIR, RUN_ID and
FAILFAST_SESSION and must write its results to RESULTS_FILE. The exit code
mirrors the command.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Kill the command after this long (0 disables)",
			},
		},
		Action: a.exec,
	}
}

func (a *app) exec(c *cli.Context) error {
	command := c.Args().Slice()
	if len(command) == 0 {
		return cli.Exit("exec needs a command", exitSetup)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := a.manager(ctx, a.cfg.Report.SourceExt)
	if err != nil {
		return cli.Exit(err.Error(), exitSetup)
	}
	run, err := mgr.StartRun()
	if err != nil {
		return cli.Exit(err.Error(), exitSetup)
	}

	res, execErr := runner.NewCommandExecutor(a.logger).Run(ctx, runner.ExecRequest{
		Command: command,
		Env: map[string]string{
			runner.EnvResultsFile:   run.ResultsPath(),
			runner.EnvArtifactDir:   run.ArtifactDir(),
			runner.EnvScreenshotDir: run.ScreenshotDir(),
			runner.EnvRunID:         run.ID,
			runner.EnvSession:       a.cfg.Suite.FailFastSession,
		},
		Timeout: c.Duration("timeout"),
		Output:  os.Stdout,
	})

	out := mgr.Finalize(context.WithoutCancel(ctx), run)
	var summary domain.Summary
	if out.Result != nil {
		summary = out.Result.Summary
	}
	printSummary(os.Stdout, summary, out)

	if execErr != nil {
		return cli.Exit(execErr.Error(), exitSetup)
	}
	if res.ExitCode != 0 {
		return cli.Exit("", res.ExitCode)
	}
	return nil
}

func (a *app) reportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Render a report for an existing results file",
		ArgsUsage: "<results-file>",
		Description: `Accepts JUnit XML, a JSON results file or an HTML page embedding one.
The report is written to a new timestamped directory.`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("report needs exactly one results file", exitSetup)
			}
			mgr, err := a.manager(c.Context, a.cfg.Report.SourceExt)
			if err != nil {
				return cli.Exit(err.Error(), exitSetup)
			}
			out, err := mgr.RenderExisting(c.Context, c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), exitSetup)
			}
			if out.ReportPath == "" {
				return cli.Exit(fmt.Sprintf("no report generated: %v", out.Err), exitFailures)
			}
			fmt.Println(out.ReportPath)
			return nil
		},
	}
}

func (a *app) pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Remove all but the newest run directories",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "keep",
				Usage: "Number of runs to keep (defaults to SUITE_KEEP_RUNS)",
			},
		},
		Action: func(c *cli.Context) error {
			keep := a.cfg.Suite.KeepRuns
			if c.IsSet("keep") {
				keep = c.Int("keep")
			}
			removed, err := lifecycle.Prune(a.cfg.Suite.ReportsDir, keep, a.logger)
			for _, dir := range removed {
				fmt.Println(dim.Sprint("removed ") + dir)
			}
			if err != nil {
				return cli.Exit(err.Error(), exitFailures)
			}
			return nil
		},
	}
}

func (a *app) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Browse run reports over HTTP",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := server.RouterConfig{
				BaseDir:        a.cfg.Suite.ReportsDir,
				Metrics:        a.metrics,
				Logger:         a.logger,
				EnableCORS:     a.cfg.Server.CORSEnabled,
				RateLimitRPS:   a.cfg.Server.RateLimitRPS,
				RateLimitBurst: a.cfg.Server.RateLimitBurst,
			}
			if store := a.reportStore(ctx); store != nil {
				cfg.Remote = store
			}
			return server.Serve(ctx, a.cfg.Server, server.NewRouter(cfg), a.logger)
		},
	}
}

func (a *app) fixtureCommand() *cli.Command {
	return &cli.Command{
		Name:  "fixture",
		Usage: "Look up test data in the fixture databases",
		Subcommands: []*cli.Command{
			{
				Name:  "container",
				Usage: "Print the first valid container number not yet registered",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "type",
						Usage: "Container type id",
						Value: 55,
					},
				},
				Action: func(c *cli.Context) error {
					if missing := a.cfg.MissingDatabaseVars(); len(missing) > 0 {
						return cli.Exit(domain.ErrConfigMissing(missing).Error(), exitSetup)
					}
					finder, closeDBs, err := a.openContainerFinder(c.Context)
					if err != nil {
						return cli.Exit(err.Error(), exitSetup)
					}
					defer closeDBs()

					number, ok, err := finder.WithType(c.Int("type")).FirstFree(c.Context)
					if err != nil {
						return cli.Exit(err.Error(), exitFailures)
					}
					if !ok {
						return cli.Exit("no free container found", exitFailures)
					}
					fmt.Println(number)
					return nil
				},
			},
		},
	}
}

func (a *app) listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List scenario ids, optionally filtered",
		ArgsUsage: "[target...]",
		Action: func(c *cli.Context) error {
			suite := portal.NewSuite(config.PortalConfig{}, portal.LoadDataStore(a.cfg.Suite.DataFile), nil, a.logger)
			cases := runner.Expand(suite.Cases(), a.cfg.Browser.Names)
			if targets := c.Args().Slice(); len(targets) > 0 {
				cases = runner.Select(cases, targets...)
			}
			for _, id := range runner.IDs(cases) {
				fmt.Println(id)
			}
			a.logger.Debug("Listed scenarios", zap.Int("count", len(cases)))
			return nil
		},
	}
}
