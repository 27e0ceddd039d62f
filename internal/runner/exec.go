package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"al.essio.dev/pkg/shellescape"
	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/domain"
)

// Environment variables handed to an external suite command
const (
	EnvResultsFile   = "RESULTS_FILE"
	EnvArtifactDir   = "ARTIFACT_DIR"
	EnvScreenshotDir = "SCREENSHOT_DIR"
	EnvRunID         = "RUN_ID"
	EnvSession       = "FAILFAST_SESSION"
)

// ExecRequest describes an external test command
type ExecRequest struct {
	Command []string
	Dir     string
	Env     map[string]string
	Timeout time.Duration

	// Output is mirrored here while the command runs
	Output io.Writer

	// MaxLogBytes bounds the output kept in ExecResult.Logs; the tail is
	// kept. Zero uses DefaultMaxLogBytes.
	MaxLogBytes int
}

// DefaultMaxLogBytes is the output tail kept for a command
const DefaultMaxLogBytes = 1 << 20

// ExecResult is the outcome of an external command
type ExecResult struct {
	ExitCode int
	Duration time.Duration
	Logs     string
	// Truncated is set when output was dropped from the head of Logs
	Truncated bool
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		b.truncated = true
		return n, nil
	}
	if over := len(b.buf) + len(p) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

// CommandExecutor runs a suite written for another test framework. The
// command is expected to write its results where RESULTS_FILE points.
type CommandExecutor struct {
	logger *zap.Logger
}

// NewCommandExecutor creates a CommandExecutor
func NewCommandExecutor(logger *zap.Logger) *CommandExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandExecutor{logger: logger}
}

// Run executes the command. A non-zero exit is reported in the result; only
// a command that could not be started returns an error.
func (e *CommandExecutor) Run(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	if len(req.Command) == 0 {
		return nil, domain.ErrExecutionFailed("no command given", nil)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	e.logger.Info("Running test command",
		zap.String("command", shellescape.QuoteCommand(req.Command)),
		zap.String("dir", req.Dir),
	)

	cmd := exec.CommandContext(ctx, req.Command[0], req.Command[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = os.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	limit := req.MaxLogBytes
	if limit <= 0 {
		limit = DefaultMaxLogBytes
	}
	logs := &tailBuffer{max: limit}
	out := io.Writer(logs)
	if req.Output != nil {
		out = io.MultiWriter(logs, req.Output)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	err := cmd.Run()
	res := &ExecResult{Duration: time.Since(start), Logs: string(logs.buf), Truncated: logs.truncated}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, domain.ErrExecutionFailed("starting test command", err)
	}

	e.logger.Info("Test command finished",
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
		zap.Int("log_bytes", len(logs.buf)),
		zap.Bool("logs_truncated", logs.truncated),
	)
	return res, nil
}
