// Package failfast stops a run after its first terminal failure and captures
// a screenshot of the page that failed.
package failfast

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/artifact"
	"github.com/testforge/portalsuite/internal/domain"
)

// SkipReason is attached to every test skipped after the flag is tripped
const SkipReason = "blocked by an earlier terminal failure"

// Capturer takes a screenshot of a live page
type Capturer interface {
	Screenshot(path string) error
}

// Decision tells the runner whether to execute a test body
type Decision struct {
	Run        bool
	SkipReason string
}

// Attempt describes one finished execution of a test body
type Attempt struct {
	Outcome domain.Outcome
	// RetryPending is set when the runner will execute the test again
	RetryPending bool
	// ExpectedFailure is set for tests marked as known failures
	ExpectedFailure bool
	// Page is nil when the test never opened a browser page
	Page Capturer
}

// Hooks is called by the runner around every test
type Hooks interface {
	BeforeTest(ctx context.Context, s *Session, testID string) Decision
	AfterTest(ctx context.Context, s *Session, testID string, a Attempt) AfterResult
}

// AfterResult reports what AfterTest did
type AfterResult struct {
	Tripped        bool
	ScreenshotPath string
}

// Session carries fail-fast state for one run
type Session struct {
	ID            string
	ScreenshotDir string

	local  LocalFlag
	shared Flag
}

// NewSession creates a session. shared may be nil for single-process runs.
func NewSession(id, screenshotDir string, shared Flag) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{ID: id, ScreenshotDir: screenshotDir, shared: shared}
}

// Tripped reports whether this process has seen a terminal failure
func (s *Session) Tripped() bool {
	t, _ := s.local.Tripped(context.Background())
	return t
}

// TrippedBy names the test whose failure tripped this session
func (s *Session) TrippedBy() string {
	return s.local.TrippedBy()
}

// Controller implements Hooks
type Controller struct {
	disabled bool
	logger   *zap.Logger
}

// NewController creates a Controller. A disabled controller still captures
// screenshots but never skips tests.
func NewController(disabled bool, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{disabled: disabled, logger: logger}
}

// BeforeTest skips the test once the session flag is set
func (c *Controller) BeforeTest(ctx context.Context, s *Session, testID string) Decision {
	if c.disabled {
		return Decision{Run: true}
	}

	if s.Tripped() {
		return Decision{Run: false, SkipReason: SkipReason}
	}

	if s.shared != nil {
		tripped, err := s.shared.Tripped(ctx)
		if err != nil {
			c.logger.Warn("Could not read shared fail-fast flag, running test",
				zap.String("session", s.ID),
				zap.String("test", testID),
				zap.Error(err),
			)
			return Decision{Run: true}
		}
		if tripped {
			s.local.Trip(ctx, "")
			return Decision{Run: false, SkipReason: SkipReason}
		}
	}

	return Decision{Run: true}
}

// AfterTest captures a screenshot and trips the flag on a terminal failure.
// Retry-pending and expected failures leave the session untouched.
func (c *Controller) AfterTest(ctx context.Context, s *Session, testID string, a Attempt) AfterResult {
	var res AfterResult
	if !a.Outcome.IsFailure() || a.ExpectedFailure || a.RetryPending {
		return res
	}

	if a.Page != nil {
		res.ScreenshotPath = c.capture(s, testID, a.Page)
	}

	if c.disabled {
		return res
	}

	s.local.Trip(ctx, testID)
	if s.shared != nil {
		if err := s.shared.Trip(ctx, testID); err != nil {
			c.logger.Warn("Could not set shared fail-fast flag",
				zap.String("session", s.ID),
				zap.Error(err),
			)
		}
	}
	res.Tripped = true

	c.logger.Info("Terminal failure, skipping remaining tests",
		zap.String("session", s.ID),
		zap.String("test", testID),
	)
	return res
}

// ScreenshotPath is where the screenshot of testID is written
func ScreenshotPath(dir, testID string) string {
	return filepath.Join(dir, artifact.Slug(testID)+".png")
}

func (c *Controller) capture(s *Session, testID string, page Capturer) string {
	if s.ScreenshotDir == "" {
		return ""
	}
	if err := os.MkdirAll(s.ScreenshotDir, 0o755); err != nil {
		c.logger.Warn("Could not create screenshot directory", zap.String("dir", s.ScreenshotDir), zap.Error(err))
		return ""
	}

	path := ScreenshotPath(s.ScreenshotDir, testID)
	if err := page.Screenshot(path); err != nil {
		c.logger.Warn("Failed to capture screenshot",
			zap.String("test", testID),
			zap.String("path", path),
			zap.Error(err),
		)
		return ""
	}

	c.logger.Info("Screenshot saved", zap.String("test", testID), zap.String("path", path))
	return path
}
