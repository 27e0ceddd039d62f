// Package runner executes suite cases with bounded retries, consulting the
// fail-fast hooks around every attempt.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/failfast"
)

// SourceExt is the extension used in node ids of in-process cases
const SourceExt = ".go"

// PageHandle is a live browser page handed to a case body
type PageHandle interface {
	failfast.Capturer
	Close() error
}

// PageOpener provides a fresh page for every attempt
type PageOpener interface {
	Open(ctx context.Context, variant string) (PageHandle, error)
}

// Body is the code of one case
type Body func(ctx context.Context, page PageHandle) error

// Case is one test of the suite
type Case struct {
	Group      string // dotted package path, e.g. "portal.proposal"
	Name       string
	Variant    string // browser the case runs in
	ExpectFail bool
	NoPage     bool
	Body       Body
}

// FullName is the name with its variant suffix
func (c Case) FullName() string {
	if c.Variant == "" {
		return c.Name
	}
	return c.Name + "[" + c.Variant + "]"
}

// ID is the node id used for screenshots and selection
func (c Case) ID() string {
	return strings.ReplaceAll(c.Group, ".", "/") + SourceExt + "::" + c.FullName()
}

// SkipError marks a case as skipped from inside its body
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// Skip returns an error that skips the running case
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// Report is the outcome of a full run
type Report struct {
	Name       string
	Records    []domain.TestRecord
	Properties map[string]string
	StartedAt  time.Time
	Duration   time.Duration
}

// Summary derives the counts of the report
func (r *Report) Summary() domain.Summary {
	return domain.Summarize(r.Records, r.Duration)
}

// Runner executes cases sequentially
type Runner struct {
	hooks       failfast.Hooks
	opener      PageOpener
	maxAttempts int
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time

	// OnResult is called after each case is recorded
	OnResult func(domain.TestRecord)
}

// Config configures a Runner
type Config struct {
	MaxAttempts int
	Timeout     time.Duration
}

// New creates a Runner. opener may be nil for cases that need no page.
func New(cfg Config, hooks failfast.Hooks, opener PageOpener, logger *zap.Logger) *Runner {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		hooks:       hooks,
		opener:      opener,
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.Timeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes every case in order. Cancelling ctx stops the run between
// cases; the cases not reached are recorded as skipped.
func (r *Runner) Run(ctx context.Context, s *failfast.Session, cases []Case) *Report {
	rep := &Report{Name: "portalsuite", StartedAt: r.now(), Properties: map[string]string{"session": s.ID}}

	for _, c := range cases {
		var rec domain.TestRecord
		if ctx.Err() != nil {
			rec = c.record(domain.OutcomeSkipped, 0, "run cancelled", 0)
		} else {
			rec = r.runCase(ctx, s, c)
		}
		rep.Records = append(rep.Records, rec)
		if r.OnResult != nil {
			r.OnResult(rec)
		}
	}

	rep.Duration = r.now().Sub(rep.StartedAt)
	return rep
}

func (c Case) record(o domain.Outcome, d time.Duration, detail string, attempts int) domain.TestRecord {
	return domain.TestRecord{
		Group:        c.Group,
		Name:         c.FullName(),
		Outcome:      o,
		Duration:     d,
		DurationText: fmt.Sprintf("%.2fs", d.Seconds()),
		Detail:       detail,
		Attempts:     attempts,
	}
}

func (r *Runner) runCase(ctx context.Context, s *failfast.Session, c Case) domain.TestRecord {
	id := c.ID()
	log := r.logger.With(zap.String("test", id))

	if d := r.hooks.BeforeTest(ctx, s, id); !d.Run {
		log.Info("Skipping test", zap.String("reason", d.SkipReason))
		return c.record(domain.OutcomeSkipped, 0, d.SkipReason, 0)
	}

	var rec domain.TestRecord
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		start := r.now()
		outcome, detail, page := r.attempt(ctx, c)
		elapsed := r.now().Sub(start)

		retry := outcome.IsFailure() && !c.ExpectFail && attempt < r.maxAttempts && ctx.Err() == nil
		var capturer failfast.Capturer
		if page != nil {
			capturer = page
		}
		r.hooks.AfterTest(ctx, s, id, failfast.Attempt{
			Outcome:         outcome,
			RetryPending:    retry,
			ExpectedFailure: c.ExpectFail,
			Page:            capturer,
		})
		if page != nil {
			if err := page.Close(); err != nil {
				log.Debug("Closing page failed", zap.Error(err))
			}
		}

		rec = c.record(outcome, elapsed, detail, attempt)
		if !retry {
			break
		}
		log.Warn("Test failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.maxAttempts),
		)
	}

	log.Info("Test finished",
		zap.String("outcome", string(rec.Outcome)),
		zap.Int("attempts", rec.Attempts),
		zap.Duration("duration", rec.Duration),
	)
	return rec
}

// attempt runs the body once. The returned page is still open.
func (r *Runner) attempt(ctx context.Context, c Case) (outcome domain.Outcome, detail string, page PageHandle) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if !c.NoPage && r.opener != nil {
		p, err := r.opener.Open(ctx, c.Variant)
		if err != nil {
			return domain.OutcomeError, fmt.Sprintf("opening browser page: %v", err), nil
		}
		page = p
	}

	err := runBody(ctx, c.Body, page)

	var skip *SkipError
	switch {
	case errors.As(err, &skip):
		return domain.OutcomeSkipped, skip.Reason, page
	case err == nil && c.ExpectFail:
		return domain.OutcomeXPassed, "", page
	case err == nil:
		return domain.OutcomePassed, "", page
	case c.ExpectFail:
		return domain.OutcomeXFailed, err.Error(), page
	}

	var p *panicError
	if errors.As(err, &p) {
		return domain.OutcomeError, p.Error(), page
	}
	return domain.OutcomeFailed, failureDetail(err), page
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("E   panic: %v\n%s", e.value, e.stack)
}

func runBody(ctx context.Context, body Body, page PageHandle) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &panicError{value: v, stack: debug.Stack()}
		}
	}()
	if body == nil {
		return errors.New("case has no body")
	}
	return body(ctx, page)
}

// failureDetail formats an error the way failure logs flag their cause
func failureDetail(err error) string {
	lines := strings.Split(err.Error(), "\n")
	for i, l := range lines {
		lines[i] = "E   " + l
	}
	return strings.Join(lines, "\n")
}

// Select keeps the cases whose id or name contains any of the targets.
// No targets selects everything.
func Select(cases []Case, targets ...string) []Case {
	var filters []string
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			filters = append(filters, strings.ToLower(t))
		}
	}
	if len(filters) == 0 {
		return cases
	}

	var out []Case
	for _, c := range cases {
		id := strings.ToLower(c.ID())
		for _, f := range filters {
			if strings.Contains(id, f) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Expand returns one copy of each case per browser variant
func Expand(cases []Case, variants []string) []Case {
	if len(variants) == 0 {
		return cases
	}
	out := make([]Case, 0, len(cases)*len(variants))
	for _, c := range cases {
		for _, v := range variants {
			cc := c
			cc.Variant = v
			out = append(out, cc)
		}
	}
	return out
}

// IDs lists the node ids of cases, sorted
func IDs(cases []Case) []string {
	ids := make([]string, len(cases))
	for i, c := range cases {
		ids[i] = c.ID()
	}
	sort.Strings(ids)
	return ids
}
