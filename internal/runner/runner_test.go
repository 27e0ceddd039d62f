package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/failfast"
)

type fakePage struct {
	shots  []string
	closed bool
}

func (p *fakePage) Screenshot(path string) error {
	p.shots = append(p.shots, path)
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeOpener struct {
	pages []*fakePage
	err   error
}

func (o *fakeOpener) Open(context.Context, string) (PageHandle, error) {
	if o.err != nil {
		return nil, o.err
	}
	p := &fakePage{}
	o.pages = append(o.pages, p)
	return p, nil
}

func pass(context.Context, PageHandle) error { return nil }

func fail(context.Context, PageHandle) error { return errors.New("element not visible") }

func newRunner(t *testing.T, attempts int, disabled bool) (*Runner, *fakeOpener, *failfast.Session) {
	t.Helper()
	opener := &fakeOpener{}
	r := New(Config{MaxAttempts: attempts, Timeout: time.Second}, failfast.NewController(disabled, nil), opener, nil)
	return r, opener, failfast.NewSession("s1", t.TempDir(), nil)
}

func outcomes(rep *Report) []domain.Outcome {
	out := make([]domain.Outcome, len(rep.Records))
	for i, r := range rep.Records {
		out[i] = r.Outcome
	}
	return out
}

func TestRunner_FailFastSkipsRemaining(t *testing.T) {
	r, _, s := newRunner(t, 1, false)

	rep := r.Run(context.Background(), s, []Case{
		{Group: "portal.login", Name: "a", Body: pass},
		{Group: "portal.login", Name: "b", Body: fail},
		{Group: "portal.login", Name: "c", Body: pass},
		{Group: "portal.login", Name: "d", Body: pass},
	})

	assert.Equal(t, []domain.Outcome{
		domain.OutcomePassed, domain.OutcomeFailed, domain.OutcomeSkipped, domain.OutcomeSkipped,
	}, outcomes(rep))
	assert.Equal(t, failfast.SkipReason, rep.Records[2].Detail)
	assert.Equal(t, "portal/login.go::b", s.TrippedBy())
}

func TestRunner_RetryThenPass(t *testing.T) {
	r, opener, s := newRunner(t, 2, false)

	calls := 0
	flaky := func(context.Context, PageHandle) error {
		calls++
		if calls == 1 {
			return errors.New("timeout")
		}
		return nil
	}

	rep := r.Run(context.Background(), s, []Case{
		{Group: "portal.booking", Name: "flaky", Body: flaky},
		{Group: "portal.booking", Name: "next", Body: pass},
	})

	assert.Equal(t, []domain.Outcome{domain.OutcomePassed, domain.OutcomePassed}, outcomes(rep))
	assert.Equal(t, 2, rep.Records[0].Attempts)
	assert.False(t, s.Tripped(), "a retry-pending failure never trips the session")

	require.Len(t, opener.pages, 3, "each attempt gets a fresh page")
	assert.Empty(t, opener.pages[0].shots, "no screenshot while a retry is pending")
	for _, p := range opener.pages {
		assert.True(t, p.closed)
	}
}

func TestRunner_TerminalFailureCapturesLastAttempt(t *testing.T) {
	r, opener, s := newRunner(t, 2, false)

	rep := r.Run(context.Background(), s, []Case{{Group: "portal.cargo", Name: "broken", Variant: "chromium", Body: fail}})

	require.Len(t, rep.Records, 1)
	assert.Equal(t, domain.OutcomeFailed, rep.Records[0].Outcome)
	assert.Equal(t, 2, rep.Records[0].Attempts)
	assert.Contains(t, rep.Records[0].Detail, "E   element not visible")

	require.Len(t, opener.pages, 2)
	assert.Empty(t, opener.pages[0].shots)
	require.Len(t, opener.pages[1].shots, 1)
	assert.Equal(t, filepath.Join(s.ScreenshotDir, "portal-cargo-go-broken-chromium.png"), opener.pages[1].shots[0])
}

func TestRunner_ExpectedFailures(t *testing.T) {
	r, _, s := newRunner(t, 2, false)

	rep := r.Run(context.Background(), s, []Case{
		{Group: "g", Name: "xfail", ExpectFail: true, Body: fail},
		{Group: "g", Name: "xpass", ExpectFail: true, Body: pass},
		{Group: "g", Name: "after", Body: pass},
	})

	assert.Equal(t, []domain.Outcome{domain.OutcomeXFailed, domain.OutcomeXPassed, domain.OutcomePassed}, outcomes(rep))
	assert.Equal(t, 1, rep.Records[0].Attempts, "expected failures are not retried")
	assert.False(t, s.Tripped())
}

func TestRunner_PanicIsError(t *testing.T) {
	r, _, s := newRunner(t, 1, false)

	rep := r.Run(context.Background(), s, []Case{
		{Group: "g", Name: "boom", Body: func(context.Context, PageHandle) error { panic("nil locator") }},
		{Group: "g", Name: "after", Body: pass},
	})

	assert.Equal(t, []domain.Outcome{domain.OutcomeError, domain.OutcomeSkipped}, outcomes(rep))
	assert.Contains(t, rep.Records[0].Detail, "panic: nil locator")
}

func TestRunner_SkipFromBody(t *testing.T) {
	r, _, s := newRunner(t, 1, false)

	rep := r.Run(context.Background(), s, []Case{
		{Group: "g", Name: "needs-data", Body: func(context.Context, PageHandle) error { return Skip("no proposal number recorded") }},
		{Group: "g", Name: "after", Body: pass},
	})

	assert.Equal(t, []domain.Outcome{domain.OutcomeSkipped, domain.OutcomePassed}, outcomes(rep))
	assert.Equal(t, "no proposal number recorded", rep.Records[0].Detail)
}

func TestRunner_DisabledKeepsRunning(t *testing.T) {
	r, _, s := newRunner(t, 1, true)

	rep := r.Run(context.Background(), s, []Case{
		{Group: "g", Name: "a", Body: fail},
		{Group: "g", Name: "b", Body: pass},
	})
	assert.Equal(t, []domain.Outcome{domain.OutcomeFailed, domain.OutcomePassed}, outcomes(rep))
}

func TestRunner_Timeout(t *testing.T) {
	r := New(Config{MaxAttempts: 1, Timeout: 20 * time.Millisecond}, failfast.NewController(true, nil), nil, nil)
	s := failfast.NewSession("", "", nil)

	rep := r.Run(context.Background(), s, []Case{{Group: "g", Name: "slow", Body: func(ctx context.Context, _ PageHandle) error {
		<-ctx.Done()
		return ctx.Err()
	}}})

	assert.Equal(t, domain.OutcomeFailed, rep.Records[0].Outcome)
	assert.Contains(t, rep.Records[0].Detail, "deadline exceeded")
}

func TestRunner_OpenFailureIsError(t *testing.T) {
	r, opener, s := newRunner(t, 1, false)
	opener.err = errors.New("browser not installed")

	rep := r.Run(context.Background(), s, []Case{
		{Group: "g", Name: "a", Body: pass},
		{Group: "g", Name: "no-page", NoPage: true, Body: pass},
	})

	assert.Equal(t, domain.OutcomeError, rep.Records[0].Outcome)
	assert.Contains(t, rep.Records[0].Detail, "browser not installed")
	assert.Equal(t, domain.OutcomeSkipped, rep.Records[1].Outcome)
}

func TestRunner_Cancelled(t *testing.T) {
	r, _, s := newRunner(t, 1, false)
	ctx, cancel := context.WithCancel(context.Background())

	rep := r.Run(ctx, s, []Case{
		{Group: "g", Name: "a", Body: func(context.Context, PageHandle) error { cancel(); return nil }},
		{Group: "g", Name: "b", Body: pass},
	})

	assert.Equal(t, []domain.Outcome{domain.OutcomePassed, domain.OutcomeSkipped}, outcomes(rep))
	assert.Equal(t, "run cancelled", rep.Records[1].Detail)
}

func TestRunner_OnResult(t *testing.T) {
	r, _, s := newRunner(t, 1, false)
	var seen []string
	r.OnResult = func(rec domain.TestRecord) { seen = append(seen, rec.Name) }

	r.Run(context.Background(), s, []Case{{Group: "g", Name: "a", Body: pass}, {Group: "g", Name: "b", Body: pass}})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestCase_ID(t *testing.T) {
	c := Case{Group: "portal.proposal", Name: "create_booking", Variant: "firefox"}
	assert.Equal(t, "create_booking[firefox]", c.FullName())
	assert.Equal(t, "portal/proposal.go::create_booking[firefox]", c.ID())

	c.Variant = ""
	assert.Equal(t, "portal/proposal.go::create_booking", c.ID())
}

func TestSelect(t *testing.T) {
	cases := []Case{
		{Group: "portal.proposal", Name: "create_booking"},
		{Group: "portal.cargo", Name: "cargo_integration"},
	}

	tests := []struct {
		name    string
		targets []string
		want    []string
	}{
		{"no targets", nil, []string{"create_booking", "cargo_integration"}},
		{"blank target", []string{" "}, []string{"create_booking", "cargo_integration"}},
		{"by name", []string{"booking"}, []string{"create_booking"}},
		{"by group, case insensitive", []string{"PORTAL/CARGO"}, []string{"cargo_integration"}},
		{"several", []string{"booking", "cargo"}, []string{"create_booking", "cargo_integration"}},
		{"none", []string{"nothing"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, c := range Select(cases, tt.targets...) {
				got = append(got, c.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpand(t *testing.T) {
	cases := Expand([]Case{{Group: "g", Name: "a"}, {Group: "g", Name: "b"}}, []string{"chromium", "firefox"})

	var names []string
	for _, c := range cases {
		names = append(names, c.FullName())
	}
	assert.Equal(t, []string{"a[chromium]", "a[firefox]", "b[chromium]", "b[firefox]"}, names)
	assert.Equal(t, []string{"g.go::a[chromium]", "g.go::a[firefox]", "g.go::b[chromium]", "g.go::b[firefox]"}, IDs(cases))
	assert.True(t, strings.HasPrefix(IDs(cases)[0], "g.go"))
}
