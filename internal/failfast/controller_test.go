package failfast

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/portalsuite/internal/domain"
)

type fakePage struct {
	err   error
	shots []string
}

func (p *fakePage) Screenshot(path string) error {
	if p.err != nil {
		return p.err
	}
	p.shots = append(p.shots, path)
	return os.WriteFile(path, []byte("png"), 0o644)
}

type step struct {
	outcome  domain.Outcome
	retry    bool
	expected bool
}

// drive feeds outcomes through the controller the way the runner does and
// returns which steps actually ran.
func drive(c *Controller, s *Session, steps []step) []bool {
	ctx := context.Background()
	ran := make([]bool, len(steps))
	for i, st := range steps {
		id := "tests/test_a.py::test_" + string(rune('a'+i))
		d := c.BeforeTest(ctx, s, id)
		if !d.Run {
			continue
		}
		ran[i] = true
		c.AfterTest(ctx, s, id, Attempt{Outcome: st.outcome, RetryPending: st.retry, ExpectedFailure: st.expected})
	}
	return ran
}

func TestController_SkipsAfterTerminalFailure(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
		want  []bool
	}{
		{
			name:  "all pass",
			steps: []step{{outcome: domain.OutcomePassed}, {outcome: domain.OutcomePassed}},
			want:  []bool{true, true},
		},
		{
			name:  "terminal failure blocks the rest",
			steps: []step{{outcome: domain.OutcomePassed}, {outcome: domain.OutcomeFailed}, {outcome: domain.OutcomePassed}, {outcome: domain.OutcomePassed}},
			want:  []bool{true, true, false, false},
		},
		{
			name:  "error counts as terminal failure",
			steps: []step{{outcome: domain.OutcomeError}, {outcome: domain.OutcomePassed}},
			want:  []bool{true, false},
		},
		{
			name:  "retry pending failure does not block",
			steps: []step{{outcome: domain.OutcomeFailed, retry: true}, {outcome: domain.OutcomePassed}, {outcome: domain.OutcomeFailed, retry: true}},
			want:  []bool{true, true, true},
		},
		{
			name:  "expected failure does not block",
			steps: []step{{outcome: domain.OutcomeFailed, expected: true}, {outcome: domain.OutcomeXFailed}, {outcome: domain.OutcomePassed}},
			want:  []bool{true, true, true},
		},
		{
			name:  "skipped does not block",
			steps: []step{{outcome: domain.OutcomeSkipped}, {outcome: domain.OutcomePassed}},
			want:  []bool{true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("", "", nil)
			got := drive(NewController(false, nil), s, tt.steps)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestController_BeforeTest_SkipReason(t *testing.T) {
	ctx := context.Background()
	c := NewController(false, nil)
	s := NewSession("run-1", "", nil)

	res := c.AfterTest(ctx, s, "t1", Attempt{Outcome: domain.OutcomeFailed})
	assert.True(t, res.Tripped)
	assert.Equal(t, "t1", s.TrippedBy())

	d := c.BeforeTest(ctx, s, "t2")
	assert.False(t, d.Run)
	assert.Equal(t, SkipReason, d.SkipReason)

	// A second terminal failure keeps the first culprit
	c.AfterTest(ctx, s, "t3", Attempt{Outcome: domain.OutcomeFailed})
	assert.Equal(t, "t1", s.TrippedBy())
}

func TestController_Disabled(t *testing.T) {
	s := NewSession("", "", nil)
	got := drive(NewController(true, nil), s, []step{{outcome: domain.OutcomeFailed}, {outcome: domain.OutcomePassed}})
	assert.Equal(t, []bool{true, true}, got)
	assert.False(t, s.Tripped())
}

func TestController_Screenshot(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "screenshots")

	t.Run("captured on terminal failure", func(t *testing.T) {
		page := &fakePage{}
		s := NewSession("", dir, nil)
		res := NewController(false, nil).AfterTest(ctx, s, "tests/test_login.py::test_login[chromium]", Attempt{
			Outcome: domain.OutcomeFailed,
			Page:    page,
		})

		want := filepath.Join(dir, "tests-test_login-py-test_login-chromium.png")
		assert.Equal(t, want, res.ScreenshotPath)
		assert.Equal(t, []string{want}, page.shots)
		assert.FileExists(t, want)
		assert.True(t, res.Tripped)
	})

	t.Run("not captured while retry pending", func(t *testing.T) {
		page := &fakePage{}
		s := NewSession("", dir, nil)
		res := NewController(false, nil).AfterTest(ctx, s, "t", Attempt{Outcome: domain.OutcomeFailed, RetryPending: true, Page: page})
		assert.Empty(t, res.ScreenshotPath)
		assert.Empty(t, page.shots)
		assert.False(t, s.Tripped())
	})

	t.Run("not captured on pass", func(t *testing.T) {
		page := &fakePage{}
		s := NewSession("", dir, nil)
		NewController(false, nil).AfterTest(ctx, s, "t", Attempt{Outcome: domain.OutcomePassed, Page: page})
		assert.Empty(t, page.shots)
	})

	t.Run("capture failure is not fatal", func(t *testing.T) {
		page := &fakePage{err: errors.New("target closed")}
		s := NewSession("", dir, nil)
		res := NewController(false, nil).AfterTest(ctx, s, "t", Attempt{Outcome: domain.OutcomeFailed, Page: page})
		assert.Empty(t, res.ScreenshotPath)
		assert.True(t, res.Tripped, "the flag is still set")
	})

	t.Run("no page", func(t *testing.T) {
		s := NewSession("", dir, nil)
		res := NewController(false, nil).AfterTest(ctx, s, "t", Attempt{Outcome: domain.OutcomeFailed})
		assert.Empty(t, res.ScreenshotPath)
		assert.True(t, res.Tripped)
	})
}

type brokenFlag struct{}

func (brokenFlag) Tripped(context.Context) (bool, error) { return false, errors.New("connection refused") }
func (brokenFlag) Trip(context.Context, string) error { return errors.New("connection refused") }

func TestController_SharedFlag(t *testing.T) {
	ctx := context.Background()
	shared := &LocalFlag{}
	c := NewController(false, nil)

	workerA := NewSession("shared", "", shared)
	workerB := NewSession("shared", "", shared)

	c.AfterTest(ctx, workerA, "a::t1", Attempt{Outcome: domain.OutcomeFailed})

	d := c.BeforeTest(ctx, workerB, "b::t2")
	assert.False(t, d.Run, "a failure in one worker blocks the others")
	assert.True(t, workerB.Tripped())

	t.Run("unreachable shared flag falls back to local state", func(t *testing.T) {
		s := NewSession("x", "", brokenFlag{})
		assert.True(t, c.BeforeTest(ctx, s, "t1").Run)
		res := c.AfterTest(ctx, s, "t1", Attempt{Outcome: domain.OutcomeFailed})
		require.True(t, res.Tripped)
		assert.False(t, c.BeforeTest(ctx, s, "t2").Run)
	})
}

func TestNewSession_GeneratesID(t *testing.T) {
	a := NewSession("", "", nil)
	b := NewSession("", "", nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "given", NewSession("given", "", nil).ID)
}
