package domain

import "time"

// TestRecord is the final result of one test case in a run
type TestRecord struct {
	Group        string        `json:"group"`
	Name         string        `json:"name"`
	Outcome      Outcome       `json:"outcome"`
	Duration     time.Duration `json:"duration"`
	DurationText string        `json:"duration_text,omitempty"`
	Detail       string        `json:"detail,omitempty"`
	Attempts     int           `json:"attempts,omitempty"`

	// Resolved after parsing
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	ScreenshotURI  string `json:"-"`
}

// Key identifies a record within a run
func (r TestRecord) Key() string {
	if r.Group == "" {
		return r.Name
	}
	return r.Group + "::" + r.Name
}

// Summary holds aggregate counts, always derived from records
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Errors   int           `json:"errors"`
	Skipped  int           `json:"skipped"`
	XFailed  int           `json:"xfailed"`
	XPassed  int           `json:"xpassed"`
	Duration time.Duration `json:"duration"`
}

// Summarize counts outcomes. duration is the wall time reported by the
// results source; when zero, the sum of record durations is used.
func Summarize(records []TestRecord, duration time.Duration) Summary {
	s := Summary{Total: len(records)}
	var sum time.Duration
	for _, r := range records {
		sum += r.Duration
		switch r.Outcome {
		case OutcomePassed:
			s.Passed++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeXFailed:
			s.XFailed++
		case OutcomeXPassed:
			s.XPassed++
		default:
			s.Errors++
		}
	}
	s.Duration = duration
	if s.Duration == 0 {
		s.Duration = sum
	}
	return s
}

// FailedTotal counts failures and errors together
func (s Summary) FailedTotal() int {
	return s.Failed + s.Errors
}

// HasFailures reports whether the run should exit non-zero
func (s Summary) HasFailures() bool {
	return s.FailedTotal() > 0
}

// PassRate returns the pass percentage of executed tests
func (s Summary) PassRate() float64 {
	executed := s.Total - s.Skipped
	if executed <= 0 {
		return 0
	}
	return float64(s.Passed) / float64(executed) * 100
}
