package domain

import "strings"

// Outcome is the final status of a single test case
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeXFailed Outcome = "xfailed"
	OutcomeXPassed Outcome = "xpassed"
	OutcomeError   Outcome = "error"
)

// AllOutcomes lists outcomes in report display order
var AllOutcomes = []Outcome{
	OutcomePassed,
	OutcomeFailed,
	OutcomeError,
	OutcomeSkipped,
	OutcomeXFailed,
	OutcomeXPassed,
}

// ParseOutcome maps a status string from any results source onto an Outcome.
// Unknown strings map to OutcomeError so they are never reported as green.
func ParseOutcome(s string) Outcome {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passed", "pass", "success", "ok":
		return OutcomePassed
	case "failed", "fail", "failure":
		return OutcomeFailed
	case "skipped", "skip":
		return OutcomeSkipped
	case "xfailed", "xfail":
		return OutcomeXFailed
	case "xpassed", "xpass":
		return OutcomeXPassed
	default:
		return OutcomeError
	}
}

// IsFailure reports whether the outcome counts against the run
func (o Outcome) IsFailure() bool {
	return o == OutcomeFailed || o == OutcomeError
}

// FilterKey is the value the report filter matches on. Errors are grouped
// with failures.
func (o Outcome) FilterKey() string {
	if o == OutcomeError {
		return string(OutcomeFailed)
	}
	return string(o)
}

// Label returns the display label for the outcome
func (o Outcome) Label() string {
	switch o {
	case OutcomeXFailed:
		return "XFailed"
	case OutcomeXPassed:
		return "XPassed"
	case "":
		return "Unknown"
	}
	s := string(o)
	return strings.ToUpper(s[:1]) + s[1:]
}
