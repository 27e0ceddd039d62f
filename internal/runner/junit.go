package runner

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/testforge/portalsuite/internal/domain"
)

type junitSuites struct {
	XMLName xml.Name     `xml:"testsuites"`
	Suites  []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       string          `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Hostname   string          `xml:"hostname,attr,omitempty"`
	Properties *junitProps     `xml:"properties,omitempty"`
	Cases      []junitTestCase `xml:"testcase"`
}

type junitProps struct {
	Items []junitProp `xml:"property"`
}

type junitProp struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitTestCase struct {
	ClassName  string        `xml:"classname,attr"`
	Name       string        `xml:"name,attr"`
	Time       string        `xml:"time,attr"`
	Properties *junitProps   `xml:"properties,omitempty"`
	Failure    *junitMessage `xml:"failure,omitempty"`
	Error      *junitMessage `xml:"error,omitempty"`
	Skipped    *junitMessage `xml:"skipped,omitempty"`
}

// OutcomeProperty is the testcase property carrying outcomes JUnit has no
// element for
const OutcomeProperty = "outcome"

type junitMessage struct {
	Type    string `xml:"type,attr,omitempty"`
	Message string `xml:"message,attr,omitempty"`
	Body    string `xml:",chardata"`
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// firstLine is used as the short message of a failure element
func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func outcomeProps(o domain.Outcome) *junitProps {
	return &junitProps{Items: []junitProp{{Name: OutcomeProperty, Value: string(o)}}}
}

// MarshalJUnit encodes a report as a JUnit XML document
func MarshalJUnit(rep *Report) ([]byte, error) {
	sum := rep.Summary()
	suite := junitSuite{
		Name:     rep.Name,
		Tests:    sum.Total,
		Failures: sum.Failed,
		Errors:   sum.Errors,
		Skipped:  sum.Skipped + sum.XFailed,
		Time:     seconds(rep.Duration),
	}
	if !rep.StartedAt.IsZero() {
		suite.Timestamp = rep.StartedAt.Format("2006-01-02T15:04:05")
	}
	if host, err := os.Hostname(); err == nil {
		suite.Hostname = host
	}

	if len(rep.Properties) > 0 {
		keys := make([]string, 0, len(rep.Properties))
		for k := range rep.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		props := &junitProps{}
		for _, k := range keys {
			props.Items = append(props.Items, junitProp{Name: k, Value: rep.Properties[k]})
		}
		suite.Properties = props
	}

	for _, r := range rep.Records {
		tc := junitTestCase{ClassName: r.Group, Name: r.Name, Time: seconds(r.Duration)}
		switch r.Outcome {
		case domain.OutcomeFailed:
			tc.Failure = &junitMessage{Message: firstLine(r.Detail), Body: r.Detail}
		case domain.OutcomeError:
			tc.Error = &junitMessage{Message: firstLine(r.Detail), Body: r.Detail}
		case domain.OutcomeSkipped:
			tc.Skipped = &junitMessage{Type: "skip", Message: r.Detail}
		case domain.OutcomeXFailed:
			tc.Skipped = &junitMessage{Type: "xfail", Message: "expected failure", Body: r.Detail}
			tc.Properties = outcomeProps(r.Outcome)
		case domain.OutcomeXPassed:
			tc.Properties = outcomeProps(r.Outcome)
		}
		suite.Cases = append(suite.Cases, tc)
	}

	out, err := xml.MarshalIndent(junitSuites{Suites: []junitSuite{suite}}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding junit report: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// WriteJUnit writes the report to path, replacing any previous file
func WriteJUnit(path string, rep *Report) error {
	data, err := MarshalJUnit(rep)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing junit report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing junit report: %w", err)
	}
	return nil
}
