package results

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/domain"
)

type junitSuite struct {
	XMLName    xml.Name
	Name       string          `xml:"name,attr"`
	Time       string          `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Hostname   string          `xml:"hostname,attr"`
	Properties []junitProperty `xml:"properties>property"`
	Suites     []junitSuite    `xml:"testsuite"`
	Cases      []junitCase     `xml:"testcase"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitCase struct {
	Name       string          `xml:"name,attr"`
	Classname  string          `xml:"classname,attr"`
	Time       string          `xml:"time,attr"`
	Properties []junitProperty `xml:"properties>property"`
	Failure    *junitMessage   `xml:"failure"`
	Error      *junitMessage   `xml:"error"`
	Skipped    *junitMessage   `xml:"skipped"`
}

// expectedOutcome returns the xfailed/xpassed marker the suite runner
// attaches as a testcase property
func (c junitCase) expectedOutcome() (domain.Outcome, bool) {
	for _, p := range c.Properties {
		if p.Name != "outcome" {
			continue
		}
		switch o := domain.ParseOutcome(p.Value); o {
		case domain.OutcomeXFailed, domain.OutcomeXPassed:
			return o, true
		}
	}
	return "", false
}

type junitMessage struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

func (m *junitMessage) detail() string {
	if m == nil {
		return ""
	}
	if text := strings.TrimSpace(m.Text); text != "" {
		return m.Text
	}
	return m.Message
}

func (p *Parser) parseJUnit(data []byte, screenshotDirs []string) (*Result, error) {
	var root junitSuite
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding junit xml: %w", err)
	}

	switch root.XMLName.Local {
	case "testsuites":
	case "testsuite":
		// A lone suite is treated as the only child of an implicit root
		root = junitSuite{XMLName: root.XMLName, Suites: []junitSuite{root}}
	default:
		return nil, fmt.Errorf("unexpected root element <%s>", root.XMLName.Local)
	}

	res := &Result{}
	idx := newGroupIndex()

	var total time.Duration
	for _, s := range root.Suites {
		total += parseSeconds(s.Time)
		res.Environment = append(res.Environment, suiteEnvironment(s)...)
	}
	if d := parseSeconds(root.Time); d > 0 {
		total = d
	}

	var walk func(s junitSuite)
	walk = func(s junitSuite) {
		for _, c := range s.Cases {
			idx.add(caseRecord(c))
		}
		for _, child := range s.Suites {
			walk(child)
		}
	}
	for _, s := range root.Suites {
		walk(s)
	}
	// Cases directly under <testsuites> are tolerated
	for _, c := range root.Cases {
		idx.add(caseRecord(c))
	}

	for gi := range idx.groups {
		for ri := range idx.groups[gi].Records {
			rec := &idx.groups[gi].Records[ri]
			if rec.Outcome != domain.OutcomeFailed || p.locator == nil {
				continue
			}
			path, ok := p.locator.Locate(rec.Name, rec.Group, screenshotDirs)
			if !ok {
				p.logger.Debug("No screenshot found for failed test",
					zap.String("group", rec.Group),
					zap.String("name", rec.Name),
				)
				continue
			}
			p.attach(rec, path, &res.Embedded)
		}
	}

	res.Groups = idx.groups
	res.Summary = domain.Summarize(idx.records(), total)
	return res, nil
}

// caseRecord maps a testcase element onto a record. A failure or error child
// marks the case failed whatever else it contains. Other skips, xfail
// included, stay skipped unless an outcome property says otherwise.
func caseRecord(c junitCase) domain.TestRecord {
	d := parseSeconds(c.Time)
	rec := domain.TestRecord{
		Group:        c.Classname,
		Name:         c.Name,
		Duration:     d,
		DurationText: formatSeconds(d),
		Attempts:     1,
	}

	switch {
	case c.Failure != nil:
		rec.Outcome = domain.OutcomeFailed
		rec.Detail = c.Failure.detail()
	case c.Error != nil:
		rec.Outcome = domain.OutcomeFailed
		rec.Detail = c.Error.detail()
	case c.Skipped != nil:
		rec.Outcome = domain.OutcomeSkipped
		rec.Detail = c.Skipped.detail()
	default:
		rec.Outcome = domain.OutcomePassed
	}
	if !rec.Outcome.IsFailure() {
		if o, ok := c.expectedOutcome(); ok {
			rec.Outcome = o
		}
	}
	return rec
}

func suiteEnvironment(s junitSuite) []EnvEntry {
	var env []EnvEntry
	if s.Hostname != "" {
		env = append(env, EnvEntry{Key: "Host", Value: s.Hostname})
	}
	if s.Timestamp != "" {
		env = append(env, EnvEntry{Key: "Started", Value: s.Timestamp})
	}
	for _, p := range s.Properties {
		env = append(env, EnvEntry{Key: p.Name, Value: p.Value})
	}
	return env
}

// parseSeconds reads a JUnit time attribute; unparsable values count as zero
func parseSeconds(s string) time.Duration {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
