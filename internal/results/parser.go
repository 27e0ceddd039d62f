// Package results reads the machine-readable output of a test run into
// domain records, resolving and inlining failure screenshots on the way.
package results

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/artifact"
	"github.com/testforge/portalsuite/internal/domain"
)

// Format identifies the shape of a results file
type Format string

const (
	FormatJUnit Format = "junit"
	FormatJSON  Format = "json"
	FormatHTML  Format = "html" // JSON blob embedded in an HTML page
)

// Result is the parsed content of one results file
type Result struct {
	Format      Format         `json:"format"`
	Source      string         `json:"source"`
	Title       string         `json:"title,omitempty"`
	Environment []EnvEntry     `json:"environment,omitempty"`
	Summary     domain.Summary `json:"summary"`
	Groups      []Group        `json:"groups"`

	// Absolute paths of artifacts inlined into records
	Embedded []string `json:"-"`
}

// Group holds the records of one test file or class, in first-seen order
type Group struct {
	Key     string              `json:"key"`
	Records []domain.TestRecord `json:"records"`
}

// EnvEntry is one row of the run environment table. Nested maps are
// flattened into Items.
type EnvEntry struct {
	Key   string     `json:"key"`
	Value string     `json:"value,omitempty"`
	Items []EnvEntry `json:"items,omitempty"`
}

// Records returns every record across groups in display order
func (r *Result) Records() []domain.TestRecord {
	var out []domain.TestRecord
	for _, g := range r.Groups {
		out = append(out, g.Records...)
	}
	return out
}

// Parser turns results files into Results
type Parser struct {
	locator  *artifact.Locator
	embedder *artifact.Embedder
	logger   *zap.Logger
}

// NewParser creates a Parser. locator and embedder may be nil, in which case
// screenshots are neither searched nor inlined.
func NewParser(locator *artifact.Locator, embedder *artifact.Embedder, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{locator: locator, embedder: embedder, logger: logger}
}

// Parse reads the results file at path. screenshotDirs are searched for the
// screenshots of failed JUnit cases; JSON results carry their own paths.
// Any read or decode failure is returned as a results parse error.
func (p *Parser) Parse(path string, screenshotDirs []string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.ErrResultsParseFailed(path, err)
	}

	format := DetectFormat(path, data)

	var res *Result
	switch format {
	case FormatJUnit:
		res, err = p.parseJUnit(data, screenshotDirs)
	case FormatJSON:
		res, err = p.parseJSON(data, filepath.Dir(path))
	case FormatHTML:
		var blob []byte
		blob, err = extractBlob(data)
		if err == nil {
			res, err = p.parseJSON(blob, filepath.Dir(path))
		}
	default:
		err = fmt.Errorf("unrecognized results format")
	}
	if err != nil {
		return nil, domain.ErrResultsParseFailed(path, err)
	}

	res.Format = format
	res.Source = path
	if res.Title == "" {
		res.Title = filepath.Base(path)
	}

	p.logger.Debug("Parsed results file",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("total", res.Summary.Total),
		zap.Int("failed", res.Summary.FailedTotal()),
		zap.Int("embedded", len(res.Embedded)),
	)

	return res, nil
}

// DetectFormat decides the shape from the file extension, then from content
func DetectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatJUnit
	case ".json":
		return FormatJSON
	case ".html", ".htm":
		return FormatHTML
	}

	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		return FormatJSON
	case bytes.Contains(trimmed, []byte("data-jsonblob")):
		return FormatHTML
	case bytes.HasPrefix(trimmed, []byte("<")):
		return FormatJUnit
	}
	return ""
}

// attach resolves and inlines a screenshot into rec
func (p *Parser) attach(rec *domain.TestRecord, path string, embedded *[]string) {
	if p.embedder == nil || path == "" {
		return
	}
	uri, ok := p.embedder.Embed(path)
	if !ok {
		return
	}
	rec.ScreenshotPath = path
	rec.ScreenshotURI = uri
	*embedded = append(*embedded, path)
}

// groupIndex keeps groups in first-seen order and collapses duplicate
// records, the last one winning in the position of the first.
type groupIndex struct {
	groups []Group
	byKey  map[string]int
	pos    map[string][2]int
}

func newGroupIndex() *groupIndex {
	return &groupIndex{byKey: map[string]int{}, pos: map[string][2]int{}}
}

func (g *groupIndex) add(rec domain.TestRecord) {
	if at, ok := g.pos[rec.Key()]; ok {
		g.groups[at[0]].Records[at[1]] = rec
		return
	}
	gi, ok := g.byKey[rec.Group]
	if !ok {
		gi = len(g.groups)
		g.byKey[rec.Group] = gi
		g.groups = append(g.groups, Group{Key: rec.Group})
	}
	g.groups[gi].Records = append(g.groups[gi].Records, rec)
	g.pos[rec.Key()] = [2]int{gi, len(g.groups[gi].Records) - 1}
}

func (g *groupIndex) records() []domain.TestRecord {
	var out []domain.TestRecord
	for _, grp := range g.groups {
		out = append(out, grp.Records...)
	}
	return out
}

// formatSeconds renders a duration the way the JUnit report does
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
