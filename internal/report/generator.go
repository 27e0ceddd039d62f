// Package report renders parsed results into a self-contained HTML page.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"path"
	"regexp"
	"strings"

	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/results"
)

var errorLine = regexp.MustCompile(`^(E .*|> .*)$`)

// Renderer turns a Document into HTML. It holds no state between renders.
type Renderer struct {
	templates *template.Template
	sourceExt string
}

// NewRenderer parses the report template. sourceExt is used to show dotted
// class names as file paths.
func NewRenderer(sourceExt string) (*Renderer, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"percent": func(a, b int) float64 {
			if b == 0 {
				return 0
			}
			return float64(a) / float64(b) * 100
		},
	}).Parse(ReportTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &Renderer{templates: tmpl, sourceExt: sourceExt}, nil
}

// Render produces the HTML page. It has no side effects.
func (r *Renderer) Render(doc Document) (string, error) {
	if doc.Result == nil {
		return "", domain.ErrReportFailed("no results to render", nil)
	}

	var buf bytes.Buffer
	if err := r.templates.Execute(&buf, r.view(doc)); err != nil {
		return "", domain.ErrReportFailed("template execution", err)
	}
	return buf.String(), nil
}

// RenderJSON generates the machine-readable report
func (r *Renderer) RenderJSON(doc Document) ([]byte, error) {
	if doc.Result == nil {
		return nil, domain.ErrReportFailed("no results to render", nil)
	}
	return json.MarshalIndent(JSONReport{
		RunID:       doc.RunID,
		GeneratedAt: doc.GeneratedAt,
		Title:       doc.Result.Title,
		Format:      doc.Result.Format,
		Source:      doc.Result.Source,
		Summary:     doc.Result.Summary,
		Environment: doc.Result.Environment,
		Groups:      doc.Result.Groups,
	}, "", "  ")
}

func (r *Renderer) view(doc Document) pageView {
	res := doc.Result
	v := pageView{
		Title:        res.Title,
		Source:       res.Source,
		RunID:        doc.RunID,
		Summary:      res.Summary,
		FailedTotal:  res.Summary.FailedTotal(),
		DurationText: fmt.Sprintf("%.2fs", res.Summary.Duration.Seconds()),
		PassRate:     fmt.Sprintf("%.0f%%", res.Summary.PassRate()),
		Environment:  res.Environment,
		CSS:          template.CSS(doc.Assets.CSS),
		JS:           template.JS(doc.Assets.JS),
		CSSURL:       doc.Assets.CSSURL,
		JSURL:        doc.Assets.JSURL,
		Inlined:      doc.Assets.Inlined(),
	}
	if !doc.GeneratedAt.IsZero() {
		v.GeneratedAt = doc.GeneratedAt.Format("2006-01-02 15:04:05")
	}

	index := 0
	for _, g := range res.Groups {
		gv := groupView{Key: g.Key, Label: r.groupLabel(g.Key, res.Format)}
		for _, rec := range g.Records {
			gv.Items = append(gv.Items, itemFor(index, rec))
			index++
		}
		v.Groups = append(v.Groups, gv)
	}
	return v
}

// groupLabel shows JUnit class names as the file they came from
func (r *Renderer) groupLabel(key string, format results.Format) string {
	if key == "" {
		return "(no file)"
	}
	if format != results.FormatJUnit || r.sourceExt == "" || strings.ContainsAny(key, "/\\") {
		return key
	}
	return path.Clean(strings.ReplaceAll(key, ".", "/")) + r.sourceExt
}

func itemFor(index int, rec domain.TestRecord) itemView {
	item := itemView{
		Index:     index,
		Name:      rec.Name,
		Outcome:   string(rec.Outcome),
		FilterKey: rec.Outcome.FilterKey(),
		Label:     rec.Outcome.Label(),
		Badge:     badgeClass(rec.Outcome),
		Duration:  rec.DurationText,
		Attempts:  rec.Attempts,
		Expanded:  rec.Outcome.IsFailure(),
		Log:       logLines(rec.Detail),
	}
	if item.Duration == "" {
		item.Duration = fmt.Sprintf("%.2fs", rec.Duration.Seconds())
	}

	switch {
	case strings.HasPrefix(rec.ScreenshotURI, "data:image/"):
		// Inlined by the embedder, or carried as-is from JSON results
		item.Screenshot = template.URL(rec.ScreenshotURI)
	case rec.ScreenshotURI != "":
		item.ShotLink = rec.ScreenshotURI
	}
	return item
}

func badgeClass(o domain.Outcome) string {
	switch o {
	case domain.OutcomePassed:
		return "success"
	case domain.OutcomeFailed, domain.OutcomeError:
		return "danger"
	case domain.OutcomeSkipped:
		return "secondary"
	case domain.OutcomeXFailed:
		return "warning"
	case domain.OutcomeXPassed:
		return "info"
	default:
		return "primary"
	}
}

// logLines splits a failure log, flagging assertion and source lines
func logLines(detail string) []logLine {
	if strings.TrimSpace(detail) == "" {
		return nil
	}
	raw := strings.Split(strings.ReplaceAll(detail, "\r\n", "\n"), "\n")
	lines := make([]logLine, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, logLine{Text: l, Error: errorLine.MatchString(l)})
	}
	return lines
}
