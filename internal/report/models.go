package report

import (
	"html/template"
	"time"

	"github.com/testforge/portalsuite/internal/artifact"
	"github.com/testforge/portalsuite/internal/domain"
	"github.com/testforge/portalsuite/internal/results"
)

// Document is everything a report is rendered from
type Document struct {
	Result      *results.Result
	Assets      artifact.Assets
	RunID       string
	GeneratedAt time.Time
}

// pageView is the template model
type pageView struct {
	Title       string
	Source      string
	RunID       string
	GeneratedAt string

	Summary      domain.Summary
	FailedTotal  int
	DurationText string
	PassRate     string

	Environment []results.EnvEntry
	Groups      []groupView

	CSS     template.CSS
	JS      template.JS
	CSSURL  string
	JSURL   string
	Inlined bool
}

type groupView struct {
	Key   string
	Label string
	Items []itemView
}

type itemView struct {
	Index      int
	Name       string
	Outcome    string
	FilterKey  string
	Label      string
	Badge      string
	Duration   string
	Attempts   int
	Expanded   bool
	Log        []logLine
	Screenshot template.URL
	ShotLink   string
}

type logLine struct {
	Text  string
	Error bool
}

// JSONReport is the machine-readable companion of the HTML report
type JSONReport struct {
	RunID       string             `json:"run_id,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
	Title       string             `json:"title"`
	Format      results.Format     `json:"format"`
	Source      string             `json:"source"`
	Summary     domain.Summary     `json:"summary"`
	Environment []results.EnvEntry `json:"environment,omitempty"`
	Groups      []results.Group    `json:"groups"`
}
