package domain

import (
	"path/filepath"
	"time"
)

// RunIDLayout formats run identifiers; second resolution, sortable as text.
const RunIDLayout = "20060102_150405"

// File and directory names inside a run directory
const (
	ResultsFileName   = "report.xml"
	ReportFileName    = "report.html"
	ReportJSONName    = "report.json"
	ArtifactDirName   = "test-results"
	ScreenshotDirName = "screenshots"
)

// Run is one invocation of the suite and the directory holding its artifacts
type Run struct {
	ID        string    `json:"id"`
	Dir       string    `json:"dir"`
	StartedAt time.Time `json:"started_at"`
}

// NewRun builds a Run for the given start time under base
func NewRun(base string, startedAt time.Time) *Run {
	id := startedAt.Format(RunIDLayout)
	return &Run{
		ID:        id,
		Dir:       filepath.Join(base, id),
		StartedAt: startedAt,
	}
}

// ResultsPath is where the machine-readable results file is written
func (r *Run) ResultsPath() string {
	return filepath.Join(r.Dir, ResultsFileName)
}

// ReportPath is where the rendered HTML report is written
func (r *Run) ReportPath() string {
	return filepath.Join(r.Dir, ReportFileName)
}

// ReportJSONPath is where the machine-readable report is written
func (r *Run) ReportJSONPath() string {
	return filepath.Join(r.Dir, ReportJSONName)
}

// ArtifactDir receives per-test folders from the browser capture tool
func (r *Run) ArtifactDir() string {
	return filepath.Join(r.Dir, ArtifactDirName)
}

// ScreenshotDir receives screenshots taken by the failure hook
func (r *Run) ScreenshotDir() string {
	return filepath.Join(r.Dir, ScreenshotDirName)
}

// IsRunID reports whether name is a directory name produced by NewRun
func IsRunID(name string) bool {
	_, err := time.Parse(RunIDLayout, name)
	return err == nil
}

// RunFromDir reconstructs a Run from an existing run directory
func RunFromDir(dir string) *Run {
	id := filepath.Base(dir)
	started, _ := time.ParseInLocation(RunIDLayout, id, time.Local)
	return &Run{ID: id, Dir: dir, StartedAt: started}
}
