// Package output renders instrument tables and run reports.
package output

import (
	"time"

	"github.com/oceanlab/flowmow/pkg/instrument"
	"github.com/oceanlab/flowmow/pkg/qc"
)

// Report is the outcome of one run.
type Report struct {
	Summary  Summary         `json:"summary"`
	Sources  []SourceSummary `json:"sources"`
	Metadata Metadata        `json:"metadata"`
}

// Summary provides aggregate statistics.
type Summary struct {
	Dives          int `json:"dives"`
	Sources        int `json:"sources"`
	LinesProcessed int `json:"lines_processed"`
	Records        int `json:"records"`
	Dropped        int `json:"dropped"`
	DecodeErrors   int `json:"decode_errors"`
	Issues         int `json:"issues"`
}

// SourceSummary describes one instrument of one dive.
type SourceSummary struct {
	Dive       int              `json:"dive"`
	Instrument instrument.Kind  `json:"instrument"`
	Inputs     []string         `json:"inputs"`
	Stats      instrument.Stats `json:"stats"`

	// Rows is the table length after filtering.
	Rows    int      `json:"rows"`
	Outputs []string `json:"outputs,omitempty"`

	// Issues are the sampling checks the source failed.
	Issues []qc.Issue `json:"issues,omitempty"`
}

// Metadata provides context about the run.
type Metadata struct {
	ConfigFile string        `json:"config_file,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// NewReport aggregates per-source summaries into a Report.
func NewReport(configFile string, started, finished time.Time, sources []SourceSummary) *Report {
	report := &Report{
		Sources: sources,
		Metadata: Metadata{
			ConfigFile: configFile,
			StartedAt:  started,
			Duration:   finished.Sub(started),
		},
	}

	dives := make(map[int]bool)
	for _, s := range sources {
		dives[s.Dive] = true
		report.Summary.Sources++
		report.Summary.LinesProcessed += s.Stats.Lines
		report.Summary.Records += s.Stats.Records
		report.Summary.Dropped += s.Stats.Dropped()
		report.Summary.DecodeErrors += s.Stats.DecodeErrors
		report.Summary.Issues += len(s.Issues)
	}
	report.Summary.Dives = len(dives)

	return report
}

// HasIssues reports whether any source failed a sampling check.
func (r *Report) HasIssues() bool {
	return r.Summary.Issues > 0
}

// Unproductive returns the sources that yielded no records at all.
func (r *Report) Unproductive() []SourceSummary {
	var out []SourceSummary
	for _, s := range r.Sources {
		if s.Stats.Records == 0 {
			out = append(out, s)
		}
	}
	return out
}
