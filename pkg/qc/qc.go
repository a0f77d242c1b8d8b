// Package qc checks assembled instrument streams for sampling problems:
// silences longer than an instrument's expected sample interval and
// sources that logged fewer records than a dive should produce.
package qc

import (
	"fmt"
	"time"

	"github.com/oceanlab/flowmow/pkg/instrument"
)

// IssueType categorizes detected issues.
type IssueType string

const (
	// IssueTypeGapExceeded indicates two consecutive records further apart
	// than the allowed gap.
	IssueTypeGapExceeded IssueType = "gap_exceeded"

	// IssueTypeBelowMinRecords indicates fewer records than required.
	IssueTypeBelowMinRecords IssueType = "below_min_records"
)

// Rules configure the checks of one source. Zero values disable a check.
type Rules struct {
	MaxGap     time.Duration
	MinRecords int
}

// Enabled reports whether any check is configured.
func (r Rules) Enabled() bool {
	return r.MaxGap > 0 || r.MinRecords > 0
}

// Issue represents a single detected problem.
type Issue struct {
	Type        IssueType `json:"type"`
	Description string    `json:"description"`

	// Start and End bound a gap: the last record before the silence and the
	// first one after it.
	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`

	ActualGap   time.Duration `json:"actual_gap,omitempty"`
	ExpectedGap time.Duration `json:"expected_gap,omitempty"`

	Records     int `json:"records,omitempty"`
	MinRequired int `json:"min_required,omitempty"`
}

// Check examines records, which must be in time order, against r.
func Check(records []instrument.Record, r Rules) []Issue {
	var issues []Issue

	if r.MaxGap > 0 {
		for i := 1; i < len(records); i++ {
			prev := records[i-1].Head().Timestamp
			curr := records[i].Head().Timestamp

			gap := curr.Sub(prev)
			if gap <= r.MaxGap {
				continue
			}
			issues = append(issues, Issue{
				Type: IssueTypeGapExceeded,
				Description: fmt.Sprintf("No records for %s after %s (max allowed: %s)",
					gap.Round(time.Millisecond), prev.Format(time.RFC3339), r.MaxGap),
				Start:       prev,
				End:         curr,
				ActualGap:   gap,
				ExpectedGap: r.MaxGap,
			})
		}
	}

	if r.MinRecords > 0 && len(records) < r.MinRecords {
		issues = append(issues, Issue{
			Type: IssueTypeBelowMinRecords,
			Description: fmt.Sprintf("Only %d records found (minimum required: %d)",
				len(records), r.MinRecords),
			Records:     len(records),
			MinRequired: r.MinRecords,
		})
	}

	return issues
}
