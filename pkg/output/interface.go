package output

import (
	"context"
	"io"

	"github.com/oceanlab/flowmow/pkg/table"
)

// Formatter renders instrument tables and run reports in a specific format.
type Formatter interface {
	// FormatTable renders one instrument table to the given writer.
	FormatTable(ctx context.Context, t *table.Table, w io.Writer) error

	// FormatReport renders a run report to the given writer.
	FormatReport(ctx context.Context, report *Report, w io.Writer) error

	// Name returns the format name (csv, json, text).
	Name() string

	// Extension returns the file extension for tables, without the dot.
	Extension() string
}

// FormatOptions controls formatter behavior.
type FormatOptions struct {
	// Verbose adds per-source line statistics to reports.
	Verbose bool

	// Quiet reduces reports to a one-line summary.
	Quiet bool
}

// Names lists the supported formats.
var Names = []string{"csv", "json", "text"}
