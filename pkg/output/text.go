package output

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/oceanlab/flowmow/pkg/table"
)

// TextFormatter formats tables and reports as human-readable text.
type TextFormatter struct {
	opts FormatOptions
}

// NewTextFormatter creates a new text formatter with the given options.
func NewTextFormatter(opts FormatOptions) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() string {
	return "text"
}

// Extension returns the file extension.
func (f *TextFormatter) Extension() string {
	return "txt"
}

// FormatTable renders the table as aligned columns.
func (f *TextFormatter) FormatTable(ctx context.Context, t *table.Table, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns(), "\t"))

	cells := make([]string, len(t.Columns()))
	for i := 0; i < t.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for c, v := range t.Row(i) {
			cells[c] = FormatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}

	return tw.Flush()
}

// FormatReport renders the report as text.
func (f *TextFormatter) FormatReport(ctx context.Context, report *Report, w io.Writer) error {
	if f.opts.Quiet {
		return f.formatQuiet(report, w)
	}
	return f.formatFull(report, w)
}

func (f *TextFormatter) formatQuiet(report *Report, w io.Writer) error {
	fmt.Fprintf(w, "flowmow: %d dives, %d sources, %d records, %d dropped, %d issues\n",
		report.Summary.Dives,
		report.Summary.Sources,
		report.Summary.Records,
		report.Summary.Dropped,
		report.Summary.Issues)
	return nil
}

func (f *TextFormatter) formatFull(report *Report, w io.Writer) error {
	fmt.Fprintln(w, "=== flowmow Run Report ===")
	fmt.Fprintln(w)

	for _, s := range report.Sources {
		f.formatSource(s, w)
	}

	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Summary: %d dives, %d sources, %d records, %d dropped\n",
		report.Summary.Dives,
		report.Summary.Sources,
		report.Summary.Records,
		report.Summary.Dropped)
	if report.Summary.Issues > 0 {
		fmt.Fprintf(w, "Issues: %d\n", report.Summary.Issues)
	}

	if f.opts.Verbose {
		fmt.Fprintf(w, "Lines processed: %d\n", report.Summary.LinesProcessed)
		fmt.Fprintf(w, "Decode errors: %d\n", report.Summary.DecodeErrors)
		fmt.Fprintf(w, "Duration: %s\n", report.Metadata.Duration.Round(1e6))
	}

	return nil
}

func (f *TextFormatter) formatSource(s SourceSummary, w io.Writer) {
	fmt.Fprintf(w, "[DIVE %d] %s\n", s.Dive, strings.ToUpper(string(s.Instrument)))

	if s.Stats.Records == 0 {
		fmt.Fprintln(w, "  No records recognized")
	} else {
		fmt.Fprintf(w, "  Records: %d (%d after filter)\n", s.Stats.Records, s.Rows)
	}
	if d := s.Stats.Dropped(); d > 0 {
		fmt.Fprintf(w, "  Dropped: %d (%d malformed, %d implausible)\n", d, s.Stats.Malformed, s.Stats.Implausible)
	}
	for _, issue := range s.Issues {
		fmt.Fprintf(w, "  Issue: %s\n", issue.Description)
	}

	if f.opts.Verbose {
		fmt.Fprintf(w, "  Inputs: %s\n", strings.Join(s.Inputs, ", "))
		fmt.Fprintf(w, "  Lines: %d, signed: %d, decode errors: %d\n", s.Stats.Lines, s.Stats.Signed, s.Stats.DecodeErrors)
		for _, out := range s.Outputs {
			fmt.Fprintf(w, "  Wrote: %s\n", out)
		}
	}

	fmt.Fprintln(w)
}
