package output

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/oceanlab/flowmow/pkg/table"
)

// CSVFormatter writes tables as comma-separated values with a header row.
type CSVFormatter struct {
	opts FormatOptions
}

// NewCSVFormatter creates a new CSV formatter with the given options.
func NewCSVFormatter(opts FormatOptions) *CSVFormatter {
	return &CSVFormatter{opts: opts}
}

// Name returns the format name.
func (f *CSVFormatter) Name() string {
	return "csv"
}

// Extension returns the file extension.
func (f *CSVFormatter) Extension() string {
	return "csv"
}

// FormatTable renders the table as CSV.
func (f *CSVFormatter) FormatTable(ctx context.Context, t *table.Table, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return err
	}

	record := make([]string, len(t.Columns()))
	for i := 0; i < t.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for c, v := range t.Row(i) {
			record[c] = FormatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatReport renders one CSV row per source.
func (f *CSVFormatter) FormatReport(ctx context.Context, report *Report, w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"dive", "instrument", "lines", "signed", "records", "malformed", "implausible", "decode_errors", "rows", "issues"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, s := range report.Sources {
		row := []string{
			strconv.Itoa(s.Dive),
			string(s.Instrument),
			strconv.Itoa(s.Stats.Lines),
			strconv.Itoa(s.Stats.Signed),
			strconv.Itoa(s.Stats.Records),
			strconv.Itoa(s.Stats.Malformed),
			strconv.Itoa(s.Stats.Implausible),
			strconv.Itoa(s.Stats.DecodeErrors),
			strconv.Itoa(s.Rows),
			strconv.Itoa(len(s.Issues)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
