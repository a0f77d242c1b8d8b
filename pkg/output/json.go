package output

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"math"

	"github.com/oceanlab/flowmow/pkg/table"
)

// JSONFormatter formats tables and reports as JSON.
type JSONFormatter struct {
	opts FormatOptions
}

// NewJSONFormatter creates a new JSON formatter with the given options.
func NewJSONFormatter(opts FormatOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

// Name returns the format name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Extension returns the file extension.
func (f *JSONFormatter) Extension() string {
	return "json"
}

// FormatTable renders the table as an array of row objects whose keys keep
// column order.
func (f *JSONFormatter) FormatTable(ctx context.Context, t *table.Table, w io.Writer) error {
	bw := bufio.NewWriter(w)
	cols := t.Columns()

	bw.WriteString("[")
	for i := 0; i < t.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			bw.WriteString(",")
		}
		row, err := MarshalRow(cols, t.Row(i))
		if err != nil {
			return err
		}
		bw.WriteString("\n  ")
		bw.Write(row)
	}
	if t.Len() > 0 {
		bw.WriteString("\n")
	}
	bw.WriteString("]\n")

	return bw.Flush()
}

// MarshalRow encodes one row as a JSON object with keys in column order.
// NaN and infinite floats are written as null.
func MarshalRow(cols []string, row []any) ([]byte, error) {
	buf := []byte{'{'}
	for c, name := range cols {
		if c > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := marshalValue(row[c])
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

func marshalValue(v any) ([]byte, error) {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// FormatReport renders the report as JSON.
func (f *JSONFormatter) FormatReport(ctx context.Context, report *Report, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if f.opts.Quiet {
		// Quiet mode: just summary
		return encoder.Encode(report.Summary)
	}

	return encoder.Encode(report)
}
