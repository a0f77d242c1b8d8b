// Package table holds instrument records as labeled, equal-length columns.
package table

import (
	"fmt"
	"math"

	"github.com/oceanlab/flowmow/pkg/instrument"
)

// Column is one named column.
type Column struct {
	Name   string
	Values []any
}

// Table is an ordered set of equal-length columns.
type Table struct {
	Name string

	cols   []Column
	byName map[string]int
	rows   int
}

// New builds a table from columns that must share one length and have
// distinct names.
func New(name string, cols ...Column) (*Table, error) {
	t := &Table{Name: name, byName: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := t.AddColumn(c.Name, c.Values); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Assemble lays out records of one instrument in column order. Records keep
// their order.
func Assemble(kind instrument.Kind, records []instrument.Record) (*Table, error) {
	names := instrument.Columns(kind)
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Values: make([]any, len(records))}
	}

	for r, rec := range records {
		if rec.Kind() != kind {
			return nil, fmt.Errorf("record %d is %s, want %s", r, rec.Kind(), kind)
		}
		for c, v := range instrument.Row(rec) {
			cols[c].Values[r] = v
		}
	}

	return New(string(kind), cols...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]any, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.cols[i].Values, true
}

// Float64s returns a numeric column widened to float64.
func (t *Table) Float64s(name string) ([]float64, error) {
	vals, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("table %s has no column %q", t.Name, name)
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("column %q row %d: %T is not numeric", name, i, v)
		}
		out[i] = f
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return math.NaN(), false
	}
}

// AddColumn appends a column. Its length must match the table's.
func (t *Table) AddColumn(name string, values []any) error {
	if _, dup := t.byName[name]; dup {
		return fmt.Errorf("table %s already has column %q", t.Name, name)
	}
	if len(t.cols) > 0 && len(values) != t.rows {
		return fmt.Errorf("column %q has %d values, table %s has %d rows", name, len(values), t.Name, t.rows)
	}
	if len(t.cols) == 0 {
		t.rows = len(values)
	}
	t.byName[name] = len(t.cols)
	t.cols = append(t.cols, Column{Name: name, Values: values})
	return nil
}

// AddFloat64Column appends a float64 column.
func (t *Table) AddFloat64Column(name string, values []float64) error {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return t.AddColumn(name, vals)
}

// Row returns row i in column order.
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.cols))
	for c, col := range t.cols {
		row[c] = col.Values[i]
	}
	return row
}

// RowMap returns row i keyed by column name.
func (t *Table) RowMap(i int) map[string]any {
	row := make(map[string]any, len(t.cols))
	for _, col := range t.cols {
		row[col.Name] = col.Values[i]
	}
	return row
}

// Select returns a new table holding the given rows, in the given order.
func (t *Table) Select(rows []int) *Table {
	out := &Table{Name: t.Name, byName: make(map[string]int, len(t.cols)), rows: len(rows)}
	for c, col := range t.cols {
		vals := make([]any, len(rows))
		for i, r := range rows {
			vals[i] = col.Values[r]
		}
		out.byName[col.Name] = c
		out.cols = append(out.cols, Column{Name: col.Name, Values: vals})
	}
	return out
}
