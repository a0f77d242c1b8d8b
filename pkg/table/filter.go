package table

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Filter is a compiled boolean expression over the columns of a row,
// for example "counts_0 > 600000 && dive_number == 3".
type Filter struct {
	src     string
	program *vm.Program
}

// CompileFilter compiles where against the column types of t. An empty t
// only gets a syntax check.
func CompileFilter(where string, t *Table) (*Filter, error) {
	opts := []expr.Option{expr.AsBool()}
	if t != nil && t.Len() > 0 {
		opts = append(opts, expr.Env(t.RowMap(0)))
	}

	program, err := expr.Compile(where, opts...)
	if err != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", where, err)
	}
	return &Filter{src: where, program: program}, nil
}

// Match evaluates the filter against one row.
func (f *Filter) Match(row map[string]any) (bool, error) {
	out, err := expr.Run(f.program, row)
	if err != nil {
		return false, fmt.Errorf("evaluating filter %q: %w", f.src, err)
	}
	matched, ok := out.(bool)
	return ok && matched, nil
}

// Where returns the rows of t matching the expression. An empty expression
// returns t unchanged.
func (t *Table) Where(where string) (*Table, error) {
	if where == "" {
		return t, nil
	}

	f, err := CompileFilter(where, t)
	if err != nil {
		return nil, err
	}

	var keep []int
	for i := 0; i < t.Len(); i++ {
		ok, err := f.Match(t.RowMap(i))
		if err != nil {
			return nil, err
		}
		if ok {
			keep = append(keep, i)
		}
	}
	return t.Select(keep), nil
}
