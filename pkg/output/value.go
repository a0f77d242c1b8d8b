package output

import (
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout is how timestamps are written in csv and text output.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// FormatValue renders a table cell as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format(TimestampLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// New returns the formatter with the given name.
func New(name string, opts FormatOptions) (Formatter, error) {
	switch name {
	case "csv":
		return NewCSVFormatter(opts), nil
	case "json":
		return NewJSONFormatter(opts), nil
	case "text":
		return NewTextFormatter(opts), nil
	default:
		return nil, fmt.Errorf("unknown format %q (must be csv, json, or text)", name)
	}
}
