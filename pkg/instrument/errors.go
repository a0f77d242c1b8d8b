package instrument

import (
	"errors"
	"fmt"
)

// ErrFormat marks a binary navigation file that lacks an expected structure.
var ErrFormat = errors.New("navigation format error")

// ParseError reports a line that carried an instrument's signature and passed
// its structural checks but whose payload could not be converted. It means the
// instrument's record layout no longer matches and is never skipped silently.
type ParseError struct {
	Kind   Kind
	Source string
	Line   int
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	loc := e.Source
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Source, e.Line)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: field %s: %v", e.Kind, loc, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, loc, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FormatError reports a navigation container that is missing the expected
// struct or one of its fields, or whose arrays are unusable.
type FormatError struct {
	Source string
	Field  string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Field, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFormat) match any FormatError.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }
