package instrument

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/oceanlab/flowmow/pkg/parser"
)

// Outcome classifies how a line fared against a Descriptor.
type Outcome int

const (
	// Unmatched lines do not carry the instrument's signature.
	Unmatched Outcome = iota
	// Malformed lines carry the signature but fail the length or field-count
	// rule; they are truncated or garbled transmissions.
	Malformed
	// Implausible lines parse but fall outside the sensor's physical range.
	Implausible
	// Accepted lines produced a record.
	Accepted
)

func (o Outcome) String() string {
	switch o {
	case Unmatched:
		return "unmatched"
	case Malformed:
		return "malformed"
	case Implausible:
		return "implausible"
	case Accepted:
		return "accepted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Rule is the structural check a signed line must pass before extraction.
// Zero values are not checked.
type Rule struct {
	Length     int    // exact length in characters
	FieldCount int    // exact single-space field count
	Contains   string // substring that must appear anywhere in the line
}

func (r Rule) match(line string, fields []string) bool {
	if r.Contains != "" && !strings.Contains(line, r.Contains) {
		return false
	}
	if r.Length > 0 && utf8.RuneCountInString(line) != r.Length {
		return false
	}
	if r.FieldCount > 0 && len(fields) != r.FieldCount {
		return false
	}
	return true
}

type extractFunc func(fields []string, h Header) (Record, error)

// Descriptor defines one text instrument's line grammar.
type Descriptor struct {
	Kind Kind

	// Signature must appear within the first Window characters of a line.
	Signature string
	Window    int

	Rule Rule

	extract   extractFunc
	plausible func(Record) bool
}

var descriptors = map[Kind]*Descriptor{
	Paros:   parosDescriptor,
	Ustrain: ustrainDescriptor,
	SBE3:    sbe3Descriptor,
	Nortek:  nortekDescriptor,
}

// Lookup returns the descriptor of a text instrument.
func Lookup(k Kind) (*Descriptor, bool) {
	d, ok := descriptors[k]
	return d, ok
}

// Descriptors returns the descriptors of every text instrument.
func Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(descriptors))
	for _, k := range allKinds {
		if d, ok := descriptors[k]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Signed reports whether the line carries the instrument's signature.
func (d *Descriptor) Signed(line string) bool {
	return strings.Contains(head(line, d.Window), d.Signature)
}

// Recognize checks one stripped line and extracts its record.
// A non-nil error is always a *ParseError without source position; Scan
// fills that in.
func (d *Descriptor) Recognize(line string, dive int) (Record, Outcome, error) {
	if !d.Signed(line) {
		return nil, Unmatched, nil
	}

	fields := parser.SplitFields(line)
	if !d.Rule.match(line, fields) {
		return nil, Malformed, nil
	}

	ts, err := parser.DefaultExtractor().ExtractFields(fields)
	if err != nil {
		return nil, Malformed, &ParseError{Kind: d.Kind, Field: "timestamp", Err: err}
	}

	rec, err := d.extract(fields, Header{Timestamp: ts.Time, Epoch: ts.Epoch, DiveNumber: dive})
	if err != nil {
		pe := &ParseError{Kind: d.Kind, Err: err}
		var fe *fieldError
		if errors.As(err, &fe) {
			pe.Field = fe.field
			pe.Err = fe.err
		}
		return nil, Malformed, pe
	}

	if d.plausible != nil && !d.plausible(rec) {
		return nil, Implausible, nil
	}
	return rec, Accepted, nil
}

// head returns the first n characters of s.
func head(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string { return e.field + ": " + e.err.Error() }

func token(fields []string, i int, name string) (string, error) {
	if i >= len(fields) {
		return "", &fieldError{field: name, err: fmt.Errorf("token %d missing (line has %d)", i, len(fields))}
	}
	return fields[i], nil
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &fieldError{field: name, err: err}
	}
	return v, nil
}

func parseInt(name, s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &fieldError{field: name, err: err}
	}
	return v, nil
}

func parseFloats(names []string, tokens []string) ([]float64, error) {
	vals := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := parseFloat(names[i], tok)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}
