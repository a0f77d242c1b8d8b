package instrument

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oceanlab/flowmow/pkg/parser"
)

// Stats counts what happened to the lines of one scan.
type Stats struct {
	Lines        int `json:"lines"`
	DecodeErrors int `json:"decode_errors"`
	Signed       int `json:"signed"`
	Malformed    int `json:"malformed"`
	Implausible  int `json:"implausible"`
	Records      int `json:"records"`
}

// Dropped returns the number of signed lines that produced no record.
func (s Stats) Dropped() int {
	return s.Malformed + s.Implausible
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Lines += o.Lines
	s.DecodeErrors += o.DecodeErrors
	s.Signed += o.Signed
	s.Malformed += o.Malformed
	s.Implausible += o.Implausible
	s.Records += o.Records
}

// Result holds the records of one instrument in source order.
type Result struct {
	Kind    Kind
	Records []Record
	Stats   Stats
}

// Scan reads src to the end and returns the records recognized by d.
// The caller owns src and must close it.
func Scan(ctx context.Context, src parser.LineSource, d *Descriptor, dive int) (*Result, error) {
	results, err := ScanAll(ctx, src, []*Descriptor{d}, dive)
	if err != nil {
		return nil, err
	}
	return results[d.Kind], nil
}

// ScanReader scans a single named stream and always closes it.
func ScanReader(ctx context.Context, name string, r io.Reader, d *Descriptor, dive int) (*Result, error) {
	src := parser.NewReaderSource(name, r)
	defer src.Close()

	return Scan(ctx, src, d, dive)
}

// ScanAll feeds every line of src to each descriptor in a single pass, for
// logs where several instruments are interleaved. Records keep the order in
// which their lines appear.
func ScanAll(ctx context.Context, src parser.LineSource, descs []*Descriptor, dive int) (map[Kind]*Result, error) {
	results := make(map[Kind]*Result, len(descs))
	for _, d := range descs {
		if _, dup := results[d.Kind]; dup {
			return nil, fmt.Errorf("instrument %s given more than once", d.Kind)
		}
		results[d.Kind] = &Result{Kind: d.Kind}
	}

	for {
		line, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		for _, d := range descs {
			res := results[d.Kind]
			if err := res.feed(d, line, dive); err != nil {
				return nil, err
			}
		}
	}

	return results, nil
}

func (res *Result) feed(d *Descriptor, line *parser.RawLine, dive int) error {
	res.Stats.Lines++
	if !line.Decoded {
		res.Stats.DecodeErrors++
		return nil
	}

	rec, outcome, err := d.Recognize(line.Content, dive)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Source = line.Source
			pe.Line = line.LineNum
		}
		return err
	}

	switch outcome {
	case Unmatched:
		return nil
	case Malformed:
		res.Stats.Malformed++
	case Implausible:
		res.Stats.Implausible++
	case Accepted:
		res.Stats.Records++
		res.Records = append(res.Records, rec)
	}
	res.Stats.Signed++
	return nil
}
