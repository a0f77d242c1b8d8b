package instrument

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/oceanlab/flowmow/pkg/matfile"
	"github.com/oceanlab/flowmow/pkg/parser"
)

// NavigationVariable is the MAT-file struct holding the renavigated track.
const NavigationVariable = "rnv"

// Columns of rnv.pos.
const (
	posDepth   = 2
	posHeading = 3
	posPitch   = 4
	posRoll    = 5
)

// ReadNavigation decodes a navigation MAT-file into one sample per element of
// rnv.t. The caller owns r.
func ReadNavigation(source string, r io.Reader, dive int) ([]NavigationSample, error) {
	f, err := matfile.Decode(r)
	if err != nil {
		return nil, &FormatError{Source: source, Err: err}
	}

	rnv, ok := f.Lookup(NavigationVariable)
	if !ok {
		return nil, &FormatError{Source: source, Field: NavigationVariable, Err: errors.New("variable not found")}
	}
	if rnv.Class != matfile.ClassStruct || len(rnv.Elems) == 0 {
		return nil, &FormatError{Source: source, Field: NavigationVariable, Err: fmt.Errorf("is %s, want non-empty struct", rnv.Class)}
	}

	nav := navFields{source: source, rnv: rnv}
	t := nav.vector("t", 0)
	n := len(t)
	lat := nav.vector("lat", n)
	lon := nav.vector("lon", n)
	alt := nav.vector("alt", n)
	depth := nav.column(posDepth, n)
	heading := nav.column(posHeading, n)
	pitch := nav.column(posPitch, n)
	roll := nav.column(posRoll, n)
	if nav.err != nil {
		return nil, nav.err
	}

	samples := make([]NavigationSample, n)
	for i, epoch := range t {
		if math.IsNaN(epoch) || math.IsInf(epoch, 0) {
			return nil, &FormatError{Source: source, Field: "t", Err: fmt.Errorf("row %d: time %g is not finite", i, epoch)}
		}
		samples[i] = NavigationSample{
			Header: Header{
				Timestamp:  parser.FromEpoch(epoch),
				Epoch:      epoch,
				DiveNumber: dive,
			},
			Lat:     lat[i],
			Lon:     lon[i],
			Depth:   depth[i],
			Heading: heading[i],
			Pitch:   pitch[i],
			Roll:    roll[i],
			Height:  alt[i],
		}
	}
	return samples, nil
}

// navFields reads rnv fields, remembering the first failure.
type navFields struct {
	source string
	rnv    *matfile.Array
	err    error
}

func (n *navFields) fail(field string, err error) {
	if n.err == nil {
		n.err = &FormatError{Source: n.source, Field: NavigationVariable + "." + field, Err: err}
	}
}

func (n *navFields) vector(name string, want int) []float64 {
	if n.err != nil {
		return nil
	}
	a, err := n.rnv.Field(name)
	if err != nil {
		n.fail(name, err)
		return nil
	}
	vals, err := a.Float64s()
	if err != nil {
		n.fail(name, err)
		return nil
	}
	if len(vals) < want {
		n.fail(name, fmt.Errorf("has %d values, want %d", len(vals), want))
		return nil
	}
	return vals
}

func (n *navFields) column(j, want int) []float64 {
	if n.err != nil {
		return nil
	}
	field := fmt.Sprintf("pos[:,%d]", j)
	a, err := n.rnv.Field("pos")
	if err != nil {
		n.fail("pos", err)
		return nil
	}
	col, err := a.Column(j)
	if err != nil {
		n.fail(field, err)
		return nil
	}
	if len(col) < want {
		n.fail(field, fmt.Errorf("has %d rows, want %d", len(col), want))
		return nil
	}
	return col
}
