package instrument

import "time"

// Header holds the fields every record carries.
type Header struct {
	Timestamp  time.Time
	Epoch      float64
	DiveNumber int
}

// Record is one extracted instrument sample. The set of implementations is
// closed: ParosRecord, UstrainRecord, SBE3Record, NortekRecord and
// NavigationSample.
type Record interface {
	Kind() Kind
	Head() Header
	// Values returns the payload in the order of PayloadColumns(Kind()).
	Values() []any
}

// HeaderColumns are the leading columns of every instrument table.
var HeaderColumns = []string{"timestamp", "epoch", "dive_number"}

var payloadColumns = map[Kind][]string{
	Navigation: {"lat", "lon", "depth", "heading", "pitch", "roll", "height"},
	Paros:      {"tau", "eta"},
	Ustrain: {
		"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n",
		"o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z", "aa", "bb",
	},
	SBE3:   {"counts_0", "counts_1"},
	Nortek: {"v0", "v1", "v2", "c0", "c1", "c2", "a0", "a1", "a2"},
}

// PayloadColumns returns the instrument-specific column names.
func PayloadColumns(k Kind) []string {
	cols := payloadColumns[k]
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// Columns returns the full, stable column list of an instrument table.
func Columns(k Kind) []string {
	cols := make([]string, 0, len(HeaderColumns)+len(payloadColumns[k]))
	cols = append(cols, HeaderColumns...)
	return append(cols, payloadColumns[k]...)
}

// Row flattens a record into values aligned with Columns(r.Kind()).
func Row(r Record) []any {
	h := r.Head()
	row := []any{h.Timestamp, h.Epoch, h.DiveNumber}
	return append(row, r.Values()...)
}

// ParosRecord holds the quartz transducer periods in microseconds.
type ParosRecord struct {
	Header
	Tau float64 // pressure signal period
	Eta float64 // temperature signal period
}

func (r ParosRecord) Kind() Kind    { return Paros }
func (r ParosRecord) Head() Header  { return r.Header }
func (r ParosRecord) Values() []any { return []any{r.Tau, r.Eta} }

// UstrainStrainChannels is the number of strain values in one MSA3 line.
const UstrainStrainChannels = 28

// UstrainRecord holds one microstrain sample.
type UstrainRecord struct {
	Header
	Strain [UstrainStrainChannels]float64
}

func (r UstrainRecord) Kind() Kind   { return Ustrain }
func (r UstrainRecord) Head() Header { return r.Header }
func (r UstrainRecord) Values() []any {
	vals := make([]any, len(r.Strain))
	for i, v := range r.Strain {
		vals[i] = v
	}
	return vals
}

// SBE3Record holds the raw frequency counts of the two thermometer channels.
type SBE3Record struct {
	Header
	Counts0 int64
	Counts1 int64
}

func (r SBE3Record) Kind() Kind    { return SBE3 }
func (r SBE3Record) Head() Header  { return r.Header }
func (r SBE3Record) Values() []any { return []any{r.Counts0, r.Counts1} }

// NortekRecord holds one current-meter velocity sample with its beam
// correlations and amplitudes.
type NortekRecord struct {
	Header
	Velocity    [3]float64
	Correlation [3]float64
	Amplitude   [3]float64
}

func (r NortekRecord) Kind() Kind   { return Nortek }
func (r NortekRecord) Head() Header { return r.Header }
func (r NortekRecord) Values() []any {
	return []any{
		r.Velocity[0], r.Velocity[1], r.Velocity[2],
		r.Correlation[0], r.Correlation[1], r.Correlation[2],
		r.Amplitude[0], r.Amplitude[1], r.Amplitude[2],
	}
}

// NavigationSample is one row of the vehicle's renavigated track.
type NavigationSample struct {
	Header
	Lat     float64
	Lon     float64
	Depth   float64
	Heading float64
	Pitch   float64
	Roll    float64
	Height  float64
}

func (r NavigationSample) Kind() Kind   { return Navigation }
func (r NavigationSample) Head() Header { return r.Header }
func (r NavigationSample) Values() []any {
	return []any{r.Lat, r.Lon, r.Depth, r.Heading, r.Pitch, r.Roll, r.Height}
}
