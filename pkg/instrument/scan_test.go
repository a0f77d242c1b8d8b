package instrument

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlab/flowmow/pkg/parser"
)

func mixedLog() string {
	return strings.Join([]string{
		"  " + parosLine + "  ",
		sbe3Line(600000, 600000),
		"VVD short",
		parosLine[:50],
		ustrainLine(28),
		"\xff\xfe not utf-8",
		sbe3Line(400000, 600000),
		parosLine,
		nortekLine(18),
		"",
	}, "\n")
}

func TestScan(t *testing.T) {
	d, _ := Lookup(Paros)
	src := parser.NewReaderSource("mixed.dat", strings.NewReader(mixedLog()))
	defer src.Close()

	res, err := Scan(context.Background(), src, d, 3)
	require.NoError(t, err)

	assert.Equal(t, Paros, res.Kind)
	require.Len(t, res.Records, 2)
	assert.Equal(t, Stats{Lines: 9, DecodeErrors: 1, Signed: 3, Malformed: 1, Records: 2}, res.Stats)
	assert.Equal(t, 1, res.Stats.Dropped())
	for _, r := range res.Records {
		assert.Equal(t, 3, r.Head().DiveNumber)
	}
}

func TestScan_RecoversFromOverlongGarbage(t *testing.T) {
	d, _ := Lookup(SBE3)
	log := sbe3Line(600000, 600000) + "\n" +
		strings.Repeat("\xff", 2<<20) + "\n" +
		sbe3Line(610000, 600000) + "\n"

	res, err := ScanReader(context.Background(), "sbe3.dat", strings.NewReader(log), d, 7)
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, Stats{Lines: 3, DecodeErrors: 1, Signed: 2, Records: 2}, res.Stats)
}

func TestScanAll_Interleaved(t *testing.T) {
	src := parser.NewReaderSource("mixed.dat", strings.NewReader(mixedLog()))
	defer src.Close()

	results, err := ScanAll(context.Background(), src, Descriptors(), 1)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Len(t, results[Paros].Records, 2)
	assert.Len(t, results[Ustrain].Records, 1)
	assert.Len(t, results[Nortek].Records, 1)
	assert.Equal(t, 1, results[Nortek].Stats.Malformed)

	sbe3 := results[SBE3]
	assert.Len(t, sbe3.Records, 1)
	assert.Equal(t, 1, sbe3.Stats.Implausible)
	assert.Equal(t, 9, sbe3.Stats.Lines)
}

func TestScanAll_DuplicateDescriptor(t *testing.T) {
	d, _ := Lookup(SBE3)
	src := parser.NewReaderSource("x", strings.NewReader(""))

	_, err := ScanAll(context.Background(), src, []*Descriptor{d, d}, 1)
	assert.Error(t, err)
}

func TestScan_ParseErrorCarriesPosition(t *testing.T) {
	d, _ := Lookup(SBE3)
	log := sbe3Line(600000, 600000) + "\n" +
		"\n" +
		strings.Replace(sbe3Line(600000, 600000), "T0 600000", "T0 60000x", 1) + "\n" +
		sbe3Line(700000, 600000) + "\n"
	src := parser.NewReaderSource("dive4_sbe3.dat", strings.NewReader(log))
	defer src.Close()

	res, err := Scan(context.Background(), src, d, 4)
	require.Error(t, err)
	assert.Nil(t, res)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "dive4_sbe3.dat", pe.Source)
	assert.Equal(t, 3, pe.Line)
	assert.Equal(t, "counts_0", pe.Field)
	assert.Contains(t, err.Error(), "dive4_sbe3.dat:3")
}

func TestScan_ContextCancelled(t *testing.T) {
	d, _ := Lookup(Paros)
	src := parser.NewReaderSource("x", strings.NewReader(mixedLog()))
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Scan(ctx, src, d, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

type trackingReader struct {
	io.Reader
	closed bool
}

func (r *trackingReader) Close() error {
	r.closed = true
	return nil
}

func TestScanReader_ClosesStream(t *testing.T) {
	d, _ := Lookup(Paros)

	ok := &trackingReader{Reader: strings.NewReader(parosLine + "\n")}
	res, err := ScanReader(context.Background(), "ok", ok, d, 1)
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.True(t, ok.closed)

	bad := &trackingReader{Reader: strings.NewReader(strings.Replace(parosLine, "5.812345", "5.8123y5", 1))}
	_, err = ScanReader(context.Background(), "bad", bad, d, 1)
	require.Error(t, err)
	assert.True(t, bad.closed, "stream must be released on a parse error")
}

func TestStats_Add(t *testing.T) {
	s := Stats{Lines: 1, Malformed: 2}
	s.Add(Stats{Lines: 3, Implausible: 1, Records: 4, Signed: 7, DecodeErrors: 1})
	assert.Equal(t, Stats{Lines: 4, DecodeErrors: 1, Signed: 7, Malformed: 2, Implausible: 1, Records: 4}, s)
	assert.Equal(t, 3, s.Dropped())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "implausible", Implausible.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
