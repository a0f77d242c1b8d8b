// Package detector identifies which instruments wrote a log file.
package detector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/oceanlab/flowmow/pkg/instrument"
	"github.com/oceanlab/flowmow/pkg/matfile"
	"github.com/oceanlab/flowmow/pkg/parser"
)

// DefaultSampleSize is the number of lines read when no size is given.
const DefaultSampleSize = 100

// DetectionResult holds the result of analyzing a log file.
type DetectionResult struct {
	Matches      []InstrumentMatch // Instruments seen, sorted by confidence descending
	SampledLines int               // Number of lines sampled
	DecodeErrors int               // Sampled lines that were not valid UTF-8
	Notes        []string          // Hints about signed lines that never parse
}

// InstrumentMatch describes how one instrument's lines fared in the sample.
type InstrumentMatch struct {
	Kind instrument.Kind

	// Confidence is the share of sampled lines that became records.
	Confidence float64

	Signed      int // Lines carrying the instrument signature
	Records     int // Lines that became records
	Malformed   int
	Implausible int
	Errors      int // Signed, well-formed lines whose payload did not convert

	SampleLine string    // First line that became a record
	FirstTime  time.Time // Timestamp of the sample line
}

// Detector samples logs and tries every recognizer on each line.
type Detector struct {
	descs      []*instrument.Descriptor
	sampleSize int
}

// Option configures the Detector.
type Option func(*Detector)

// WithSampleSize sets the number of lines to sample (default 100).
func WithSampleSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.sampleSize = n
		}
	}
}

// New creates a Detector for every text instrument.
func New(opts ...Option) *Detector {
	d := &Detector{
		descs:      instrument.Descriptors(),
		sampleSize: DefaultSampleSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectFromFile analyzes a log or navigation file.
func (d *Detector) DetectFromFile(ctx context.Context, path string) (*DetectionResult, error) {
	// #nosec G304 - path is provided by user via CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return d.DetectFromReader(ctx, path, file)
}

// DetectFromReader analyzes a named stream. Navigation MAT-files are
// recognized by their header and decoded whole; anything else is sampled
// as text.
func (d *Detector) DetectFromReader(ctx context.Context, name string, r io.Reader) (*DetectionResult, error) {
	br := bufio.NewReader(r)
	if header, _ := br.Peek(matfile.HeaderSize); matfile.Sniff(header) {
		return detectNavigation(name, br)
	}

	src := parser.NewReaderSource(name, br)
	var lines []*parser.RawLine
	for len(lines) < d.sampleSize {
		line, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if line.Decoded && line.Content == "" {
			continue
		}
		lines = append(lines, line)
	}

	return d.detect(lines), nil
}

// DetectFromLines analyzes a slice of log lines.
func (d *Detector) DetectFromLines(lines []string) *DetectionResult {
	raw := make([]*parser.RawLine, 0, len(lines))
	for i, l := range lines {
		rl := &parser.RawLine{Content: strings.TrimSpace(l), Decoded: true, LineNum: i + 1}
		if rl.Content == "" {
			continue
		}
		raw = append(raw, rl)
	}
	return d.detect(raw)
}

func (d *Detector) detect(lines []*parser.RawLine) *DetectionResult {
	result := &DetectionResult{
		SampledLines: len(lines),
	}

	if len(lines) == 0 {
		return result
	}

	stats := make(map[instrument.Kind]*InstrumentMatch)

	for _, line := range lines {
		if !line.Decoded {
			result.DecodeErrors++
			continue
		}

		for _, desc := range d.descs {
			rec, outcome, err := desc.Recognize(line.Content, 0)
			if outcome == instrument.Unmatched && err == nil {
				continue
			}

			m := stats[desc.Kind]
			if m == nil {
				m = &InstrumentMatch{Kind: desc.Kind}
				stats[desc.Kind] = m
			}
			m.Signed++

			switch {
			case err != nil:
				m.Errors++
			case outcome == instrument.Malformed:
				m.Malformed++
			case outcome == instrument.Implausible:
				m.Implausible++
			case outcome == instrument.Accepted:
				m.Records++
				if m.SampleLine == "" {
					m.SampleLine = line.Content
					m.FirstTime = rec.Head().Timestamp
				}
			}
		}
	}

	for _, m := range stats {
		m.Confidence = float64(m.Records) / float64(len(lines))
		result.Matches = append(result.Matches, *m)
		if m.Records == 0 {
			result.Notes = append(result.Notes, fmt.Sprintf(
				"%d lines carry the %s signature but none became a record (%d malformed, %d out of range, %d unconvertible)",
				m.Signed, m.Kind, m.Malformed, m.Implausible, m.Errors))
		}
	}

	// Sort by confidence descending, then by signed lines, then by name
	sort.Slice(result.Matches, func(i, j int) bool {
		a, b := result.Matches[i], result.Matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Signed != b.Signed {
			return a.Signed > b.Signed
		}
		return a.Kind < b.Kind
	})
	sort.Strings(result.Notes)

	return result
}

func detectNavigation(name string, r io.Reader) (*DetectionResult, error) {
	samples, err := instrument.ReadNavigation(name, r, 0)
	if err != nil {
		return nil, err
	}

	m := InstrumentMatch{
		Kind:       instrument.Navigation,
		Confidence: 1,
		Records:    len(samples),
	}
	if len(samples) > 0 {
		m.FirstTime = samples[0].Timestamp
	}
	return &DetectionResult{Matches: []InstrumentMatch{m}}, nil
}

// BestMatch returns the highest confidence match, or nil if none found.
func (r *DetectionResult) BestMatch() *InstrumentMatch {
	if len(r.Matches) == 0 {
		return nil
	}
	return &r.Matches[0]
}

// HasMatch returns true if at least one instrument produced a record.
func (r *DetectionResult) HasMatch() bool {
	return len(r.Matches) > 0 && r.Matches[0].Records > 0
}
