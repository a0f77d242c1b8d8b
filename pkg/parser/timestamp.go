package parser

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Default timestamp format of instrument log lines: "YYYY/MM/DD HH:MM:SS.ffffff"
// in tokens 2 and 3 of the line.
const (
	DefaultTimestampPattern = `^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}\.\d{1,6}$`
	DefaultTimestampLayout  = "2006/01/02 15:04:05"
)

// ErrNoTimestamp is returned when a line has no usable timestamp tokens.
var ErrNoTimestamp = errors.New("timestamp not found")

// Timestamp is a calendar time paired with its Unix epoch in seconds.
type Timestamp struct {
	Time  time.Time
	Epoch float64
}

// TimestampExtractor parses the date and time tokens of a log line.
type TimestampExtractor struct {
	pattern *regexp.Regexp
	layout  string
}

// NewTimestampExtractor creates a new timestamp extractor.
func NewTimestampExtractor(pattern *regexp.Regexp, layout string) *TimestampExtractor {
	return &TimestampExtractor{
		pattern: pattern,
		layout:  layout,
	}
}

var defaultExtractor = NewTimestampExtractor(regexp.MustCompile(DefaultTimestampPattern), DefaultTimestampLayout)

// DefaultExtractor returns the extractor for the standard instrument log format.
func DefaultExtractor() *TimestampExtractor {
	return defaultExtractor
}

// Extract parses the timestamp of a stripped log line.
func (e *TimestampExtractor) Extract(line string) (Timestamp, error) {
	return e.ExtractFields(SplitFields(line))
}

// ExtractFields parses the timestamp from the 2nd and 3rd tokens of a line.
// The source clock is UTC, so no zone conversion is applied.
func (e *TimestampExtractor) ExtractFields(fields []string) (Timestamp, error) {
	if len(fields) < 3 {
		return Timestamp{}, fmt.Errorf("%w: %d fields", ErrNoTimestamp, len(fields))
	}

	tsStr := strings.Join(fields[1:3], " ")
	if !e.pattern.MatchString(tsStr) {
		return Timestamp{}, fmt.Errorf("%w: %q does not match %s", ErrNoTimestamp, tsStr, e.pattern)
	}

	ts, err := time.ParseInLocation(e.layout, tsStr, time.UTC)
	if err != nil {
		return Timestamp{}, fmt.Errorf("parsing timestamp %q: %w", tsStr, err)
	}

	return Timestamp{Time: ts, Epoch: EpochOf(ts)}, nil
}

// EpochOf returns t as floating-point seconds since the Unix epoch,
// at microsecond resolution.
func EpochOf(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// FromEpoch converts epoch seconds to a UTC time rounded to the microsecond.
func FromEpoch(epoch float64) time.Time {
	sec, frac := math.Modf(epoch)
	usec := math.RoundToEven(frac * 1e6)
	return time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)).UTC()
}
