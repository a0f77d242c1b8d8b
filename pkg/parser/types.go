// Package parser reads instrument log streams line by line and extracts the
// timestamp shared by every record format.
package parser

import (
	"strings"
	"unicode/utf8"
)

// RawLine is a single decoded log line.
type RawLine struct {
	// Content is the line with surrounding whitespace removed.
	// Empty when the line was not valid UTF-8.
	Content string

	// Decoded is false when the raw bytes were not valid UTF-8.
	Decoded bool

	// Source is the file or blob name this line came from.
	Source string

	// LineNum is the 1-based line number in the source.
	LineNum int
}

// Len returns the line length in characters.
func (l *RawLine) Len() int {
	return utf8.RuneCountInString(l.Content)
}

// Fields returns the single-space separated tokens of the line.
func (l *RawLine) Fields() []string {
	return SplitFields(l.Content)
}

// SplitFields splits on every single space. Runs of spaces produce empty
// tokens, so token positions stay fixed for the column layouts.
func SplitFields(s string) []string {
	return strings.Split(s, " ")
}
