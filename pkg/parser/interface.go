package parser

import "context"

// LineSource provides an iterator over decoded log lines.
// Implementations must be safe for sequential access (not concurrent).
type LineSource interface {
	// Next returns the next line, including lines that failed to decode.
	// Returns io.EOF when no more lines are available.
	Next(ctx context.Context) (*RawLine, error)

	// Close releases any resources held by the source.
	Close() error
}
