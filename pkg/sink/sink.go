// Package sink delivers assembled instrument tables to their destinations.
package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oceanlab/flowmow/pkg/output"
	"github.com/oceanlab/flowmow/pkg/table"
)

// Sink receives the tables of a run.
type Sink interface {
	// Write delivers one instrument table of a dive and returns where it went.
	Write(ctx context.Context, dive int, t *table.Table) (string, error)

	// Name identifies the sink in logs and metrics.
	Name() string

	Close() error
}

// FileName returns the name a table is stored under.
func FileName(dive int, t *table.Table, ext string) string {
	return fmt.Sprintf("dive%d_%s.%s", dive, t.Name, ext)
}

// DirSink writes each table to its own file in a directory.
type DirSink struct {
	dir       string
	formatter output.Formatter
}

// NewDirSink creates a sink writing tables to dir with the given formatter.
func NewDirSink(dir string, formatter output.Formatter) *DirSink {
	return &DirSink{dir: dir, formatter: formatter}
}

// Name returns the sink name.
func (s *DirSink) Name() string {
	return "dir"
}

// Write renders the table into dir. The file only appears once complete.
func (s *DirSink) Write(ctx context.Context, dive int, t *table.Table) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(s.dir, FileName(dive, t, s.formatter.Extension()))
	tmp, err := os.CreateTemp(s.dir, ".flowmow-*")
	if err != nil {
		return "", fmt.Errorf("creating output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := s.formatter.FormatTable(ctx, t, bw); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// Close is a no-op.
func (s *DirSink) Close() error {
	return nil
}

// WriterSink renders tables to a stream such as stdout.
type WriterSink struct {
	w         io.Writer
	formatter output.Formatter
}

// NewWriterSink creates a sink rendering every table to w.
func NewWriterSink(w io.Writer, formatter output.Formatter) *WriterSink {
	return &WriterSink{w: w, formatter: formatter}
}

// Name returns the sink name.
func (s *WriterSink) Name() string {
	return "stdout"
}

// Write renders the table to the stream.
func (s *WriterSink) Write(ctx context.Context, _ int, t *table.Table) (string, error) {
	if err := s.formatter.FormatTable(ctx, t, s.w); err != nil {
		return "", fmt.Errorf("writing %s table: %w", t.Name, err)
	}
	return "-", nil
}

// Close is a no-op.
func (s *WriterSink) Close() error {
	return nil
}
