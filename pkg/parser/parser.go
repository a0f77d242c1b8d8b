package parser

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// maxLineSize bounds a single line. Longer lines are discarded up to the
// next newline and returned undecoded.
const maxLineSize = 1024 * 1024

// ReaderSource implements LineSource over a single named stream.
// Lines that are not valid UTF-8, or longer than maxLineSize, are returned
// with Decoded set to false and empty content; the stream itself keeps going.
type ReaderSource struct {
	name    string
	rc      io.ReadCloser
	reader  *bufio.Reader
	lineNum int
}

// NewReaderSource creates a LineSource reading from r. If r is an io.Closer
// it is closed by Close.
func NewReaderSource(name string, r io.Reader) *ReaderSource {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return &ReaderSource{
		name:   name,
		rc:     rc,
		reader: bufio.NewReaderSize(rc, 64*1024),
	}
}

// Next returns the next line of the stream.
func (s *ReaderSource) Next(ctx context.Context) (*RawLine, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if s.reader == nil {
		return nil, io.EOF
	}

	b, overlong, err := s.readLine()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading %s: %w", s.name, err)
	}
	if err == io.EOF && len(b) == 0 && !overlong {
		return nil, io.EOF
	}

	s.lineNum++
	if overlong {
		return &RawLine{Source: s.name, LineNum: s.lineNum}, nil
	}
	return decodeLine(bytes.TrimSuffix(b, []byte("\n")), s.name, s.lineNum), nil
}

// readLine reads through the next newline. The bytes of a line longer than
// maxLineSize are dropped and overlong is set.
func (s *ReaderSource) readLine() (line []byte, overlong bool, err error) {
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if !overlong {
			if len(line)+len(chunk) > maxLineSize {
				overlong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err != bufio.ErrBufferFull {
			return line, overlong, err
		}
	}
}

// Close releases the underlying stream.
func (s *ReaderSource) Close() error {
	s.reader = nil
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	return err
}

// FileSource implements LineSource for reading several local files in order.
type FileSource struct {
	files []string

	current   *ReaderSource
	fileIndex int
}

// NewFileSource creates a LineSource that reads the given files one after another.
func NewFileSource(files []string) *FileSource {
	return &FileSource{
		files:     files,
		fileIndex: -1,
	}
}

// Next returns the next line across all files.
// Returns io.EOF when all files have been exhausted.
func (s *FileSource) Next(ctx context.Context) (*RawLine, error) {
	for {
		if s.current == nil {
			if err := s.openNextFile(); err != nil {
				return nil, err
			}
		}

		line, err := s.current.Next(ctx)
		if err == nil {
			return line, nil
		}
		if err != io.EOF {
			return nil, err
		}

		// Current file exhausted, try next
		if err := s.closeCurrentFile(); err != nil {
			return nil, err
		}
	}
}

// Close releases resources.
func (s *FileSource) Close() error {
	return s.closeCurrentFile()
}

func (s *FileSource) openNextFile() error {
	s.fileIndex++
	if s.fileIndex >= len(s.files) {
		return io.EOF
	}

	path := s.files[s.fileIndex]
	f, err := os.Open(path) // #nosec G304 -- user-provided paths are expected
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", path, err)
	}

	s.current = NewReaderSource(path, f)
	return nil
}

func (s *FileSource) closeCurrentFile() error {
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	return err
}

func decodeLine(b []byte, source string, lineNum int) *RawLine {
	line := &RawLine{Source: source, LineNum: lineNum}
	if !utf8.Valid(b) {
		return line
	}
	line.Decoded = true
	line.Content = strings.TrimSpace(string(b))
	return line
}
