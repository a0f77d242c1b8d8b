package parser

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readAll(t *testing.T, source LineSource) []*RawLine {
	t.Helper()
	ctx := context.Background()
	var lines []*RawLine
	for {
		line, err := source.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestReaderSource_Next(t *testing.T) {
	content := "RAW 2020/06/15 12:00:00.500000 P2=1,2\r\n  SBE3 padded  \n\n"
	source := NewReaderSource("test.dat", strings.NewReader(content))
	defer source.Close()

	lines := readAll(t, source)
	if len(lines) != 3 {
		t.Fatalf("Got %d lines, want 3", len(lines))
	}

	if lines[0].Content != "RAW 2020/06/15 12:00:00.500000 P2=1,2" {
		t.Errorf("Content = %q, trailing CR should be stripped", lines[0].Content)
	}
	if lines[1].Content != "SBE3 padded" {
		t.Errorf("Content = %q, want surrounding whitespace stripped", lines[1].Content)
	}
	if lines[2].Content != "" || !lines[2].Decoded {
		t.Errorf("blank line = %+v, want empty decoded line", lines[2])
	}
	if lines[1].LineNum != 2 || lines[1].Source != "test.dat" {
		t.Errorf("line metadata = %s:%d, want test.dat:2", lines[1].Source, lines[1].LineNum)
	}
}

func TestReaderSource_InvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("VVD first\n")
	buf.Write([]byte{0xff, 0xfe, 'V', 'V', 'D', '\n'})
	buf.WriteString("VVD third\n")

	source := NewReaderSource("adv.dat", &buf)
	defer source.Close()

	lines := readAll(t, source)
	if len(lines) != 3 {
		t.Fatalf("Got %d lines, want 3 (undecodable line must not stop the stream)", len(lines))
	}
	if lines[1].Decoded {
		t.Error("line 2 should not be decoded")
	}
	if lines[1].Content != "" {
		t.Errorf("undecodable line content = %q, want empty", lines[1].Content)
	}
	if lines[2].Content != "VVD third" {
		t.Errorf("line 3 = %q", lines[2].Content)
	}
}

func TestReaderSource_OverlongLine(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("SBE3 first\n")
	buf.Write(bytes.Repeat([]byte{0xff}, 2*maxLineSize))
	buf.WriteString("\n")
	buf.WriteString("SBE3 third\n")
	buf.WriteString(strings.Repeat("x", maxLineSize+1))

	source := NewReaderSource("sbe3.dat", &buf)
	defer source.Close()

	lines := readAll(t, source)
	if len(lines) != 4 {
		t.Fatalf("Got %d lines, want 4 (overlong lines must not stop the stream)", len(lines))
	}
	if lines[1].Decoded || lines[1].Content != "" {
		t.Errorf("overlong line = %+v, want undecoded and empty", lines[1])
	}
	if lines[2].Content != "SBE3 third" || lines[2].LineNum != 3 {
		t.Errorf("line after overlong = %q at %d, want \"SBE3 third\" at 3", lines[2].Content, lines[2].LineNum)
	}
	if lines[3].Decoded {
		t.Error("unterminated overlong last line should not be decoded")
	}
}

func TestReaderSource_LongLineWithinLimit(t *testing.T) {
	long := strings.Repeat("a", 200*1024)
	source := NewReaderSource("long.dat", strings.NewReader(long+"\nend"))
	defer source.Close()

	lines := readAll(t, source)
	if len(lines) != 2 {
		t.Fatalf("Got %d lines, want 2", len(lines))
	}
	if !lines[0].Decoded || len(lines[0].Content) != len(long) {
		t.Errorf("long line decoded=%v len=%d, want %d", lines[0].Decoded, len(lines[0].Content), len(long))
	}
	if lines[1].Content != "end" {
		t.Errorf("last line = %q, want end", lines[1].Content)
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestReaderSource_ClosesUnderlyingReader(t *testing.T) {
	rc := &closeTracker{Reader: strings.NewReader("x\n")}
	source := NewReaderSource("blob", rc)
	if err := source.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !rc.closed {
		t.Error("Close() did not close the underlying reader")
	}
	if _, err := source.Next(context.Background()); err != io.EOF {
		t.Errorf("Next() after Close = %v, want io.EOF", err)
	}
}

func TestRawLine_LenAndFields(t *testing.T) {
	line := &RawLine{Content: "MSA3 a  b"}
	if line.Len() != 9 {
		t.Errorf("Len() = %d, want 9", line.Len())
	}
	fields := line.Fields()
	if len(fields) != 4 || fields[2] != "" {
		t.Errorf("Fields() = %q, want single-space split with empty token", fields)
	}
}

func TestFileSource_MultipleFiles(t *testing.T) {
	dir := t.TempDir()

	files := []struct {
		name    string
		content string
	}{
		{"a.dat", "RAW line A\n"},
		{"b.dat", "RAW line B\nRAW line B2\n"},
	}

	var paths []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}

	source := NewFileSource(paths)
	defer source.Close()

	lines := readAll(t, source)
	if len(lines) != 3 {
		t.Fatalf("Got %d lines, want 3", len(lines))
	}
	if lines[2].Source != paths[1] || lines[2].LineNum != 2 {
		t.Errorf("line numbering should restart per file, got %s:%d", lines[2].Source, lines[2].LineNum)
	}
}

func TestFileSource_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "empty.dat")
	if err := os.WriteFile(logFile, []byte(""), 0644); err != nil {
		t.Fatal(err)
	}

	source := NewFileSource([]string{logFile})
	defer source.Close()

	_, err := source.Next(context.Background())
	if err != io.EOF {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

func TestFileSource_FileNotFound(t *testing.T) {
	source := NewFileSource([]string{"/nonexistent/file.dat"})
	defer source.Close()

	_, err := source.Next(context.Background())
	if err == nil {
		t.Error("Next() expected error for missing file")
	}
}

func TestFileSource_ContextCancellation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.dat")
	if err := os.WriteFile(logFile, []byte("RAW line\n"), 0644); err != nil {
		t.Fatal(err)
	}

	source := NewFileSource([]string{logFile})
	defer source.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := source.Next(ctx)
	if err != context.Canceled {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestFileSource_Close(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.dat")
	if err := os.WriteFile(logFile, []byte("RAW line\n"), 0644); err != nil {
		t.Fatal(err)
	}

	source := NewFileSource([]string{logFile})

	// Read one line to open the file
	if _, err := source.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	if err := source.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
