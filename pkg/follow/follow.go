// Package follow recognizes instrument records in a log as it grows.
package follow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/nxadm/tail"
	"go.uber.org/zap"

	"github.com/oceanlab/flowmow/pkg/instrument"
)

// Options configures a Follower.
type Options struct {
	// Dive is stamped on every record.
	Dive int

	// FromStart reads the existing contents first instead of only new lines.
	FromStart bool

	// Poll watches the file by polling instead of inotify.
	Poll bool
}

// Follower tails one file and feeds each new line to a set of recognizers.
type Follower struct {
	path   string
	descs  []*instrument.Descriptor
	opts   Options
	logger *zap.SugaredLogger
}

// New creates a follower for path. With no descriptors every text
// instrument is recognized.
func New(path string, descs []*instrument.Descriptor, opts Options, logger *zap.SugaredLogger) *Follower {
	if len(descs) == 0 {
		descs = instrument.Descriptors()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Follower{path: path, descs: descs, opts: opts, logger: logger}
}

// Run follows the file until ctx is done, calling emit for every record.
// Conversion failures are logged and skipped; the stream keeps going.
// It returns the statistics of each instrument seen so far.
func (f *Follower) Run(ctx context.Context, emit func(instrument.Record) error) (map[instrument.Kind]*instrument.Stats, error) {
	whence := io.SeekEnd
	if f.opts.FromStart {
		whence = io.SeekStart
	}

	t, err := tail.TailFile(f.path, tail.Config{
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      f.opts.Poll,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("following %s: %w", f.path, err)
	}
	defer t.Cleanup()

	stats := make(map[instrument.Kind]*instrument.Stats, len(f.descs))
	for _, d := range f.descs {
		stats[d.Kind] = &instrument.Stats{}
	}

	lineNum := 0
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return stats, nil
		case line, ok := <-t.Lines:
			if !ok {
				return stats, t.Err()
			}
			if line.Err != nil {
				f.logger.Warnw("reading followed file", "path", f.path, "error", line.Err)
				continue
			}
			lineNum++
			if err := f.feed(stats, line.Text, lineNum, emit); err != nil {
				_ = t.Stop()
				return stats, err
			}
		}
	}
}

func (f *Follower) feed(stats map[instrument.Kind]*instrument.Stats, text string, lineNum int, emit func(instrument.Record) error) error {
	decoded := utf8.ValidString(text)
	content := strings.TrimSpace(text)

	for _, d := range f.descs {
		s := stats[d.Kind]
		s.Lines++
		if !decoded {
			s.DecodeErrors++
			continue
		}

		rec, outcome, err := d.Recognize(content, f.opts.Dive)
		if err != nil {
			var pe *instrument.ParseError
			if errors.As(err, &pe) {
				pe.Source = f.path
				pe.Line = lineNum
			}
			s.Signed++
			s.Malformed++
			f.logger.Warnw("skipping unconvertible line", "error", err)
			continue
		}

		switch outcome {
		case instrument.Unmatched:
			continue
		case instrument.Malformed:
			s.Malformed++
		case instrument.Implausible:
			s.Implausible++
		case instrument.Accepted:
			s.Records++
			if err := emit(rec); err != nil {
				return err
			}
		}
		s.Signed++
	}
	return nil
}
