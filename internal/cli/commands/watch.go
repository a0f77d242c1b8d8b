package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oceanlab/flowmow/internal/logging"
	"github.com/oceanlab/flowmow/pkg/follow"
	"github.com/oceanlab/flowmow/pkg/instrument"
	"github.com/oceanlab/flowmow/pkg/output"
)

// WatchOptions holds command-line options for the watch command.
type WatchOptions struct {
	Instruments []string
	Dive        int
	FromStart   bool
	Poll        bool
	Output      string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <log-file>",
		Short: "Print records as an instrument log grows",
		Long: `Follow a log file while it is being written and print every record as
soon as its line is recognized. Log rotation is followed. Lines whose
payload does not convert are logged and skipped.

Stop with Ctrl-C; a per-instrument line summary is printed on exit.

Example:
  flowmow watch /var/log/vehicle/sbe3.dat
  flowmow watch -i paros -i sbe3 --from-start -o json combined.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Instruments, "instrument", "i", nil, "Instruments to recognize (default: all text instruments)")
	cmd.Flags().IntVarP(&opts.Dive, "dive", "d", 0, "Dive number stamped on every record")
	cmd.Flags().BoolVar(&opts.FromStart, "from-start", false, "Read existing lines before following")
	cmd.Flags().BoolVar(&opts.Poll, "poll", false, "Poll for changes instead of using inotify")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Record format (text|json)")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string, opts *WatchOptions) error {
	ctx := commandContext(cmd)

	descs, err := watchDescriptors(opts.Instruments)
	if err != nil {
		return err
	}

	var emit func(io.Writer, instrument.Record) error
	switch opts.Output {
	case "text":
		emit = printRecordText
	case "json":
		emit = printRecordJSON
	default:
		return fmt.Errorf("unknown output format %q (use text or json)", opts.Output)
	}

	f := follow.New(args[0], descs, follow.Options{
		Dive:      opts.Dive,
		FromStart: opts.FromStart,
		Poll:      opts.Poll,
	}, logging.Get(ctx))

	w := cmd.OutOrStdout()
	stats, err := f.Run(ctx, func(rec instrument.Record) error {
		return emit(w, rec)
	})

	kinds := make([]string, 0, len(stats))
	for k := range stats {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		s := stats[instrument.Kind(k)]
		if s.Signed == 0 {
			continue
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d records, %d dropped, %d lines\n", k, s.Records, s.Dropped(), s.Lines)
	}

	return err
}

func watchDescriptors(names []string) ([]*instrument.Descriptor, error) {
	var descs []*instrument.Descriptor
	for _, name := range names {
		k, err := instrument.ParseKind(name)
		if err != nil {
			return nil, err
		}
		d, ok := instrument.Lookup(k)
		if !ok {
			return nil, fmt.Errorf("%s is not a text instrument and cannot be watched", k)
		}
		descs = append(descs, d)
	}
	return descs, nil
}

func printRecordText(w io.Writer, rec instrument.Record) error {
	row := instrument.Row(rec)
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = output.FormatValue(v)
	}
	_, err := fmt.Fprintf(w, "[%s] %s\n", strings.ToUpper(string(rec.Kind())), strings.Join(cells, " "))
	return err
}

func printRecordJSON(w io.Writer, rec instrument.Record) error {
	b, err := output.MarshalRow(instrument.Columns(rec.Kind()), instrument.Row(rec))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}
