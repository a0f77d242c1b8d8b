package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oceanlab/flowmow/internal/logging"
	"github.com/oceanlab/flowmow/pkg/config"
	"github.com/oceanlab/flowmow/pkg/detector"
	"github.com/oceanlab/flowmow/pkg/instrument"
	"github.com/oceanlab/flowmow/pkg/output"
	"github.com/oceanlab/flowmow/pkg/parser"
	"github.com/oceanlab/flowmow/pkg/pipeline"
	"github.com/oceanlab/flowmow/pkg/sink"
)

// ParseOptions holds command-line options for the parse command.
type ParseOptions struct {
	Instrument  string
	Dive        int
	Output      string
	Where       string
	Calibration string
	OutDir      string
	Quiet       bool
}

// NewParseCommand creates the parse command.
func NewParseCommand() *cobra.Command {
	opts := &ParseOptions{}

	cmd := &cobra.Command{
		Use:   "parse <log-file>...",
		Short: "Parse local instrument logs into a table",
		Long: `Parse one or more local logs of a single instrument and print the table.

Files are read in name order and their records merged by time. Glob
patterns are expanded. With --instrument auto the instrument is detected
from the first file.

Example:
  flowmow parse -i sbe3 -d 12 data/dive12/sbe3_*.dat
  flowmow parse -i paros --calibration coefficients.yaml -o json paros.dat
  flowmow parse -i nortek --where 'v0 > 0.5' --out-dir out/ vvd.log`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Instrument, "instrument", "i", "auto", "Instrument (navigation|paros|ustrain|sbe3|nortek|auto)")
	cmd.Flags().IntVarP(&opts.Dive, "dive", "d", 0, "Dive number stamped on every record")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "csv", "Table format (csv|json|text)")
	cmd.Flags().StringVar(&opts.Where, "where", "", "Keep only rows matching this expression")
	cmd.Flags().StringVar(&opts.Calibration, "calibration", "", "YAML file with paros/sbe3 coefficients")
	cmd.Flags().StringVar(&opts.OutDir, "out-dir", "", "Write the table into this directory instead of stdout")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Do not print the line summary")

	return cmd
}

func runParse(cmd *cobra.Command, args []string, opts *ParseOptions) error {
	ctx := commandContext(cmd)
	logger := logging.Get(ctx)

	files, err := parser.ExpandGlobs(args)
	if err != nil {
		return err
	}

	kind, err := resolveInstrument(cmd, opts.Instrument, files[0])
	if err != nil {
		return err
	}

	formatter, err := output.New(opts.Output, output.FormatOptions{})
	if err != nil {
		return err
	}

	var s sink.Sink = sink.NewWriterSink(cmd.OutOrStdout(), formatter)
	if opts.OutDir != "" {
		s = sink.NewDirSink(opts.OutDir, formatter)
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithSinks(s),
		pipeline.WithWhere(opts.Where),
		pipeline.WithLogger(logger),
	}
	if opts.Calibration != "" {
		c, err := config.LoadCalibration(opts.Calibration)
		if err != nil {
			return err
		}
		pipeOpts = append(pipeOpts, pipeline.WithCalibration(*c))
	}

	summary, err := pipeline.New(pipeOpts...).ProcessSource(ctx, opts.Dive, config.SourceConfig{
		Instrument: string(kind),
		Files:      files,
	})
	if err != nil {
		return err
	}

	if !opts.Quiet {
		st := summary.Stats
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d records from %d lines (%d malformed, %d implausible, %d undecodable), %d rows written\n",
			kind, st.Records, st.Lines, st.Malformed, st.Implausible, st.DecodeErrors, summary.Rows)
		for _, dest := range summary.Outputs {
			if dest != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote: %s\n", dest)
			}
		}
	}

	if summary.Stats.Records == 0 {
		ExitCode = 1
	}
	return nil
}

// resolveInstrument parses name, detecting the instrument from path when
// name is "auto".
func resolveInstrument(cmd *cobra.Command, name, path string) (instrument.Kind, error) {
	if name != "auto" {
		return instrument.ParseKind(name)
	}

	result, err := detector.New().DetectFromFile(commandContext(cmd), path)
	if err != nil {
		return "", fmt.Errorf("detecting instrument of %s: %w", path, err)
	}
	if !result.HasMatch() {
		return "", fmt.Errorf("no instrument recognized in %s; use --instrument", path)
	}

	kind := result.BestMatch().Kind
	logging.Get(commandContext(cmd)).Infow("detected instrument", "path", path, "instrument", kind)
	return kind, nil
}
