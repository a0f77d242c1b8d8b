package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/oceanlab/flowmow/pkg/detector"
	"github.com/oceanlab/flowmow/pkg/instrument"
)

// DetectOptions holds command-line options for the detect command.
type DetectOptions struct {
	Output      string
	SampleSize  int
	ShowAll     bool
	WriteConfig string
	Dive        int
}

// NewDetectCommand creates the detect command.
func NewDetectCommand() *cobra.Command {
	opts := &DetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect <log-file>",
		Short: "Detect which instrument wrote a log file",
		Long: `Analyze a log file to find out which instrument wrote it.

Samples lines from the file and runs every recognizer on them. Reports
the instrument with the most records, its confidence score and, for
signatures that never yield a record, why the lines were rejected.
Navigation MAT-files are recognized by their header.

Optionally generates a starter config file with --write-config.

Example:
  flowmow detect data/dive12/unknown.dat
  flowmow detect --sample 500 --all data/dive12/combined.log
  flowmow detect -w flowmow.yaml --dive 12 data/dive12/sbe3.dat`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().IntVarP(&opts.SampleSize, "sample", "n", detector.DefaultSampleSize, "Number of lines to sample")
	cmd.Flags().BoolVar(&opts.ShowAll, "all", false, "Show every instrument seen, not just the best match")
	cmd.Flags().StringVarP(&opts.WriteConfig, "write-config", "w", "", "Write starter config to file (will not overwrite)")
	cmd.Flags().IntVar(&opts.Dive, "dive", 1, "Dive number used in the starter config")

	return cmd
}

func runDetect(cmd *cobra.Command, args []string, opts *DetectOptions) error {
	logFile := args[0]
	ctx := commandContext(cmd)

	// Check file exists
	if !fileExists(logFile) {
		return fmt.Errorf("log file not found: %s", logFile)
	}

	d := detector.New(detector.WithSampleSize(opts.SampleSize))

	result, err := d.DetectFromFile(ctx, logFile)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	out := cmd.OutOrStdout()

	// Write config file if requested
	if opts.WriteConfig != "" {
		if err := writeStarterConfig(out, result, logFile, opts.WriteConfig, opts.Dive); err != nil {
			return err
		}
	}

	switch opts.Output {
	case "json":
		return outputDetectJSON(out, result, logFile, opts)
	case "text":
		return outputDetectText(out, result, logFile, opts)
	default:
		return fmt.Errorf("unknown output format %q (use text or json)", opts.Output)
	}
}

func outputDetectText(w io.Writer, result *detector.DetectionResult, logFile string, opts *DetectOptions) error {
	fmt.Fprintln(w, "=== Instrument Detection ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "File: %s\n", logFile)
	if result.SampledLines > 0 {
		fmt.Fprintf(w, "Lines sampled: %d\n", result.SampledLines)
	}
	if result.DecodeErrors > 0 {
		fmt.Fprintf(w, "Undecodable lines: %d\n", result.DecodeErrors)
	}
	fmt.Fprintln(w)

	if !result.HasMatch() {
		fmt.Fprintln(w, "No instrument detected.")
		fmt.Fprintln(w)
		for _, note := range result.Notes {
			fmt.Fprintf(w, "Note: %s\n", note)
		}
		fmt.Fprintln(w, "Tip: Check that the lines start with RAW, MSA3, SBE3 or VVD and carry a")
		fmt.Fprintln(w, "\"YYYY/MM/DD HH:MM:SS.ffffff\" timestamp in the second and third fields.")
		return nil
	}

	best := result.BestMatch()
	fmt.Fprintf(w, "Detected Instrument: %s\n", best.Kind)
	if best.Kind == instrument.Navigation {
		fmt.Fprintf(w, "Samples: %d\n", best.Records)
	} else {
		fmt.Fprintf(w, "Confidence: %.1f%% (%d/%d lines became records)\n",
			best.Confidence*100, best.Records, result.SampledLines)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Sample record:\n  %s\n", best.SampleLine)
	}
	fmt.Fprintf(w, "First timestamp: %s\n", best.FirstTime.Format(time.RFC3339Nano))
	fmt.Fprintln(w)

	if d := best.Malformed + best.Implausible + best.Errors; d > 0 {
		fmt.Fprintf(w, "Rejected: %d (%d malformed, %d out of range, %d unconvertible)\n",
			d, best.Malformed, best.Implausible, best.Errors)
		fmt.Fprintln(w)
	}

	// Show alternatives if requested
	if opts.ShowAll && len(result.Matches) > 1 {
		fmt.Fprintln(w, "--- Other instruments seen ---")
		for i, m := range result.Matches[1:] {
			fmt.Fprintf(w, "%d. %s (%.1f%% confidence, %d signed lines)\n", i+2, m.Kind, m.Confidence*100, m.Signed)
		}
		fmt.Fprintln(w)
	}
	if opts.ShowAll {
		for _, note := range result.Notes {
			fmt.Fprintf(w, "Note: %s\n", note)
		}
	}

	return nil
}

// JSONMatch represents an instrument match in JSON output.
type JSONMatch struct {
	Instrument  string    `json:"instrument"`
	Confidence  float64   `json:"confidence"`
	Signed      int       `json:"signed"`
	Records     int       `json:"records"`
	Malformed   int       `json:"malformed"`
	Implausible int       `json:"implausible"`
	Errors      int       `json:"errors"`
	SampleLine  string    `json:"sample_line,omitempty"`
	FirstTime   time.Time `json:"first_time,omitzero"`
}

// JSONOutput represents the full JSON output.
type JSONOutput struct {
	File         string      `json:"file"`
	Matches      []JSONMatch `json:"matches"`
	SampledLines int         `json:"sampled_lines"`
	DecodeErrors int         `json:"decode_errors"`
	Notes        []string    `json:"notes,omitempty"`
}

func outputDetectJSON(w io.Writer, result *detector.DetectionResult, logFile string, opts *DetectOptions) error {
	output := JSONOutput{
		File:         logFile,
		SampledLines: result.SampledLines,
		DecodeErrors: result.DecodeErrors,
		Notes:        result.Notes,
		Matches:      make([]JSONMatch, 0),
	}

	matches := result.Matches
	if !opts.ShowAll && len(matches) > 1 {
		matches = matches[:1] // Only show best match
	}

	for _, m := range matches {
		output.Matches = append(output.Matches, JSONMatch{
			Instrument:  string(m.Kind),
			Confidence:  m.Confidence,
			Signed:      m.Signed,
			Records:     m.Records,
			Malformed:   m.Malformed,
			Implausible: m.Implausible,
			Errors:      m.Errors,
			SampleLine:  m.SampleLine,
			FirstTime:   m.FirstTime,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// writeStarterConfig generates a starter config file for the detected instrument.
func writeStarterConfig(w io.Writer, result *detector.DetectionResult, logFile, configPath string, dive int) error {
	// Check if file already exists
	if fileExists(configPath) {
		return fmt.Errorf("config file already exists: %s (will not overwrite)", configPath)
	}

	if !result.HasMatch() {
		return fmt.Errorf("cannot generate config: no instrument detected")
	}

	config := generateStarterConfig(logFile, result.BestMatch(), dive)

	// #nosec G306 - config file doesn't need restrictive permissions
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(w, "Wrote starter config to: %s\n\n", configPath)
	return nil
}

// generateStarterConfig creates a YAML config template.
func generateStarterConfig(logFile string, match *detector.InstrumentMatch, dive int) string {
	absLogFile := logFile
	if abs, err := filepath.Abs(logFile); err == nil {
		absLogFile = abs
	}

	calibration := `calibration:
  # paros:
  #   c1: 0
  #   c2: 0
  #   c3: 0
  #   d1: 0
  #   d2: 0
  #   t1: 0
  #   t2: 0
  #   t3: 0
  #   t4: 0
  #   t5: 0
  #   u0: 0
  #   y1: 0
  #   y2: 0
  #   y3: 0
  # sbe3:
  #   channel_0: {g: 0, h: 0, i: 0, j: 0, f0: 1000}
  #   channel_1: {g: 0, h: 0, i: 0, j: 0, f0: 1000}
`

	return fmt.Sprintf(`# flowmow configuration
# Generated by: flowmow detect
# Detected instrument: %s (%.0f%% confidence)

dives:
  - number: %d
    sources:
      - instrument: %s
        files:
          - %s
      # Add more instruments, local globs or remote blobs:
      # - instrument: navigation
      #   blobs: ["<drive file id>"]

%s
retrieval:
  backend: drive

output:
  format: csv
  dir: out
  # where: "epoch > 0"

logging:
  level: info
`, match.Kind, match.Confidence*100,
		dive,
		match.Kind,
		absLogFile,
		calibration)
}
