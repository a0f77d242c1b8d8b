package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oceanlab/flowmow/pkg/config"
	"github.com/oceanlab/flowmow/pkg/parser"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a flowmow configuration file without processing any dive.

Checks:
  - YAML syntax
  - Required fields
  - Instrument names and duplicate sources
  - Calibration coefficients
  - Filter expression syntax
  - Retrieval, output, kafka and logging settings
  - Local source file existence (warning only)`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	ctx := commandContext(cmd)
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Validating %s...\n", configPath)

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(w, "\nConfiguration valid!\n")
	fmt.Fprintf(w, "  Dives:       %d\n", len(cfg.Dives))
	fmt.Fprintf(w, "  Retrieval:   %s\n", cfg.Retrieval.Backend)
	fmt.Fprintf(w, "  Output:      %s -> %s\n", cfg.Output.Format, cfg.Output.Dir)
	if cfg.Kafka.Enabled {
		fmt.Fprintf(w, "  Kafka:       %s on %v\n", cfg.Kafka.Topic, cfg.Kafka.Brokers)
	}
	fmt.Fprintf(w, "  Calibration: paros=%t sbe3=%t\n", cfg.Calibration.Paros != nil, cfg.Calibration.SBE3 != nil)

	var warnings []string
	for _, dive := range cfg.Dives {
		fmt.Fprintf(w, "\nDive %d:\n", dive.Number)
		for i, src := range dive.Sources {
			fmt.Fprintf(w, "  %d. [%s] %d blob(s), %d file pattern(s)\n", i+1, src.Kind(), len(src.Blobs), len(src.Files))
			if src.Where != "" {
				fmt.Fprintf(w, "     where: %s\n", src.Where)
			}
			if len(src.Files) == 0 {
				continue
			}

			// Check if local sources exist (warnings only)
			files, err := parser.ExpandGlobs(src.Files)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("dive %d %s: %v", dive.Number, src.Kind(), err))
				continue
			}
			for _, f := range files {
				if !fileExists(f) {
					warnings = append(warnings, fmt.Sprintf("dive %d %s: no file matches %s", dive.Number, src.Kind(), f))
				}
			}
		}
	}

	if len(warnings) > 0 {
		fmt.Fprintln(w)
		for _, warn := range warnings {
			fmt.Fprintf(w, "Warning: %s\n", warn)
		}
	}

	return nil
}
