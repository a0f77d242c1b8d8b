// Package cli provides the command-line interface for flowmow.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oceanlab/flowmow/internal/cli/commands"
	"github.com/oceanlab/flowmow/internal/logging"
	"github.com/oceanlab/flowmow/pkg/config"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Print error to stderr (SilenceErrors prevents Cobra from doing this)
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2 // Configuration or runtime error
	}
	return commands.ExitCode
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	var logOpts config.LoggingConfig

	rootCmd := &cobra.Command{
		Use:   "flowmow",
		Short: "Parse and calibrate oceanographic instrument logs",
		Long: `flowmow turns the raw logs of a dive into tidy, calibrated tables.

It recognizes lines written by:
  - Paros pressure sensors (RAW)
  - Micro-strain gauges (MSA3)
  - SBE3 thermometers (SBE3)
  - Nortek velocity profilers (VVD)
and reads the vehicle's renavigated track from MAT-files.

Records are merged in time order, converted to engineering units and
written as csv, json or text files, or published to Kafka.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cmd.SetContext(logging.WithContext(cmd.Context(), logger))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logOpts.Level, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logOpts.File, "log-file", "", "Also write logs to this rotated file")

	// Add subcommands
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewParseCommand())
	rootCmd.AddCommand(commands.NewDetectCommand())
	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
