package commands

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oceanlab/flowmow/internal/logging"
	"github.com/oceanlab/flowmow/internal/metrics"
	"github.com/oceanlab/flowmow/pkg/blob"
	"github.com/oceanlab/flowmow/pkg/config"
	"github.com/oceanlab/flowmow/pkg/output"
	"github.com/oceanlab/flowmow/pkg/pipeline"
	"github.com/oceanlab/flowmow/pkg/sink"
	"github.com/oceanlab/flowmow/pkg/webhook"
)

// ExitCode is set by commands to indicate the result
var ExitCode = 0

// RunOptions holds command-line options for the run command.
type RunOptions struct {
	Output      string
	Dives       []int
	MetricsFile string
	Verbose     bool
	Quiet       bool

	WebhookURL     string
	WebhookToken   string
	WebhookTrigger string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <config-file>",
		Short: "Process the dives described in a configuration file",
		Long: `Fetch, parse, calibrate and write every instrument source of every dive
listed in the configuration file, then print a run report.

Tables are written to output.dir as dive<N>_<instrument>.<ext> and, when
kafka is enabled, published one message per row.

Sources may set max_gap and min_records to check their sampling; failed
checks are listed in the report. The report can also be posted to the
webhooks of the configuration or to --webhook-url.

Exit codes:
  0 - Every source produced records and passed its checks
  1 - A source produced no records or failed a sampling check
  2 - Configuration or runtime error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Report format (text|json|csv)")
	cmd.Flags().IntSliceVar(&opts.Dives, "dive", nil, "Process only these dive numbers (can be repeated)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file (overrides metrics_file)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show inputs, line counts and outputs per source")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Summary only, no details")
	cmd.Flags().StringVar(&opts.WebhookURL, "webhook-url", "", "Post the run report to this URL")
	cmd.Flags().StringVar(&opts.WebhookToken, "webhook-token", "", "Bearer token for --webhook-url")
	cmd.Flags().StringVar(&opts.WebhookTrigger, "webhook-trigger", string(config.WebhookTriggerOnIssues), "When to post to --webhook-url (on_issues|always|never)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *RunOptions) error {
	configPath := args[0]
	ctx := commandContext(cmd)

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dives, err := selectDives(cfg.Dives, opts.Dives)
	if err != nil {
		return err
	}

	hooks, err := collectWebhooks(cfg, opts)
	if err != nil {
		return err
	}

	reportFormatter, err := output.New(opts.Output, output.FormatOptions{Verbose: opts.Verbose, Quiet: opts.Quiet})
	if err != nil {
		return err
	}

	logger, err := runLogger(cmd, cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx = logging.WithContext(ctx, logger)

	fetcher, closeFetcher, err := newFetcher(cfg.Retrieval)
	if err != nil {
		return err
	}
	defer closeFetcher()

	sinks, err := newSinks(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				logger.Warnw("closing sink", "sink", s.Name(), "error", err)
			}
		}
	}()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	p := pipeline.New(
		pipeline.WithFetcher(fetcher),
		pipeline.WithSinks(sinks...),
		pipeline.WithCalibration(cfg.Calibration),
		pipeline.WithWhere(cfg.Output.Where),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
	)

	report, runErr := p.Run(ctx, configPath, dives)

	metricsFile := cfg.MetricsFile
	if opts.MetricsFile != "" {
		metricsFile = opts.MetricsFile
	}
	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile, reg); err != nil {
			logger.Warnw("writing metrics file", "path", metricsFile, "error", err)
		}
	}

	if report != nil {
		if err := reportFormatter.FormatReport(ctx, report, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("formatting output: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	if len(hooks) > 0 {
		client := webhook.NewClient(webhook.WithLogger(logger))
		for _, resp := range client.Notify(ctx, hooks, report) {
			if resp.Success() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Webhook %s: sent (%d, %s)\n", resp.Name, resp.StatusCode, resp.Duration)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "Webhook %s: failed (%v)\n", resp.Name, resp.Error)
			}
		}
	}

	// Set exit code based on results
	if idle := report.Unproductive(); len(idle) > 0 {
		for _, s := range idle {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: dive %d %s produced no records\n", s.Dive, s.Instrument)
		}
		ExitCode = 1
	}
	if report.HasIssues() {
		ExitCode = 1
	}

	return nil
}

// collectWebhooks merges the configured webhooks with --webhook-url.
func collectWebhooks(cfg *config.Config, opts *RunOptions) ([]config.WebhookConfig, error) {
	hooks := append([]config.WebhookConfig(nil), cfg.Webhooks...)
	if opts.WebhookURL == "" {
		return hooks, nil
	}

	trigger := config.WebhookTrigger(opts.WebhookTrigger)
	switch trigger {
	case "":
		trigger = config.WebhookTriggerOnIssues
	case config.WebhookTriggerOnIssues, config.WebhookTriggerAlways, config.WebhookTriggerNever:
	default:
		return nil, fmt.Errorf("invalid --webhook-trigger %q (must be on_issues, always, or never)", opts.WebhookTrigger)
	}

	return append(hooks, config.WebhookConfig{
		Name:    "cli",
		URL:     opts.WebhookURL,
		Token:   opts.WebhookToken,
		Trigger: trigger,
		Timeout: config.DefaultWebhookTimeout,
	}), nil
}

// commandContext returns the command's context, or a background context
// when the command runs outside the root command.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// runLogger builds the logger from the configuration file, letting the
// --log-level and --log-file flags override it.
func runLogger(cmd *cobra.Command, cfg config.LoggingConfig) (*zap.SugaredLogger, error) {
	if f := cmd.Flag("log-level"); f != nil && f.Changed {
		cfg.Level = f.Value.String()
	}
	if f := cmd.Flag("log-file"); f != nil && f.Changed {
		cfg.File = f.Value.String()
	}
	return logging.New(cfg, cmd.ErrOrStderr())
}

func selectDives(all []config.DiveConfig, want []int) ([]config.DiveConfig, error) {
	if len(want) == 0 {
		return all, nil
	}

	var out []config.DiveConfig
	for _, n := range want {
		i := slices.IndexFunc(all, func(d config.DiveConfig) bool { return d.Number == n })
		if i < 0 {
			return nil, fmt.Errorf("dive %d is not in the configuration", n)
		}
		out = append(out, all[i])
	}
	return out, nil
}

func newFetcher(r config.RetrievalConfig) (blob.Fetcher, func(), error) {
	switch r.Backend {
	case config.BackendLocal:
		return blob.NewDirStore(r.LocalDir), func() {}, nil
	default:
		client, err := blob.NewDriveClient(blob.DriveOptions{
			BaseURL:  r.DriveURL,
			Timeout:  r.Timeout,
			MaxBytes: r.MaxBytes,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating drive client: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	}
}

func newSinks(cfg *config.Config) ([]sink.Sink, error) {
	formatter, err := output.New(cfg.Output.Format, output.FormatOptions{})
	if err != nil {
		return nil, err
	}

	sinks := []sink.Sink{sink.NewDirSink(cfg.Output.Dir, formatter)}
	if cfg.Kafka.Enabled {
		sinks = append(sinks, sink.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	return sinks, nil
}

// fileExists reports whether path names an existing file.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
