package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oceanlab/flowmow/pkg/instrument"
	"github.com/oceanlab/flowmow/pkg/output"
	"github.com/oceanlab/flowmow/pkg/table"
)

// Load reads and validates a configuration file.
func Load(_ context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadCalibration reads a standalone coefficients file holding the
// calibration section of a run configuration.
func LoadCalibration(path string) (*CalibrationConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided calibration path is expected
	if err != nil {
		return nil, fmt.Errorf("reading calibration file: %w", err)
	}

	var c CalibrationConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing calibration file: %w", err)
	}
	if err := validateCalibration(&c); err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	return &c, nil
}

// Validate checks a configuration for errors and resolves instrument names.
func Validate(cfg *Config) error {
	if len(cfg.Dives) == 0 {
		return errors.New("dives: at least one dive is required")
	}

	needsBlobs := false
	seen := make(map[int]bool)
	for i := range cfg.Dives {
		dive := &cfg.Dives[i]
		if seen[dive.Number] {
			return fmt.Errorf("dives[%d]: dive %d is listed twice", i, dive.Number)
		}
		seen[dive.Number] = true

		if err := validateDive(dive); err != nil {
			return fmt.Errorf("dives[%d].%w", i, err)
		}
		for _, src := range dive.Sources {
			if len(src.Blobs) > 0 {
				needsBlobs = true
			}
		}
	}

	if err := validateCalibration(&cfg.Calibration); err != nil {
		return fmt.Errorf("calibration.%w", err)
	}

	if err := validateRetrieval(&cfg.Retrieval, needsBlobs); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}

	if err := validateOutput(&cfg.Output); err != nil {
		return fmt.Errorf("output: %w", err)
	}

	if err := validateKafka(&cfg.Kafka); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	for i := range cfg.Webhooks {
		if err := validateWebhook(&cfg.Webhooks[i]); err != nil {
			name := cfg.Webhooks[i].Name
			if name == "" {
				name = cfg.Webhooks[i].URL
			}
			return fmt.Errorf("webhooks[%d] (%s): %w", i, name, err)
		}
	}

	return nil
}

func validateDive(dive *DiveConfig) error {
	if dive.Number < 0 {
		return fmt.Errorf("number: must be >= 0, got %d", dive.Number)
	}
	if len(dive.Sources) == 0 {
		return errors.New("sources: at least one source is required")
	}

	kinds := make(map[instrument.Kind]bool)
	for i := range dive.Sources {
		src := &dive.Sources[i]

		k, err := instrument.ParseKind(src.Instrument)
		if err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if kinds[k] {
			return fmt.Errorf("sources[%d]: instrument %s is listed twice", i, k)
		}
		kinds[k] = true
		src.kind = k

		if len(src.Blobs) == 0 && len(src.Files) == 0 {
			return fmt.Errorf("sources[%d] (%s): blobs or files are required", i, k)
		}

		if src.Where != "" {
			if _, err := table.CompileFilter(src.Where, nil); err != nil {
				return fmt.Errorf("sources[%d] (%s): where: %w", i, k, err)
			}
		}
		if src.MaxGap < 0 {
			return fmt.Errorf("sources[%d] (%s): max_gap must be >= 0", i, k)
		}
		if src.MinRecords < 0 {
			return fmt.Errorf("sources[%d] (%s): min_records must be >= 0", i, k)
		}
	}

	return nil
}

func validateCalibration(c *CalibrationConfig) error {
	if c.SBE3 == nil {
		return nil
	}
	if c.SBE3.Channel0.F0 <= 0 {
		return errors.New("sbe3.channel_0: f0 must be positive")
	}
	if c.SBE3.Channel1.F0 <= 0 {
		return errors.New("sbe3.channel_1: f0 must be positive")
	}
	return nil
}

func validateRetrieval(r *RetrievalConfig, needsBlobs bool) error {
	if r.Timeout <= 0 {
		r.Timeout = DefaultRetrievalTimeout
	}
	if r.MaxBytes < 0 {
		return errors.New("max_bytes must be >= 0")
	}

	switch r.Backend {
	case "", BackendDrive:
		r.Backend = BackendDrive
		if r.DriveURL == "" {
			r.DriveURL = DefaultDriveURL
		}
		return validateURL("drive_url", r.DriveURL)
	case BackendLocal:
		r.LocalDir = expandEnvVar(r.LocalDir)
		if needsBlobs && r.LocalDir == "" {
			return errors.New("local_dir is required for the local backend")
		}
		return nil
	default:
		return fmt.Errorf("invalid backend %q (must be drive or local)", r.Backend)
	}
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got %q", field, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%s must have a host", field)
	}

	return nil
}

func validateWebhook(wh *WebhookConfig) error {
	if wh.URL == "" {
		return errors.New("url is required")
	}
	if err := validateURL("url", wh.URL); err != nil {
		return err
	}

	wh.Token = expandEnvVar(wh.Token)

	switch wh.Trigger {
	case "":
		wh.Trigger = WebhookTriggerOnIssues
	case WebhookTriggerOnIssues, WebhookTriggerAlways, WebhookTriggerNever:
	default:
		return fmt.Errorf("invalid trigger %q (must be on_issues, always, or never)", wh.Trigger)
	}

	if wh.Timeout <= 0 {
		wh.Timeout = DefaultWebhookTimeout
	}
	return nil
}

func validateOutput(o *OutputConfig) error {
	if o.Format == "" {
		o.Format = DefaultOutputFormat
	}
	if _, err := output.New(o.Format, output.FormatOptions{}); err != nil {
		return err
	}

	o.Dir = expandEnvVar(o.Dir)
	if o.Dir == "" {
		o.Dir = DefaultOutputDir
	}

	if o.Where != "" {
		if _, err := table.CompileFilter(o.Where, nil); err != nil {
			return fmt.Errorf("where: %w", err)
		}
	}

	return nil
}

func validateKafka(k *KafkaConfig) error {
	if !k.Enabled {
		return nil
	}
	if len(k.Brokers) == 0 {
		return errors.New("brokers: at least one broker is required when enabled")
	}
	if k.Topic == "" {
		k.Topic = DefaultKafkaTopic
	}
	return nil
}

func validateLogging(l *LoggingConfig) error {
	switch strings.ToLower(l.Level) {
	case "":
		l.Level = DefaultLogLevel
	case "debug", "info", "warn", "error":
		l.Level = strings.ToLower(l.Level)
	default:
		return fmt.Errorf("invalid level %q (must be debug, info, warn, or error)", l.Level)
	}

	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = DefaultLogMaxSizeMB
	}
	return nil
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	// Handle ${VAR} format
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}

	// Handle $VAR format (no braces)
	if strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "${") {
		varName := s[1:]
		return os.Getenv(varName)
	}

	return s
}
