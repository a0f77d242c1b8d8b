// Package config provides configuration loading and validation for flowmow.
package config

import (
	"time"

	"github.com/oceanlab/flowmow/pkg/calib"
	"github.com/oceanlab/flowmow/pkg/instrument"
	"github.com/oceanlab/flowmow/pkg/qc"
)

// Config is the root configuration structure loaded from YAML.
type Config struct {
	Dives       []DiveConfig      `yaml:"dives"`
	Calibration CalibrationConfig `yaml:"calibration,omitempty"`
	Retrieval   RetrievalConfig   `yaml:"retrieval,omitempty"`
	Output      OutputConfig      `yaml:"output,omitempty"`
	Kafka       KafkaConfig       `yaml:"kafka,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Webhooks    []WebhookConfig   `yaml:"webhooks,omitempty"`

	// MetricsFile, when set, receives the run's Prometheus metrics in text
	// exposition format.
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

// DiveConfig lists the instrument logs recorded during one dive.
type DiveConfig struct {
	Number  int            `yaml:"number"`
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig names the inputs of one instrument.
type SourceConfig struct {
	// Instrument is navigation, paros, ustrain, sbe3 or nortek.
	Instrument string `yaml:"instrument"`

	// Blobs are remote blob identifiers fetched through the retrieval backend.
	Blobs []string `yaml:"blobs,omitempty"`

	// Files are local paths or glob patterns.
	Files []string `yaml:"files,omitempty"`

	// Where filters this instrument's rows, after output.where.
	Where string `yaml:"where,omitempty"`

	// MaxGap flags silences longer than this between consecutive records.
	MaxGap time.Duration `yaml:"max_gap,omitempty"`

	// MinRecords flags sources that produced fewer records.
	MinRecords int `yaml:"min_records,omitempty"`

	kind instrument.Kind
}

// Rules returns the sampling checks configured for the source.
func (s *SourceConfig) Rules() qc.Rules {
	return qc.Rules{MaxGap: s.MaxGap, MinRecords: s.MinRecords}
}

// Kind returns the parsed instrument (populated during validation).
func (s *SourceConfig) Kind() instrument.Kind {
	return s.kind
}

// CalibrationConfig holds the coefficients applied to assembled tables.
// Instruments without coefficients are written uncalibrated.
type CalibrationConfig struct {
	Paros *calib.ParosCoefficients `yaml:"paros,omitempty"`
	SBE3  *SBE3Calibration         `yaml:"sbe3,omitempty"`
}

// SBE3Calibration holds one coefficient set per thermometer channel.
type SBE3Calibration struct {
	Channel0 calib.SBE3Coefficients `yaml:"channel_0"`
	Channel1 calib.SBE3Coefficients `yaml:"channel_1"`
}

// RetrievalBackend selects where blobs are fetched from.
type RetrievalBackend string

const (
	// BackendDrive downloads blobs from Google Drive by file id.
	BackendDrive RetrievalBackend = "drive"
	// BackendLocal reads blobs from a local directory, one file per id.
	BackendLocal RetrievalBackend = "local"
)

// RetrievalConfig configures blob retrieval.
type RetrievalConfig struct {
	Backend RetrievalBackend `yaml:"backend,omitempty"`

	// DriveURL is the download endpoint. Defaults to DefaultDriveURL.
	DriveURL string `yaml:"drive_url,omitempty"`

	// LocalDir is the directory used by the local backend.
	LocalDir string `yaml:"local_dir,omitempty"`

	// Timeout bounds each download.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MaxBytes caps the size of a single blob. Zero means no limit.
	MaxBytes int64 `yaml:"max_bytes,omitempty"`
}

// OutputConfig controls where and how tables are written.
type OutputConfig struct {
	Format string `yaml:"format,omitempty"`
	Dir    string `yaml:"dir,omitempty"`

	// Where is an optional row filter expression applied to every table.
	Where string `yaml:"where,omitempty"`
}

// KafkaConfig configures publishing table rows to Kafka.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// LoggingConfig configures the operational log.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`

	// File, when set, also writes logs to a rotated file.
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// WebhookTrigger determines when a webhook fires.
type WebhookTrigger string

const (
	// WebhookTriggerOnIssues fires when a source is unproductive or fails a
	// sampling check (default).
	WebhookTriggerOnIssues WebhookTrigger = "on_issues"
	// WebhookTriggerAlways fires after every run.
	WebhookTriggerAlways WebhookTrigger = "always"
	// WebhookTriggerNever disables the webhook.
	WebhookTriggerNever WebhookTrigger = "never"
)

// WebhookConfig defines an endpoint that receives the run report.
type WebhookConfig struct {
	Name    string         `yaml:"name,omitempty"`
	URL     string         `yaml:"url"`
	Token   string         `yaml:"token,omitempty"`
	Trigger WebhookTrigger `yaml:"trigger,omitempty"`
	Timeout time.Duration  `yaml:"timeout,omitempty"`
}
