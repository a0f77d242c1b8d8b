package config

import (
	"os"
	"strings"
	"time"
)

// Default values for configuration.
const (
	DefaultDriveURL         = "https://docs.google.com/uc"
	DefaultRetrievalTimeout = 5 * time.Minute
	DefaultOutputFormat     = "csv"
	DefaultOutputDir        = "."
	DefaultKafkaTopic       = "flowmow.records"
	DefaultLogLevel         = "info"
	DefaultLogMaxSizeMB     = 100
	DefaultLogMaxBackups    = 3
	DefaultLogMaxAgeDays    = 28
	DefaultWebhookTimeout   = 10 * time.Second
)

// Environment variable names.
const (
	EnvLogLevel     = "FLOWMOW_LOG_LEVEL"
	EnvOutputDir    = "FLOWMOW_OUTPUT_DIR"
	EnvKafkaBrokers = "FLOWMOW_KAFKA_BROKERS"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Dives: []DiveConfig{},
		Retrieval: RetrievalConfig{
			Backend:  BackendDrive,
			DriveURL: DefaultDriveURL,
			Timeout:  DefaultRetrievalTimeout,
		},
		Output: OutputConfig{
			Format: DefaultOutputFormat,
			Dir:    DefaultOutputDir,
		},
		Kafka: KafkaConfig{
			Topic: DefaultKafkaTopic,
		},
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvironmentOverrides() {
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}

	if dir := os.Getenv(EnvOutputDir); dir != "" {
		c.Output.Dir = dir
	}

	// Setting brokers in the environment turns publishing on
	if brokers := os.Getenv(EnvKafkaBrokers); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
		c.Kafka.Enabled = true
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
