// Package logging builds the operational logger. Records and reports go to
// stdout; logs go to stderr and, optionally, a rotated file.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/oceanlab/flowmow/pkg/config"
)

type contextKey string

const loggerKey = contextKey("logger")

// New creates a logger writing to console and, when cfg.File is set, to a
// rotated log file.
func New(cfg config.LoggingConfig, console io.Writer) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = lvl
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(console), level),
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar(), nil
}

// Default returns an info-level logger on stderr.
func Default() *zap.SugaredLogger {
	l, err := New(config.LoggingConfig{Level: "info"}, os.Stderr)
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Get returns the logger stored in ctx, or a no-op logger.
func Get(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*zap.SugaredLogger); ok {
			return logger
		}
	}
	return zap.NewNop().Sugar()
}

// WithContext adds logger to ctx.
func WithContext(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}
