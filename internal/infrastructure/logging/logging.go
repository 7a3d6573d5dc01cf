// Package logging builds the zap logger from configuration.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/asakaida/placement/internal/infrastructure/config"
)

// New creates a logger. Console format uses zap's development encoder;
// json uses the production encoder. With a log file set, output goes to a
// lumberjack-rotated file instead of stderr.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil && cfg.Level != "" {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.File == "" {
		return zcfg.Build()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(zcfg.EncoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(zcfg.EncoderConfig)
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays, // days
	})

	core := zapcore.NewCore(encoder, writer, zcfg.Level)
	return zap.New(core, zap.AddCaller()), nil
}

// NewCLI builds the logger for command-line tools from the environment's
// LOG_* settings. verbose lowers the level to debug.
func NewCLI(env string, verbose bool) (*zap.Logger, error) {
	if err := config.InitConfig(env); err != nil {
		return nil, err
	}
	cfg, err := config.LoadLog()
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Level = "debug"
	}
	return New(cfg)
}
