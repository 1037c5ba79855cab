// Package logging builds the diagnostic logger used by the CLI and the
// scanner. Logs go to stderr so stdout carries only the scan report; an
// optional rotated log file can be added with lumberjack.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shinji-kodama/portsweep/internal/config"
	"github.com/shinji-kodama/portsweep/internal/model"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// New creates a logrus logger from cfg. Log lines are written to stderr and,
// when cfg.File is set, also to a rotated file. verbose forces debug level.
func New(cfg config.LogConfig, stderr io.Writer, verbose bool) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitUsage, fmt.Sprintf("invalid log level %q", cfg.Level), err)
	}
	if verbose && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	default:
		return nil, model.NewCLIError(model.ExitUsage,
			fmt.Sprintf("invalid log format %q: valid values are text, json", cfg.Format))
	}

	if stderr == nil {
		stderr = os.Stderr
	}
	out := stderr

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		out = io.MultiWriter(stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	logger.SetOutput(out)

	return logger, nil
}
