// Package logger builds the process logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls level, format and optional rotated file output
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	OutputFile string // empty logs to stdout only
	MaxSize    int    // megabytes before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// New creates a logger from cfg. Output goes to out and, if configured, to a rotated file.
func New(cfg Config, out io.Writer) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "06-01-02 15:04:05",
		})
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if out == nil {
		out = os.Stdout
	}
	var closer io.Closer = nopCloser{}
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}
	log.SetOutput(out)

	return log, closer, nil
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
