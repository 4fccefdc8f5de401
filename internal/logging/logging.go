// Package logging builds the root zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the root logger.
type Config struct {
	Service string
	Version string
	Level   string

	// File, when set, receives a copy of every entry and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Stdout overrides os.Stdout.
	Stdout io.Writer
}

// New returns the root logger and a closer for the rotating file, if any.
func New(cfg Config) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Stdout != nil {
		out = cfg.Stdout
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotator)
		closer = rotator
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Str("version", cfg.Version).
		Logger()

	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
