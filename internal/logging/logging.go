// Package logging builds the zerolog logger used by argusctl, writing to the
// console, a size-rotated file, or both.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	WriterConsole = "console"
	WriterFile    = "file"
)

// Config describes where logs go and how log files are rotated.
type Config struct {
	Level      string   `mapstructure:"level" yaml:"level"`
	Writers    []string `mapstructure:"writers" yaml:"writers"`
	File       string   `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int      `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int      `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int      `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool     `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig logs info and above to the console.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Writers:    []string{WriterConsole},
		File:       "./logs/argus.log",
		MaxSizeMB:  1,
		MaxBackups: 30,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger for cfg. The returned closer releases the log file
// and must be closed by the caller.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}

	writers := cfg.Writers
	if len(writers) == 0 {
		writers = []string{WriterConsole}
	}

	var (
		outputs []io.Writer
		closer  io.Closer = nopCloser{}
	)
	for _, w := range writers {
		switch strings.ToLower(strings.TrimSpace(w)) {
		case WriterConsole:
			outputs = append(outputs, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05.000"})
		case WriterFile:
			if cfg.File == "" {
				return zerolog.Nop(), nil, fmt.Errorf("logging: file writer needs a file path")
			}
			if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
				return zerolog.Nop(), nil, fmt.Errorf("logging: failed to create log directory: %w", err)
			}
			rotator := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
				LocalTime:  true,
			}
			outputs = append(outputs, rotator)
			closer = rotator
		default:
			return zerolog.Nop(), nil, fmt.Errorf("logging: unknown writer %q", w)
		}
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(outputs...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closer, nil
}
