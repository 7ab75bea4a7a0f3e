// Package logging builds the structured loggers used across the console
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Sink selects where log records are written
type Sink string

const (
	SinkStderr Sink = "stderr"
	SinkFile   Sink = "file"
	SinkNone   Sink = "none"
)

// Format selects the record encoding
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures a logger
type Options struct {
	Level      string `json:"level"`
	Format     Format `json:"format"`
	Sink       Sink   `json:"sink"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// DefaultOptions returns options logging info records as text to stderr
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		Format:     FormatText,
		Sink:       SinkStderr,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// Validate checks the enumerated fields
func (o Options) Validate() error {
	if _, err := ParseLevel(o.Level); err != nil {
		return err
	}

	switch o.Format {
	case FormatText, FormatJSON, "":
	default:
		return fmt.Errorf("invalid log format: %s", o.Format)
	}

	switch o.Sink {
	case SinkStderr, SinkNone, "":
	case SinkFile:
		if strings.TrimSpace(o.File) == "" {
			return fmt.Errorf("log file path is required for the file sink")
		}
	default:
		return fmt.Errorf("invalid log sink: %s", o.Sink)
	}

	return nil
}

// ParseLevel parses debug, info, warn or error
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", value)
	}
}

// New builds a logger from opts. The returned function releases the sink.
func New(opts Options) (*slog.Logger, func() error, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}

	writer, closeFn, err := resolveWriter(opts)
	if err != nil {
		return nil, nil, err
	}

	return NewWithWriter(writer, opts), closeFn, nil
}

// NewWithWriter builds a logger writing to w, ignoring the sink options
func NewWithWriter(w io.Writer, opts Options) *slog.Logger {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch opts.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func resolveWriter(opts Options) (io.Writer, func() error, error) {
	switch opts.Sink {
	case SinkNone:
		return io.Discard, func() error { return nil }, nil
	case SinkFile:
		path := strings.TrimSpace(opts.File)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		rot := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		return rot, rot.Close, nil
	default:
		return os.Stderr, func() error { return nil }, nil
	}
}
