// Package logging builds the slog loggers of the client daemon and the server.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging settings
type Config struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text, json или auto (по терминалу)
	// File включает запись в файл с ротацией
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns the settings used when nothing is configured
func Default() Config {
	return Config{
		Level:      "info",
		Format:     "auto",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// ParseLevel maps a level name to slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// NewLogger builds the logger described by the logging section.
// With a file configured logs go to a rotating file as JSON; otherwise to
// stderr, as text on a terminal and JSON when redirected.
// The returned closer releases the log file.
func (c Config) NewLogger() (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   true,
		}
		var h slog.Handler = slog.NewJSONHandler(rotator, opts)
		if c.Format == "text" {
			h = slog.NewTextHandler(rotator, opts)
		}
		return slog.New(h), rotator, nil
	}

	format := c.Format
	if format == "" || format == "auto" {
		format = "json"
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "text"
		}
	}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
