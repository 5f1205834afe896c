// Package logger builds the application's structured logger, adapted
// from the teacher's internal/logger package: same lumberjack-backed
// rotation defaults and ColorTextHandler, repurposed from one log pair
// per supervised process to a single rotating log for the job queue
// application as a whole.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, matching the teacher's per-process
// defaults.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the application logger's destination and format.
type Config struct {
	// Path is the log file to rotate into. Empty means log to stdout.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Level is one of "debug", "info", "warn", "error" (default "info").
	Level string
	// Color enables ANSI level coloring. It only makes sense for a
	// terminal destination; callers typically leave it off for Path.
	Color bool
}

// New builds a slog.Logger per cfg. When Path is set, output is a
// lumberjack-rotated file using plain slog.TextHandler; otherwise output
// goes to stdout, optionally through ColorTextHandler. The returned
// io.Closer must be closed on shutdown to flush the rotation writer (it
// is a no-op for the stdout case).
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var w io.Writer = os.Stdout
	var closer io.Closer = noopCloser{}
	if cfg.Path != "" {
		rot := &lj.Logger{
			Filename:   cfg.Path,
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
		w = rot
		closer = rot
	}

	var handler slog.Handler
	if cfg.Color && cfg.Path == "" {
		handler = NewColorTextHandler(w, opts, true)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }
