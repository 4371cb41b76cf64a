// Package logging configures the process-wide slog logger and hands out
// component-scoped loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gewnthar/parkalerts/config"
)

var (
	mu        sync.RWMutex
	base      = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	levelVar  = new(slog.LevelVar)
	fileClose func() error
)

// ParseLevel maps a config string to a slog level. Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Init installs the logger described by cfg as the package and slog default.
// When cfg.File is set, output is also written to a size-rotated file.
func Init(cfg config.LoggingConfig) error {
	return InitWithWriter(cfg, os.Stderr)
}

// InitWithWriter is Init with an explicit console writer.
func InitWithWriter(cfg config.LoggingConfig, console io.Writer) error {
	mu.Lock()
	defer mu.Unlock()

	if fileClose != nil {
		_ = fileClose()
		fileClose = nil
	}

	levelVar.Set(ParseLevel(cfg.Level))

	out := console
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		fileClose = rotator.Close
		out = io.MultiWriter(console, rotator)
	}

	opts := &slog.HandlerOptions{Level: levelVar}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	base = slog.New(handler)
	slog.SetDefault(base)
	return nil
}

// SetLevel changes the level of the installed logger at runtime.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// Logger returns the installed base logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// ForService returns a logger tagged with service=name.
func ForService(name string) *slog.Logger {
	return Logger().With("service", name)
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileClose == nil {
		return nil
	}
	err := fileClose()
	fileClose = nil
	return err
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
