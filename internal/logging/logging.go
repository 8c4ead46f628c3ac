package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Options selects the handler stack.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console, json, text
	File   string // optional JSON log file
	Debug  bool   // forces debug level
}

// New builds a logger writing to w, plus a JSON file sink when opts.File is set.
// The returned cleanup closes the file.
func New(w io.Writer, opts Options) (*slog.Logger, func() error, error) {
	level := ParseLevel(opts.Level)
	if opts.Debug {
		level = slog.LevelDebug
	}

	primary := handlerFor(w, opts.Format, level)
	if opts.File == "" {
		return slog.New(primary), func() error { return nil }, nil
	}

	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", opts.File, err)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(primary, fileHandler)), file.Close, nil
}

func handlerFor(w io.Writer, format string, level slog.Level) slog.Handler {
	switch format {
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}
}

// ParseLevel converts a config string to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
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

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
