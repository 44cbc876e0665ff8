// Package logging adapts go-logger and slog/tint to the engine logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/lmittmann/tint"

	"github.com/goliatone/go-job/engine"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config selects the backend. JSON goes through go-logger, console through
// slog with the tint handler.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	TimeFormat string `yaml:"time_format"`
	NoColor    bool   `yaml:"no_color"`
}

// New builds an engine logger writing to out, stdout when nil.
func New(cfg Config, out io.Writer) (engine.Logger, error) {
	if out == nil {
		out = os.Stdout
	}
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = "info"
	}

	switch strings.ToLower(cfg.Format) {
	case FormatJSON, "":
		return NewGlog(glog.NewLogger(
			glog.WithWriter(out),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(level),
		)), nil
	case FormatConsole:
		timeFormat := cfg.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}
		handler := tint.NewHandler(out, &tint.Options{
			Level:      parseLevel(level),
			TimeFormat: timeFormat,
			NoColor:    cfg.NoColor,
		})
		return NewSlog(slog.New(handler)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// LevelTrace sits below slog's debug level.
const LevelTrace = slog.Level(-8)

// LevelFatal sits above slog's error level. Fatal never exits the process.
const LevelFatal = slog.Level(12)

func parseLevel(level string) slog.Level {
	switch level {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "fatal":
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}
