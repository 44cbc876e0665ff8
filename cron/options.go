package cron

import (
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"
)

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithLogger(logger Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithErrorHandler receives errors returned by trigger handlers. Without it
// they are logged.
func WithErrorHandler(fn func(name string, err error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// WithSeconds accepts specs with a leading seconds field.
func WithSeconds() Option {
	return func(s *Scheduler) {
		s.parser = rcron.NewParser(rcron.Second | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)
	}
}

// loggerAdapter maps robfig's key/value logger onto printf style logging.
type loggerAdapter struct {
	logger Logger
}

func (l loggerAdapter) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: %s%s", msg, formatKV(keysAndValues))
}

func (l loggerAdapter) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: %s: %v%s", msg, err, formatKV(keysAndValues))
}

func formatKV(kv []any) string {
	out := ""
	for i := 0; i+1 < len(kv); i += 2 {
		out += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
