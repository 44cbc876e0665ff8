package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/goliatone/go-job/engine"
)

// SlogLogger formats engine printf calls and writes them through slog, so
// fields become slog attributes.
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

var (
	_ engine.Logger       = SlogLogger{}
	_ engine.FieldsLogger = SlogLogger{}
)

func NewSlog(logger *slog.Logger) SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogLogger{logger: logger, ctx: context.Background()}
}

func (l SlogLogger) Trace(msg string, args ...any) { l.log(LevelTrace, msg, args...) }
func (l SlogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l SlogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l SlogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l SlogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }
func (l SlogLogger) Fatal(msg string, args ...any) { l.log(LevelFatal, msg, args...) }

func (l SlogLogger) WithContext(ctx context.Context) engine.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	l.ctx = ctx
	return l
}

func (l SlogLogger) WithFields(fields map[string]any) engine.Logger {
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	l.logger = l.logger.With(attrs...)
	return l
}

func (l SlogLogger) log(level slog.Level, msg string, args ...any) {
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logger.Log(ctx, level, msg)
}
