package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-job/logstream"
)

// Logger is the engine logging contract. Messages are printf formats.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// FieldsLogger extends Logger with structured-field support.
type FieldsLogger interface {
	WithFields(map[string]any) Logger
}

// recordFields are the fields recordLogger attaches, rendered first and in
// log order by FmtLogger.
var recordFields = []string{"position", "key", "value_type", "intent"}

// FmtLogger is the default logger. Lines look like
//
//	2024-01-02T15:04:05Z INFO  command rejected position=3 key=7 value_type=JOB intent=COMPLETE
//
// with any other fields sorted after the record fields.
type FmtLogger struct {
	out    io.Writer
	fields map[string]any
}

// NewFmtLogger writes to stdout when out is nil.
func NewFmtLogger(out io.Writer) *FmtLogger {
	if out == nil {
		out = os.Stdout
	}
	return &FmtLogger{out: out}
}

// DiscardLogger drops every entry without formatting it.
func DiscardLogger() *FmtLogger {
	return &FmtLogger{out: io.Discard}
}

func (l *FmtLogger) Trace(msg string, args ...any) { l.log("TRACE", msg, args...) }
func (l *FmtLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args...) }
func (l *FmtLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args...) }
func (l *FmtLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args...) }
func (l *FmtLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args...) }
func (l *FmtLogger) Fatal(msg string, args ...any) { l.log("FATAL", msg, args...) }

// WithContext is a no-op, nothing in the context is rendered.
func (l *FmtLogger) WithContext(context.Context) Logger { return l }

func (l *FmtLogger) WithFields(fields map[string]any) Logger {
	out := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return &FmtLogger{out: l.out, fields: out}
}

func (l *FmtLogger) log(level, msg string, args ...any) {
	if l.out == io.Discard {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", time.Now().UTC().Format(time.RFC3339Nano), level, strings.TrimSpace(msg))
	for _, k := range l.fieldOrder() {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	fmt.Fprintln(l.out, b.String())
}

func (l *FmtLogger) fieldOrder() []string {
	keys := make([]string, 0, len(l.fields))
	for _, k := range recordFields {
		if _, ok := l.fields[k]; ok {
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(l.fields))
	for k := range l.fields {
		if !slices.Contains(recordFields, k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

// recordLogger scopes the engine logger to the record being processed.
func (e *Engine) recordLogger(ctx context.Context, rec logstream.Record) Logger {
	logger := e.logger.WithContext(ctx)
	fl, ok := logger.(FieldsLogger)
	if !ok {
		return logger
	}
	return fl.WithFields(map[string]any{
		"position":   rec.Position,
		"key":        rec.Key,
		"value_type": string(rec.ValueType),
		"intent":     string(rec.Intent),
	})
}
