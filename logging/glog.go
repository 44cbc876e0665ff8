package logging

import (
	"context"

	"github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-job/engine"
)

// GlogLogger passes engine log calls through to a go-logger logger.
type GlogLogger struct {
	logger glog.Logger
}

var (
	_ engine.Logger       = GlogLogger{}
	_ engine.FieldsLogger = GlogLogger{}
)

func NewGlog(logger glog.Logger) GlogLogger {
	return GlogLogger{logger: logger}
}

func (l GlogLogger) Trace(msg string, args ...any) { l.logger.Trace(msg, args...) }
func (l GlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l GlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l GlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l GlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l GlogLogger) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l GlogLogger) WithContext(ctx context.Context) engine.Logger {
	if l.logger == nil {
		return engine.NewFmtLogger(nil).WithContext(ctx)
	}
	return GlogLogger{logger: l.logger.WithContext(ctx)}
}

func (l GlogLogger) WithFields(fields map[string]any) engine.Logger {
	if l.logger == nil {
		return engine.NewFmtLogger(nil).WithFields(fields)
	}
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return GlogLogger{logger: fl.WithFields(fields)}
	}
	return l
}
