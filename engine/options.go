package engine

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	job "github.com/goliatone/go-job"
)

const (
	DefaultTimeoutCheckInterval = 30 * time.Second
	DefaultBackoffCheckInterval = time.Second
	DefaultQueueSize            = 256
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used to stamp commands and run triggers.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMeter injects the meter used for engine instruments.
func WithMeter(meter metric.Meter) Option {
	return func(e *Engine) {
		e.meter = meter
	}
}

func WithVariableStore(vars VariableStore) Option {
	return func(e *Engine) {
		if vars != nil {
			e.variables = vars
		}
	}
}

func WithCatchEventResolver(resolver CatchEventResolver) Option {
	return func(e *Engine) {
		if resolver != nil {
			e.catchEvents = resolver
		}
	}
}

// WithTimeoutCheckInterval sets the deadline scan period. Zero disables the trigger.
func WithTimeoutCheckInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.timeoutInterval = d
	}
}

// WithBackoffCheckInterval sets the retry backoff scan period. Zero disables the trigger.
func WithBackoffCheckInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.backoffInterval = d
	}
}

func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

func WithPanicLogger(logger job.PanicLogger) Option {
	return func(e *Engine) {
		e.panicLogger = logger
	}
}
