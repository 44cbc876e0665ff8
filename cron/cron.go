// Package cron runs named triggers on robfig/cron schedules.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Logger receives scheduler diagnostics. The engine logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// ErrStopped is returned by Start once Stop has been called.
var ErrStopped = errors.New("cron: scheduler stopped")

// Trigger is either a fixed Interval or a cron Spec. Intervals below one
// second are rounded up to one second.
type Trigger struct {
	Name     string
	Interval time.Duration
	Spec     string
}

func (t Trigger) label() string {
	switch {
	case t.Name != "":
		return t.Name
	case t.Spec != "":
		return t.Spec
	default:
		return t.Interval.String()
	}
}

func (t Trigger) schedule(parser rcron.ScheduleParser) (rcron.Schedule, error) {
	switch {
	case t.Spec != "":
		return parser.Parse(t.Spec)
	case t.Interval > 0:
		return rcron.Every(t.Interval), nil
	default:
		return nil, fmt.Errorf("trigger %s: interval or spec required", t.label())
	}
}

// Scheduler owns one robfig cron instance. Runs of the same trigger never
// overlap; a tick that finds the previous run still going is skipped.
type Scheduler struct {
	mu       sync.Mutex
	cron     *rcron.Cron
	parser   rcron.ScheduleParser
	location *time.Location
	logger   Logger
	onError  func(name string, err error)

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	handles map[rcron.EntryID]*handle
}

func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		parser:   rcron.NewParser(rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor),
		location: time.Local,
		logger:   nopLogger{},
		handles:  make(map[rcron.EntryID]*handle),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	adapter := loggerAdapter{logger: s.logger}
	s.cron = rcron.New(
		rcron.WithLocation(s.location),
		rcron.WithParser(s.parser),
		rcron.WithLogger(adapter),
		rcron.WithChain(rcron.Recover(adapter), rcron.SkipIfStillRunning(adapter)),
	)
	return s
}

// Schedule registers fn under t. fn receives a context cancelled by Stop.
func (s *Scheduler) Schedule(t Trigger, fn func(context.Context) error) (Handle, error) {
	if fn == nil {
		return nil, fmt.Errorf("trigger %s: nil handler", t.label())
	}
	sched, err := t.schedule(s.parser)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", t.label(), err)
	}

	h := &handle{name: t.label(), scheduler: s}
	id := s.cron.Schedule(sched, rcron.FuncJob(func() {
		h.run(s.runContext(), fn)
	}))

	s.mu.Lock()
	h.id = id
	s.handles[id] = h
	s.mu.Unlock()
	return h, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	// a stopped scheduler has cancelled the context every run inherits
	if s.ctx.Err() != nil {
		return ErrStopped
	}
	s.running = true
	s.cron.Start()
	return nil
}

// Stop halts the schedule, cancels the context of in-flight runs and waits
// for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	stopped := s.cron.Stop()
	s.cancel()
	if ctx == nil {
		return nil
	}
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Len is the number of registered triggers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) remove(id rcron.EntryID) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
	s.cron.Remove(id)
}

func (s *Scheduler) next(id rcron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *Scheduler) reportError(name string, err error) {
	if s.onError != nil {
		s.onError(name, err)
		return
	}
	s.logger.Error("trigger %s: %v", name, err)
}
