package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("DEBUG " + fmt.Sprintf(msg, args...)) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("ERROR " + fmt.Sprintf(msg, args...)) }

func (l *recordingLogger) add(line string) {
	l.mu.Lock()
	l.lines = append(l.lines, line)
	l.mu.Unlock()
}

func (l *recordingLogger) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func stop(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestIntervalTriggerRuns(t *testing.T) {
	s := NewScheduler()
	var count atomic.Int32

	h, err := s.Schedule(Trigger{Name: "tick", Interval: time.Second}, func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !h.Next().IsZero() {
		t.Fatalf("expected no activation before start, got %s", h.Next())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.Running() {
		t.Fatal("expected scheduler to be running")
	}

	waitFor(t, 3*time.Second, func() bool { return count.Load() >= 1 })
	if h.Runs() < 1 {
		t.Fatalf("expected runs to be counted, got %d", h.Runs())
	}
	if h.Name() != "tick" {
		t.Fatalf("unexpected name %q", h.Name())
	}

	stop(t, s)
	if s.Running() {
		t.Fatal("expected scheduler to be stopped")
	}
}

func TestScheduleRejectsInvalidTriggers(t *testing.T) {
	s := NewScheduler()
	noop := func(context.Context) error { return nil }

	if _, err := s.Schedule(Trigger{Name: "empty"}, noop); err == nil || !strings.Contains(err.Error(), "interval or spec required") {
		t.Fatalf("expected missing schedule error, got %v", err)
	}
	if _, err := s.Schedule(Trigger{Spec: "not a spec"}, noop); err == nil || !strings.Contains(err.Error(), "not a spec") {
		t.Fatalf("expected parse error naming the spec, got %v", err)
	}
	if _, err := s.Schedule(Trigger{Interval: time.Second}, nil); err == nil {
		t.Fatal("expected nil handler error")
	}
	if _, err := s.Schedule(Trigger{Spec: "*/5 * * * * *"}, noop); err == nil {
		t.Fatal("expected seconds field to be rejected by the default parser")
	}

	withSeconds := NewScheduler(WithSeconds())
	if _, err := withSeconds.Schedule(Trigger{Spec: "*/5 * * * * *"}, noop); err != nil {
		t.Fatalf("expected seconds spec to parse: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected no registered triggers, got %d", s.Len())
	}
}

func TestCancelRemovesTrigger(t *testing.T) {
	s := NewScheduler()
	var count atomic.Int32

	h, err := s.Schedule(Trigger{Spec: "@every 1s"}, func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stop(t, s)

	if h.Next().IsZero() {
		t.Fatal("expected next activation while scheduled")
	}
	h.Cancel()
	h.Cancel()
	if s.Len() != 0 {
		t.Fatalf("expected trigger to be removed, got %d", s.Len())
	}
	if !h.Next().IsZero() {
		t.Fatal("expected no next activation after cancel")
	}

	time.Sleep(1200 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Fatalf("expected no executions after cancel, got %d", got)
	}
}

func TestHandlerErrorsReachErrorHandler(t *testing.T) {
	var (
		mu    sync.Mutex
		names []string
	)
	boom := errors.New("boom")
	s := NewScheduler(WithErrorHandler(func(name string, err error) {
		if !errors.Is(err, boom) {
			t.Errorf("unexpected error %v", err)
		}
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
	}))

	h, err := s.Schedule(Trigger{Name: "failing", Interval: time.Second}, func(context.Context) error {
		return boom
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stop(t, s)

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(names) > 0
	})
	mu.Lock()
	first := names[0]
	mu.Unlock()
	if first != "failing" {
		t.Fatalf("expected trigger name, got %q", first)
	}
	if !errors.Is(h.Err(), boom) {
		t.Fatalf("expected last error to be kept, got %v", h.Err())
	}
}

func TestPanicsAreRecoveredAndLogged(t *testing.T) {
	logger := &recordingLogger{}
	s := NewScheduler(WithLogger(logger))
	var calls atomic.Int32

	if _, err := s.Schedule(Trigger{Interval: time.Second}, func(context.Context) error {
		calls.Add(1)
		panic("trigger exploded")
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stop(t, s)

	waitFor(t, 3*time.Second, func() bool { return logger.contains("trigger exploded") })
	if !s.Running() {
		t.Fatal("expected scheduler to survive the panic")
	}
}

func TestStopCancelsRunningHandlers(t *testing.T) {
	s := NewScheduler()
	started := make(chan struct{})
	var once sync.Once

	if _, err := s.Schedule(Trigger{Interval: time.Second}, func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("handler did not start")
	}
	stop(t, s)
}

func TestStartAfterStopFails(t *testing.T) {
	s := NewScheduler()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stop(t, s)

	if err := s.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if s.Running() {
		t.Fatalf("stopped scheduler reports running")
	}
}

func TestStartHonoursCancelledContext(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Running() {
		t.Fatalf("scheduler started with a cancelled context")
	}
}
