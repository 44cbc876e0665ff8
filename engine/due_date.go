package engine

import (
	"context"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/cron"
	"github.com/goliatone/go-job/store"
)

const triggerStopTimeout = time.Second

// armTriggers schedules the deadline and backoff scans. A tick only enqueues
// a work item, the scan itself runs on the processing goroutine.
func (e *Engine) armTriggers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scheduler != nil || e.phase != PhaseProcessing {
		return
	}
	if e.timeoutInterval <= 0 && e.backoffInterval <= 0 {
		return
	}

	s := cron.NewScheduler(
		cron.WithLogger(e.logger),
		cron.WithErrorHandler(func(name string, err error) {
			e.logger.Warn("trigger %s: %v", name, err)
		}),
	)
	triggers := []struct {
		trigger cron.Trigger
		kind    itemKind
	}{
		{cron.Trigger{Name: "job-timeouts", Interval: e.timeoutInterval}, itemTimeoutTick},
		{cron.Trigger{Name: "job-backoffs", Interval: e.backoffInterval}, itemBackoffTick},
	}
	for _, tr := range triggers {
		if tr.trigger.Interval <= 0 {
			continue
		}
		if _, err := s.Schedule(tr.trigger, e.enqueueTick(tr.kind)); err != nil {
			e.logger.Error("schedule %s: %v", tr.trigger.Name, err)
		}
	}
	if err := s.Start(context.Background()); err != nil {
		e.logger.Error("start triggers: %v", err)
		return
	}
	e.scheduler = s
}

func (e *Engine) disarmTriggers() {
	e.mu.Lock()
	s := e.scheduler
	e.scheduler = nil
	e.mu.Unlock()
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), triggerStopTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		e.logger.Warn("stop triggers: %v", err)
	}
}

// enqueueTick drops the tick when the queue is full, the next one catches up.
func (e *Engine) enqueueTick(kind itemKind) func(context.Context) error {
	return func(context.Context) error {
		if e.Phase() != PhaseProcessing {
			return nil
		}
		item := workItem{kind: kind, ctx: context.Background(), reply: make(chan result, 1)}
		select {
		case e.queue <- item:
		default:
			e.logger.Debug("work queue full, skipping trigger tick")
		}
		return nil
	}
}

// emitTimeouts appends a TimeOut command for every ACTIVATED job past its
// deadline. It stops at the first append failure and leaves the rest for
// the next tick.
func (e *Engine) emitTimeouts(ctx context.Context) error {
	return e.emitDue(ctx, func(r store.Reader, now int64, visit store.Visitor) error {
		return r.ForEachTimedOut(ctx, now, visit)
	}, func(key int64) job.Command {
		return job.TimeOut{Key: key}
	})
}

// emitBackoffs appends RecurAfterBackoff for FAILED jobs whose backoff elapsed.
func (e *Engine) emitBackoffs(ctx context.Context) error {
	return e.emitDue(ctx, func(r store.Reader, now int64, visit store.Visitor) error {
		return r.ForEachBackedOff(ctx, now, visit)
	}, func(key int64) job.Command {
		return job.RecurAfterBackoff{Key: key}
	})
}

func (e *Engine) emitDue(
	ctx context.Context,
	scan func(store.Reader, int64, store.Visitor) error,
	build func(key int64) job.Command,
) error {
	now := e.clock().UnixMilli()
	var keys []int64
	err := e.store.View(ctx, func(r store.Reader) error {
		return scan(r, now, func(key int64, _ *job.Job) (bool, error) {
			keys = append(keys, key)
			return true, nil
		})
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		cmd := build(key)
		if _, err := e.log.AppendCommand(ctx, key, cmd, now, 0); err != nil {
			return err
		}
	}
	return nil
}
