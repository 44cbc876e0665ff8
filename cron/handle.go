package cron

import (
	"context"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Handle controls one scheduled trigger.
type Handle interface {
	Name() string
	// Runs counts completed executions, failed ones included.
	Runs() int64
	// Err is the error of the last run.
	Err() error
	// Next is the next activation, zero when cancelled or not started.
	Next() time.Time
	Cancel()
}

type handle struct {
	name      string
	id        rcron.EntryID
	scheduler *Scheduler

	mu      sync.Mutex
	runs    int64
	lastErr error
	once    sync.Once
}

func (h *handle) run(ctx context.Context, fn func(context.Context) error) {
	err := fn(ctx)
	h.mu.Lock()
	h.runs++
	h.lastErr = err
	h.mu.Unlock()
	if err != nil {
		h.scheduler.reportError(h.name, err)
	}
}

func (h *handle) Name() string { return h.name }

func (h *handle) Runs() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

func (h *handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *handle) Next() time.Time {
	return h.scheduler.next(h.id)
}

func (h *handle) Cancel() {
	h.once.Do(func() {
		h.scheduler.remove(h.id)
	})
}
