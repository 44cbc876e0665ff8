package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/cron"
	"github.com/goliatone/go-job/logstream"
	"github.com/goliatone/go-job/store"
)

// Phase is the lifecycle phase of an engine.
type Phase string

const (
	PhaseInitial    Phase = "INITIAL"
	PhaseProcessing Phase = "PROCESSING"
	PhasePaused     Phase = "PAUSED"
	PhaseClosed     Phase = "CLOSED"
	PhaseFailed     Phase = "FAILED"
)

// Health is a point in time view of the engine for operators.
type Health struct {
	Phase             Phase  `json:"phase"`
	Healthy           bool   `json:"healthy"`
	Error             string `json:"error,omitempty"`
	LastPosition      int64  `json:"lastPosition"`
	ProcessedPosition int64  `json:"processedPosition"`
	PendingCommands   int    `json:"pendingCommands"`
}

type itemKind int

const (
	itemCommand itemKind = iota
	itemTimeoutTick
	itemBackoffTick
)

type workItem struct {
	kind  itemKind
	ctx   context.Context
	cmd   job.Command
	reply chan result
}

type result struct {
	resp Response
	err  error
}

// Engine processes job commands one at a time on a single goroutine. Client
// commands and timer ticks share one queue, so processing order is the log
// order and replaying the log reproduces every record.
type Engine struct {
	store       store.Store
	log         *logstream.Log
	clock       func() time.Time
	logger      Logger
	meter       metric.Meter
	metrics     *metrics
	variables   VariableStore
	catchEvents CatchEventResolver
	panicLogger job.PanicLogger

	timeoutInterval time.Duration
	backoffInterval time.Duration
	queueSize       int

	queue chan workItem
	stop  chan struct{}
	done  chan struct{}

	mu        sync.RWMutex
	phase     Phase
	fatalErr  error
	scheduler *cron.Scheduler
	started   bool

	processed atomic.Int64
	// owned by the processing goroutine
	nextRequestID int64
}

// New wires an engine around its store and log. Call Start to begin processing.
func New(st store.Store, log *logstream.Log, opts ...Option) *Engine {
	e := &Engine{
		store:           st,
		log:             log,
		clock:           time.Now,
		logger:          NewFmtLogger(nil),
		variables:       NewMemoryVariables(),
		catchEvents:     noCatchEvents{},
		timeoutInterval: DefaultTimeoutCheckInterval,
		backoffInterval: DefaultBackoffCheckInterval,
		queueSize:       DefaultQueueSize,
		phase:           PhaseInitial,
	}
	if e.log == nil {
		e.log = logstream.New()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.metrics = newMetrics(e.meter)
	e.queue = make(chan workItem, e.queueSize)
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	return e
}

func (e *Engine) Log() *logstream.Log { return e.log }

func (e *Engine) Store() store.Store { return e.store }

// Start processes commands already in the log, then starts the consumer
// goroutine and arms the triggers.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.phase != PhaseInitial {
		phase := e.phase
		e.mu.Unlock()
		return cloneRuntimeError(ErrNotProcessing, fmt.Sprintf("engine cannot start from phase %s", phase), nil, nil)
	}
	if e.store == nil {
		e.mu.Unlock()
		return store.ErrNotConfigured
	}
	e.phase = PhaseProcessing
	e.mu.Unlock()

	if _, err := e.processPending(ctx); err != nil {
		e.fail(err)
		return e.Err()
	}

	e.mu.Lock()
	e.started = true
	e.mu.Unlock()
	go e.run()
	e.armTriggers()
	e.logger.Info("job engine started at position %d", e.processed.Load())
	return nil
}

// Pause stops accepting commands and disarms the triggers.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.phase != PhaseProcessing {
		e.mu.Unlock()
		return
	}
	e.phase = PhasePaused
	e.mu.Unlock()
	e.disarmTriggers()
	e.logger.Info("job engine paused")
}

// Resume re-opens a paused engine and re-arms the triggers.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.phase != PhasePaused {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseProcessing
	e.mu.Unlock()
	e.armTriggers()
	e.logger.Info("job engine resumed")
}

// Close stops the triggers and the consumer goroutine.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	wasRunning := e.started
	alreadyClosed := e.phase == PhaseClosed
	if e.phase != PhaseFailed {
		e.phase = PhaseClosed
	}
	e.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	e.disarmTriggers()
	if !wasRunning {
		return nil
	}
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
	select {
	case <-e.done:
		e.logger.Info("job engine closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

// Err returns the fatal error that stopped the engine, if any.
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fatalErr
}

func (e *Engine) Health() Health {
	e.mu.RLock()
	h := Health{
		Phase:   e.phase,
		Healthy: e.phase == PhaseProcessing || e.phase == PhasePaused,
	}
	if e.fatalErr != nil {
		h.Error = e.fatalErr.Error()
	}
	e.mu.RUnlock()
	h.LastPosition = e.log.LastPosition()
	h.PendingCommands = e.log.Pending()
	h.ProcessedPosition = e.processed.Load()
	return h
}

// Submit appends cmd to the log and waits for the outcome. Rejections are
// returned inside the Response, errors mean the command was not processed or
// the engine failed.
func (e *Engine) Submit(ctx context.Context, cmd job.Command) (Response, error) {
	if cmd == nil || job.IsNilMessage(cmd) {
		return Response{}, cloneRuntimeError(job.ErrValidation, "nil command", nil, nil)
	}
	if err := e.ensureProcessing(); err != nil {
		return Response{}, err
	}
	item := workItem{kind: itemCommand, ctx: ctx, cmd: cmd, reply: make(chan result, 1)}
	return e.await(ctx, item)
}

// CheckTimeouts runs the deadline scan now instead of waiting for the next tick.
func (e *Engine) CheckTimeouts(ctx context.Context) error {
	return e.tick(ctx, itemTimeoutTick)
}

// CheckBackoffs runs the retry backoff scan now.
func (e *Engine) CheckBackoffs(ctx context.Context) error {
	return e.tick(ctx, itemBackoffTick)
}

// OnJobsAvailable forwards to the store notification. fn runs on the
// processing goroutine and must not block.
func (e *Engine) OnJobsAvailable(fn func(jobType string)) {
	e.store.OnJobsAvailable(fn)
}

// View gives read access to the store for queries.
func (e *Engine) View(ctx context.Context, fn func(store.Reader) error) error {
	return e.store.View(ctx, fn)
}

func (e *Engine) tick(ctx context.Context, kind itemKind) error {
	if err := e.ensureProcessing(); err != nil {
		return err
	}
	_, err := e.await(ctx, workItem{kind: kind, ctx: ctx, reply: make(chan result, 1)})
	return err
}

func (e *Engine) await(ctx context.Context, item workItem) (Response, error) {
	select {
	case e.queue <- item:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-e.done:
		return Response{}, e.notProcessing()
	}
	select {
	case res := <-item.reply:
		return res.resp, res.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-e.done:
		select {
		case res := <-item.reply:
			return res.resp, res.err
		default:
			return Response{}, e.notProcessing()
		}
	}
}

func (e *Engine) ensureProcessing() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.phase == PhaseProcessing {
		return nil
	}
	return e.notProcessingLocked()
}

func (e *Engine) notProcessing() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.notProcessingLocked()
}

func (e *Engine) notProcessingLocked() error {
	return cloneRuntimeError(ErrNotProcessing, fmt.Sprintf("engine is %s", e.phase), e.fatalErr, map[string]any{
		"phase": string(e.phase),
	})
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.stop:
			return
		case item := <-e.queue:
			e.handle(item)
			if e.Phase() == PhaseFailed {
				e.drain()
				return
			}
		}
	}
}

// drain answers queued items after a fatal error so no submitter hangs.
func (e *Engine) drain() {
	for {
		select {
		case item := <-e.queue:
			item.reply <- result{err: e.notProcessing()}
		default:
			return
		}
	}
}

func (e *Engine) handle(item workItem) {
	ctx := context.Background()
	if item.ctx != nil {
		// a submitter giving up must not abort a unit of work half way
		ctx = context.WithoutCancel(item.ctx)
	}
	if err := e.ensureProcessing(); err != nil {
		item.reply <- result{err: err}
		return
	}

	switch item.kind {
	case itemCommand:
		resp, err := e.handleCommand(ctx, item.cmd)
		item.reply <- result{resp: resp, err: err}
	case itemTimeoutTick:
		item.reply <- result{err: e.handleTick(ctx, e.emitTimeouts)}
	case itemBackoffTick:
		item.reply <- result{err: e.handleTick(ctx, e.emitBackoffs)}
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd job.Command) (Response, error) {
	e.nextRequestID++
	rec, err := e.log.AppendCommand(ctx, cmd.JobKey(), cmd, e.clock().UnixMilli(), e.nextRequestID)
	if err != nil {
		e.logger.Warn("append %s command failed: %v", cmd.Intent(), err)
		return Response{}, err
	}
	responses, err := e.processPending(ctx)
	if err != nil {
		e.fail(err)
		return Response{}, e.Err()
	}
	resp, ok := responses[rec.Position]
	if !ok {
		return Response{}, cloneRuntimeError(ErrFatal, "command was not processed", nil, map[string]any{"position": rec.Position})
	}
	return resp, nil
}

func (e *Engine) handleTick(ctx context.Context, emit func(context.Context) error) error {
	if err := emit(ctx); err != nil {
		e.logger.Warn("trigger scan failed: %v", err)
	}
	if _, err := e.processPending(ctx); err != nil {
		e.fail(err)
		return e.Err()
	}
	return nil
}

// processPending processes every engine command after the last processed
// position, including commands appended while doing so.
func (e *Engine) processPending(ctx context.Context) (map[int64]Response, error) {
	out := make(map[int64]Response)
	for {
		records := e.log.ReadFrom(e.processed.Load() + 1)
		if len(records) == 0 {
			return out, nil
		}
		for _, rec := range records {
			e.processed.Store(rec.Position)
			if !rec.IsEngineCommand() {
				continue
			}
			resp, err := e.processRecord(ctx, rec)
			if rec.IsExternalCommand() {
				e.log.MarkProcessed(rec.Position)
			}
			if err != nil {
				return out, err
			}
			out[rec.Position] = resp
		}
	}
}

func (e *Engine) processRecord(ctx context.Context, rec logstream.Record) (Response, error) {
	logger := e.recordLogger(ctx, rec)

	cmd, err := rec.Command()
	if err != nil {
		return Response{}, cloneRuntimeError(ErrCorruptRecord, fmt.Sprintf("decode command at position %d", rec.Position), err, nil)
	}

	batch, err := e.runUnit(ctx, rec, cmd)
	if logstream.IsRecordTooLarge(err) {
		logger.Warn("command produced an oversized record: %v", err)
		batch = logstream.NewBatch(rec, e.log.MaxRecordLength())
		rej := job.NewRejection(job.RejectInvalidArgument, rec.Intent, rec.Key, "the resulting record exceeds the max record length")
		err = batch.Reject(rej)
	}
	if err != nil {
		return Response{}, cloneRuntimeError(ErrFatal, fmt.Sprintf("process %s/%s at position %d", rec.ValueType, rec.Intent, rec.Position), err, map[string]any{
			"position": rec.Position,
			"key":      rec.Key,
		})
	}

	written, err := e.log.Commit(batch)
	if err != nil {
		return Response{}, cloneRuntimeError(ErrFatal, "commit records", err, nil)
	}
	e.metrics.recordWritten(ctx, written)
	e.logWritten(logger, written)

	return buildResponse(rec, written)
}

// runUnit applies one command inside a store transaction. Any error or panic
// discards both the store changes and the collected records.
func (e *Engine) runUnit(ctx context.Context, rec logstream.Record, cmd job.Command) (batch *logstream.Batch, err error) {
	defer job.CapturePanic(&err, "engine.process", e.panicLogger, map[string]any{
		"position": rec.Position,
		"intent":   string(rec.Intent),
	})

	batch = logstream.NewBatch(rec, e.log.MaxRecordLength())
	err = e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		u := &unit{
			ctx:    ctx,
			tx:     tx,
			w:      batch,
			guard:  NewGuard(tx),
			source: rec,
		}
		return e.dispatch(u, cmd)
	})
	return batch, err
}

func (e *Engine) logWritten(logger Logger, written []logstream.Record) {
	for _, rec := range written {
		switch {
		case rec.RecordType == job.RecordCommandRejection:
			logger.Info("command rejected %s: %s", rec.RejectionType, rec.RejectionReason)
		case rec.RecordType == job.RecordEvent && rec.ValueType == job.ValueIncident:
			logger.Warn("incident %d created for job", rec.Key)
		default:
			logger.Debug("wrote %s %s/%s key=%d", rec.RecordType, rec.ValueType, rec.Intent, rec.Key)
		}
	}
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	if e.phase == PhaseFailed {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseFailed
	e.fatalErr = err
	e.mu.Unlock()

	e.logger.Error("job engine failed: %v", err)
	e.disarmTriggers()
}
