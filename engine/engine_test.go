package engine

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/logstream"
	"github.com/goliatone/go-job/store"
	"github.com/goliatone/go-job/store/sqlstore"
)

const startMillis int64 = 1_700_000_000_000

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.UnixMilli(startMillis)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine *Engine
	store  store.Store
	log    *logstream.Log
	clock  *testClock
}

// newHarness starts an engine with triggers disabled; tests drive the scans
// through CheckTimeouts and CheckBackoffs.
func newHarness(t *testing.T, log *logstream.Log, opts ...Option) *harness {
	t.Helper()
	return newHarnessOn(t, store.NewMemoryStore(), log, opts...)
}

// newSQLHarness runs the engine against an in-memory sqlite store.
func newSQLHarness(t *testing.T, log *logstream.Log, opts ...Option) *harness {
	t.Helper()
	st, err := sqlstore.Open(context.Background(), sqlstore.Config{
		Driver: sqlstore.DriverSQLite,
		DSN:    ":memory:",
	})
	require.NoError(t, err)
	// cleanups run last-in first-out, the engine closes before the store
	t.Cleanup(func() { _ = st.Close() })
	return newHarnessOn(t, st, log, opts...)
}

// storeHarnesses lists one harness constructor per store implementation.
var storeHarnesses = []struct {
	name string
	new  func(t *testing.T, log *logstream.Log, opts ...Option) *harness
}{
	{"memory", newHarness},
	{"sqlite", newSQLHarness},
}

func newHarnessOn(t *testing.T, st store.Store, log *logstream.Log, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store: st,
		log:   log,
		clock: newTestClock(),
	}
	if h.log == nil {
		h.log = logstream.New()
	}
	base := []Option{
		WithClock(h.clock.Now),
		WithLogger(DiscardLogger()),
		WithPanicLogger(func(string, any, []byte, ...map[string]any) {}),
		WithTimeoutCheckInterval(0),
		WithBackoffCheckInterval(0),
	}
	h.engine = New(h.store, h.log, append(base, opts...)...)
	require.NoError(t, h.engine.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.engine.Close(ctx)
	})
	return h
}

func (h *harness) submit(t *testing.T, cmd job.Command) Response {
	t.Helper()
	resp, err := h.engine.Submit(context.Background(), cmd)
	require.NoError(t, err)
	return resp
}

func (h *harness) create(t *testing.T, j job.Job) int64 {
	t.Helper()
	if j.Retries == 0 {
		j.Retries = 3
	}
	resp := h.submit(t, job.Create{Job: j})
	require.True(t, resp.Accepted(), "create rejected: %s", resp.Rejection)
	return resp.Key
}

func (h *harness) activate(t *testing.T, jobType string, max int, timeout int64) *job.Batch {
	t.Helper()
	resp := h.submit(t, job.ActivateBatch{JobType: jobType, Worker: "worker-1", MaxJobsToActivate: max, Timeout: timeout})
	require.True(t, resp.Accepted(), "activation rejected: %s", resp.Rejection)
	require.NotNil(t, resp.Batch)
	return resp.Batch
}

func (h *harness) state(t *testing.T, key int64) job.State {
	t.Helper()
	var state job.State
	err := h.store.View(context.Background(), func(r store.Reader) error {
		var err error
		state, err = r.Classify(context.Background(), key)
		return err
	})
	require.NoError(t, err)
	return state
}

func (h *harness) get(t *testing.T, key int64) *job.Job {
	t.Helper()
	var out *job.Job
	err := h.store.View(context.Background(), func(r store.Reader) error {
		var err error
		out, _, err = r.Get(context.Background(), key)
		return err
	})
	require.NoError(t, err)
	return out
}

func (h *harness) incidents(t *testing.T, jobKey int64) []job.Incident {
	t.Helper()
	var out []job.Incident
	err := h.store.View(context.Background(), func(r store.Reader) error {
		var err error
		out, err = r.Incidents(context.Background(), jobKey)
		return err
	})
	require.NoError(t, err)
	return out
}

func intents(records []logstream.Record) []job.Intent {
	out := make([]job.Intent, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Intent)
	}
	return out
}

func TestEngineLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, PhaseProcessing, h.engine.Phase())
	assert.True(t, h.engine.Health().Healthy)

	key := h.create(t, job.Job{Type: "pay"})
	assert.Equal(t, int64(1), key)

	h.engine.Pause()
	assert.Equal(t, PhasePaused, h.engine.Phase())
	_, err := h.engine.Submit(context.Background(), job.Cancel{Key: key})
	require.Error(t, err)
	assert.True(t, IsNotProcessing(err))
	assert.Equal(t, job.StateActivatable, h.state(t, key))

	h.engine.Resume()
	resp := h.submit(t, job.Cancel{Key: key})
	assert.True(t, resp.Accepted())
	assert.Equal(t, job.StateNotFound, h.state(t, key))

	health := h.engine.Health()
	assert.Equal(t, h.log.LastPosition(), health.LastPosition)
	assert.Equal(t, health.LastPosition, health.ProcessedPosition)
	assert.Zero(t, health.PendingCommands)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.engine.Close(ctx))
	assert.Equal(t, PhaseClosed, h.engine.Phase())
	_, err = h.engine.Submit(context.Background(), job.Cancel{Key: key})
	assert.True(t, IsNotProcessing(err))
}

func TestEngineStartTwice(t *testing.T) {
	h := newHarness(t, nil)
	err := h.engine.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotProcessing(err))
}

func TestEngineRejectsNilCommand(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.engine.Submit(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, job.IsValidation(err))
}

func TestEngineProcessesCommandsWrittenBeforeStart(t *testing.T) {
	log := logstream.New()
	_, err := log.AppendCommand(context.Background(), -1, job.Create{Job: job.Job{Type: "pay", Retries: 1}}, startMillis, 0)
	require.NoError(t, err)

	h := newHarness(t, log)
	assert.Equal(t, job.StateActivatable, h.state(t, 1))
	assert.Equal(t, []job.Intent{job.IntentCreate, job.IntentCreated}, intents(log.Records()))
	assert.Zero(t, log.Pending())
}

type panickingResolver struct {
	noCatchEvents
}

func (panickingResolver) FindCatchEvent(context.Context, string, int64) (CatchEvent, bool, error) {
	panic("resolver exploded")
}

func TestEngineFailsOnPanicAndRollsBack(t *testing.T) {
	h := newHarness(t, nil, WithCatchEventResolver(panickingResolver{}))
	key := h.create(t, job.Job{Type: "pay", ElementInstanceKey: 10})
	before := h.log.LastPosition()

	_, err := h.engine.Submit(context.Background(), job.ThrowError{Key: key, ErrorCode: "E1"})
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	assert.Equal(t, PhaseFailed, h.engine.Phase())
	health := h.engine.Health()
	assert.False(t, health.Healthy)
	assert.NotEmpty(t, health.Error)

	// only the command itself reached the log
	assert.Equal(t, before+1, h.log.LastPosition())
	j := h.get(t, key)
	require.NotNil(t, j)
	assert.Empty(t, j.ErrorCode)
	assert.Equal(t, job.StateActivatable, h.state(t, key))

	_, err = h.engine.Submit(context.Background(), job.Cancel{Key: key})
	assert.True(t, IsNotProcessing(err))
}

func TestEngineLogsThroughConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	h := newHarness(t, nil, WithLogger(NewFmtLogger(&buf)))
	h.submit(t, job.Complete{Key: 999})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.engine.Close(ctx))

	out := buf.String()
	assert.Contains(t, out, "command rejected NOT_FOUND")
	assert.Regexp(t, `position=\d+ key=999 value_type=JOB intent=COMPLETE`, out)
}

func TestNilLoggerFallsBackToFmt(t *testing.T) {
	e := New(store.NewMemoryStore(), nil, WithLogger(nil))
	_, ok := e.logger.(*FmtLogger)
	assert.True(t, ok)
}

func TestFmtLoggerRendersRecordFieldsFirst(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFmtLogger(&buf).WithFields(map[string]any{
		"zeta":       1,
		"intent":     "CREATE",
		"alpha":      2,
		"position":   4,
		"key":        7,
		"value_type": "JOB",
	})
	logger.Info("hello %s", "world")
	assert.Contains(t, buf.String(), "INFO  hello world position=4 key=7 value_type=JOB intent=CREATE alpha=2 zeta=1")

	buf.Reset()
	logger.(FieldsLogger).WithFields(map[string]any{"key": 8}).Warn("again")
	assert.Contains(t, buf.String(), "WARN  again position=4 key=8 value_type=JOB intent=CREATE alpha=2 zeta=1")
}

func TestDiscardLoggerWritesNothing(t *testing.T) {
	logger := DiscardLogger()
	assert.NotPanics(t, func() {
		logger.WithFields(map[string]any{"key": 1}).Error("dropped %d", 1)
	})
}
