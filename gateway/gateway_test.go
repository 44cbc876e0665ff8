package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/engine"
	"github.com/goliatone/go-job/logstream"
	"github.com/goliatone/go-job/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	engine *engine.Engine
	server *Server
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := engine.NewFmtLogger(io.Discard)
	eng := engine.New(store.NewMemoryStore(), logstream.New(),
		engine.WithLogger(logger),
		engine.WithTimeoutCheckInterval(0),
		engine.WithBackoffCheckInterval(0),
	)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = eng.Close(ctx)
	})
	srv := New(eng, WithLogger(logger), WithLongPollTimeout(time.Second))
	return &fixture{engine: eng, server: srv, router: srv.Router()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (f *fixture) createJob(t *testing.T, jobType string) int64 {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/jobs", gin.H{"type": jobType, "retries": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[jobView](t, w).Key
}

func (f *fixture) activate(t *testing.T, jobType string) activateJobsResponse {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/jobs/activation", gin.H{
		"type": jobType, "worker": "w1", "timeout": 60000, "maxJobsToActivate": 10, "requestTimeout": -1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[activateJobsResponse](t, w)
}

func TestCreateAndGetJob(t *testing.T) {
	f := newFixture(t)
	key := f.createJob(t, "pay")
	assert.Equal(t, int64(1), key)

	w := f.do(t, http.MethodGet, "/v1/jobs/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[jobView](t, w)
	assert.Equal(t, "pay", view.Type)
	assert.Equal(t, job.StateActivatable, view.State)
	assert.Equal(t, 3, view.Retries)
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/jobs", gin.H{"type": "pay", "retries": 0})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[errorResponse](t, w)
	assert.Equal(t, "INVALID_ARGUMENT", resp.Type)
	assert.Equal(t, "Expected to create job with a positive amount of retries, but the amount given was '0'", resp.Reason)

	w = f.do(t, http.MethodPost, "/v1/jobs", gin.H{"retries": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJobErrors(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/jobs/42", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/jobs/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/jobs/0", nil).Code)
}

func TestActivateCompleteFlow(t *testing.T) {
	f := newFixture(t)
	key := f.createJob(t, "pay")

	batch := f.activate(t, "pay")
	require.Len(t, batch.Jobs, 1)
	assert.Equal(t, key, batch.Jobs[0].Key)
	assert.Equal(t, "w1", batch.Jobs[0].Worker)
	assert.Equal(t, job.StateActivated, batch.Jobs[0].State)
	assert.JSONEq(t, `{}`, string(batch.Jobs[0].Variables))

	w := f.do(t, http.MethodPost, "/v1/jobs/1/completion", gin.H{"variables": gin.H{"paid": true}})
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/jobs/1", nil).Code)

	w = f.do(t, http.MethodPost, "/v1/jobs/1/completion", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decode[errorResponse](t, w)
	assert.Equal(t, "NOT_FOUND", resp.Type)
	assert.Contains(t, resp.Reason, "Expected to complete job with key '1'")
}

func TestActivateEmptyWithoutLongPolling(t *testing.T) {
	f := newFixture(t)
	batch := f.activate(t, "pay")
	assert.Empty(t, batch.Jobs)
	assert.NotNil(t, batch.Jobs)
}

func TestActivateRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/v1/jobs/activation", gin.H{"type": "pay", "worker": "w", "timeout": 1000, "requestTimeout": -1})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorResponse](t, w).Reason, "max jobs to activate")
}

func TestActivateLongPollWakesOnCreate(t *testing.T) {
	f := newFixture(t)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		raw, _ := json.Marshal(gin.H{"type": "pay", "worker": "w1", "timeout": 1000, "maxJobsToActivate": 1, "requestTimeout": 5000})
		req := httptest.NewRequest(http.MethodPost, "/v1/jobs/activation", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		done <- w
	}()

	require.Eventually(t, func() bool {
		return f.server.waiters.Waiting("pay") == 1
	}, 2*time.Second, 5*time.Millisecond)
	key := f.createJob(t, "pay")

	select {
	case w := <-done:
		require.Equal(t, http.StatusOK, w.Code)
		batch := decode[activateJobsResponse](t, w)
		require.Len(t, batch.Jobs, 1)
		assert.Equal(t, key, batch.Jobs[0].Key)
	case <-time.After(3 * time.Second):
		t.Fatal("long poll did not return")
	}
	assert.Zero(t, f.server.waiters.Waiting("pay"))
}

func TestActivateLongPollTimesOut(t *testing.T) {
	f := newFixture(t)
	start := time.Now()
	w := f.do(t, http.MethodPost, "/v1/jobs/activation", gin.H{
		"type": "pay", "worker": "w1", "timeout": 1000, "maxJobsToActivate": 1, "requestTimeout": 50,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Empty(t, decode[activateJobsResponse](t, w).Jobs)
	assert.Zero(t, f.server.waiters.Waiting("pay"))
}

func TestFailAndUpdateRetries(t *testing.T) {
	f := newFixture(t)
	f.createJob(t, "pay")
	f.activate(t, "pay")

	w := f.do(t, http.MethodPost, "/v1/jobs/1/failure", gin.H{"retries": 0, "errorMessage": "boom"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	view := decode[jobView](t, f.do(t, http.MethodGet, "/v1/jobs/1", nil))
	assert.Equal(t, job.StateFailed, view.State)
	assert.Equal(t, "boom", view.ErrorMessage)

	w = f.do(t, http.MethodPatch, "/v1/jobs/1", gin.H{"retries": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[jobView](t, w).Retries)

	w = f.do(t, http.MethodPatch, "/v1/jobs/1", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTimeoutRequiresActivated(t *testing.T) {
	f := newFixture(t)
	f.createJob(t, "pay")

	w := f.do(t, http.MethodPatch, "/v1/jobs/1", gin.H{"timeout": 5000})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", decode[errorResponse](t, w).Type)

	f.activate(t, "pay")
	w = f.do(t, http.MethodPatch, "/v1/jobs/1", gin.H{"timeout": 5000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Positive(t, decode[jobView](t, w).Deadline)
}

func TestYieldAndCancel(t *testing.T) {
	f := newFixture(t)
	f.createJob(t, "pay")

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/v1/jobs/1/yield", nil).Code)

	f.activate(t, "pay")
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/v1/jobs/1/yield", nil).Code)
	view := decode[jobView](t, f.do(t, http.MethodGet, "/v1/jobs/1", nil))
	assert.Equal(t, job.StateActivatable, view.State)
	assert.Empty(t, view.Worker)

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/v1/jobs/1/cancellation", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/jobs/1", nil).Code)
}

func TestThrowErrorRequiresCode(t *testing.T) {
	f := newFixture(t)
	f.createJob(t, "pay")
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/jobs/1/error", gin.H{}).Code)
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[engine.Health](t, w)
	assert.Equal(t, engine.PhaseProcessing, health.Phase)

	f.engine.Pause()
	w = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"PAUSED"}`, w.Body.String())
	w = f.do(t, http.MethodPost, "/v1/jobs", gin.H{"type": "pay", "retries": 1})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNotifierWakesEveryWaiterOnce(t *testing.T) {
	n := newNotifier()
	a, cancelA := n.Wait("pay")
	b, _ := n.Wait("pay")
	c, _ := n.Wait("ship")
	cancelA()

	n.Notify("pay")
	select {
	case <-b:
	default:
		t.Fatal("waiter not woken")
	}
	select {
	case <-a:
		t.Fatal("cancelled waiter woken")
	default:
	}
	select {
	case <-c:
		t.Fatal("other type woken")
	default:
	}
	assert.Zero(t, n.Waiting("pay"))
	assert.Equal(t, 1, n.Waiting("ship"))
}

func TestUpdateJobAppliesNothingWhenRejected(t *testing.T) {
	f := newFixture(t)
	f.createJob(t, "pay")

	w := f.do(t, http.MethodPatch, "/v1/jobs/1", gin.H{"retries": 9, "timeout": 5000})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode[errorResponse](t, w).Reason, "Expected to update timeout for job with key '1'")
	view := decode[jobView](t, f.do(t, http.MethodGet, "/v1/jobs/1", nil))
	assert.Equal(t, 3, view.Retries)

	f.activate(t, "pay")
	before := decode[jobView](t, f.do(t, http.MethodGet, "/v1/jobs/1", nil))

	w = f.do(t, http.MethodPatch, "/v1/jobs/1", gin.H{"retries": 0, "timeout": 5000})
	require.Equal(t, http.StatusBadRequest, w.Code)
	after := decode[jobView](t, f.do(t, http.MethodGet, "/v1/jobs/1", nil))
	assert.Equal(t, before.Deadline, after.Deadline)
	assert.Equal(t, 3, after.Retries)

	w = f.do(t, http.MethodPatch, "/v1/jobs/1", gin.H{"retries": 9, "timeout": 5000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[jobView](t, w)
	assert.Equal(t, 9, updated.Retries)
	assert.Positive(t, updated.Deadline)
}

func TestLongPollStaysBelowWriteTimeout(t *testing.T) {
	f := newFixture(t)

	s := New(f.engine, WithLongPollTimeout(time.Second), WithTimeouts(0, 3*time.Second))
	assert.Equal(t, 2*time.Second, s.pollWait(60_000))
	assert.Equal(t, 2*time.Second, s.pollWait(math.MaxInt64))
	assert.Equal(t, 1500*time.Millisecond, s.pollWait(1500))
	assert.Equal(t, time.Second, s.pollWait(0))
	assert.Zero(t, s.pollWait(-1))

	short := New(f.engine, WithLongPollTimeout(30*time.Second), WithTimeouts(0, time.Second))
	assert.Equal(t, 500*time.Millisecond, short.pollWait(0))

	unbounded := New(f.engine, WithLongPollTimeout(time.Second))
	assert.Equal(t, time.Hour, unbounded.pollWait(3_600_000))
}
