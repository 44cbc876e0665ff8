package gateway

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/engine"
	"github.com/goliatone/go-job/logstream"
	"github.com/goliatone/go-job/store"
)

// Healthz handles GET /healthz
func (s *Server) Healthz(c *gin.Context) {
	health := s.engine.Health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status": health.Phase,
	})
}

// Status handles GET /v1/status
func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Health())
}

// CreateJob handles POST /v1/jobs
func (s *Server) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, ok := s.submit(c, req.command())
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, newJobView(resp.Key, job.StateActivatable, resp.Job))
}

// ActivateJobs handles POST /v1/jobs/activation. An empty batch waits for
// jobs of the type until the request timeout unless long polling is off.
func (s *Server) ActivateJobs(c *gin.Context) {
	var req activateJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	wait := s.pollWait(req.RequestTimeout)

	ctx := c.Request.Context()
	var timer <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timer = t.C
	}

	cmd := req.command()
	for {
		// register before activating so a job created in between is not missed
		woken, cancel := s.waiters.Wait(cmd.JobType)
		resp, ok := s.submit(c, cmd)
		if !ok {
			cancel()
			return
		}
		if resp.Batch.Len() > 0 || timer == nil {
			cancel()
			c.JSON(http.StatusOK, newActivateJobsResponse(resp.Batch))
			return
		}

		select {
		case <-woken:
			continue
		case <-timer:
			cancel()
			c.JSON(http.StatusOK, newActivateJobsResponse(resp.Batch))
			return
		case <-ctx.Done():
			cancel()
			return
		}
	}
}

// pollWait resolves the long poll duration of an activation request. It
// stays below the write timeout so the empty response still goes out.
func (s *Server) pollWait(requestTimeout int64) time.Duration {
	wait := s.longPollTimeout
	switch {
	case requestTimeout < 0:
		return 0
	case requestTimeout > int64(math.MaxInt64/time.Millisecond):
		wait = time.Duration(math.MaxInt64)
	case requestTimeout > 0:
		wait = time.Duration(requestTimeout) * time.Millisecond
	}
	if limit := s.maxLongPoll(); limit > 0 && wait > limit {
		wait = limit
	}
	return wait
}

func (s *Server) maxLongPoll() time.Duration {
	switch {
	case s.writeTimeout <= 0:
		return 0
	case s.writeTimeout > 2*longPollMargin:
		return s.writeTimeout - longPollMargin
	default:
		return s.writeTimeout / 2
	}
}

// GetJob handles GET /v1/jobs/:key
func (s *Server) GetJob(c *gin.Context) {
	key, ok := jobKey(c)
	if !ok {
		return
	}
	var (
		found *job.Job
		state job.State
	)
	err := s.engine.View(c.Request.Context(), func(r store.Reader) error {
		var err error
		found, state, err = r.Get(c.Request.Context(), key)
		return err
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	if found == nil {
		c.JSON(http.StatusNotFound, errorResponse{
			Type:   string(job.RejectNotFound),
			Reason: "no such job was found",
		})
		return
	}
	c.JSON(http.StatusOK, newJobView(key, state, found))
}

// UpdateJob handles PATCH /v1/jobs/:key for retries and timeout.
func (s *Server) UpdateJob(c *gin.Context) {
	key, ok := jobKey(c)
	if !ok {
		return
	}
	var req updateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Retries == nil && req.Timeout == nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Type:   string(job.RejectInvalidArgument),
			Reason: "expected retries or timeout to be present",
		})
		return
	}

	var cmds []job.Command
	// timeout first: it is the only one a job state can reject
	if req.Timeout != nil {
		cmds = append(cmds, job.UpdateTimeout{Key: key, Timeout: *req.Timeout})
	}
	if req.Retries != nil {
		cmds = append(cmds, job.UpdateRetries{Key: key, Retries: *req.Retries})
	}
	for _, cmd := range cmds {
		if err := job.ValidateMessage(cmd); err != nil {
			badRequest(c, err)
			return
		}
	}

	var last engine.Response
	for _, cmd := range cmds {
		if last, ok = s.submit(c, cmd); !ok {
			return
		}
	}
	c.JSON(http.StatusOK, newJobView(key, "", last.Job))
}

// CompleteJob handles POST /v1/jobs/:key/completion
func (s *Server) CompleteJob(c *gin.Context) {
	key, ok := jobKey(c)
	if !ok {
		return
	}
	var req completeJobRequest
	if !bindOptional(c, &req) {
		return
	}
	s.respondNoContent(c, job.Complete{Key: key, Variables: []byte(req.Variables)})
}

// FailJob handles POST /v1/jobs/:key/failure
func (s *Server) FailJob(c *gin.Context) {
	key, ok := jobKey(c)
	if !ok {
		return
	}
	var req failJobRequest
	if !bindOptional(c, &req) {
		return
	}
	s.respondNoContent(c, job.Fail{
		Key:          key,
		Retries:      req.Retries,
		ErrorMessage: req.ErrorMessage,
		RetryBackoff: req.RetryBackoff,
	})
}

// ThrowError handles POST /v1/jobs/:key/error
func (s *Server) ThrowError(c *gin.Context) {
	key, ok := jobKey(c)
	if !ok {
		return
	}
	var req throwErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.respondNoContent(c, job.ThrowError{Key: key, ErrorCode: req.ErrorCode, ErrorMessage: req.ErrorMessage})
}

// YieldJob handles POST /v1/jobs/:key/yield
func (s *Server) YieldJob(c *gin.Context) {
	key, ok := jobKey(c)
	if !ok {
		return
	}
	s.respondNoContent(c, job.Yield{Key: key})
}

// CancelJob handles POST /v1/jobs/:key/cancellation
func (s *Server) CancelJob(c *gin.Context) {
	key, ok := jobKey(c)
	if !ok {
		return
	}
	s.respondNoContent(c, job.Cancel{Key: key})
}

func (s *Server) respondNoContent(c *gin.Context, cmd job.Command) {
	if _, ok := s.submit(c, cmd); ok {
		c.Status(http.StatusNoContent)
	}
}

// submit runs cmd and writes the error response when it was not accepted.
func (s *Server) submit(c *gin.Context, cmd job.Command) (engine.Response, bool) {
	resp, err := s.engine.Submit(c.Request.Context(), cmd)
	if err != nil {
		s.submitError(c, err)
		return resp, false
	}
	if rej := resp.Rejection; rej != nil {
		c.JSON(rejectionStatus(rej.Type), errorResponse{Type: string(rej.Type), Reason: rej.Reason})
		return resp, false
	}
	return resp, true
}

func (s *Server) submitError(c *gin.Context, err error) {
	switch {
	case job.IsValidation(err):
		badRequest(c, err)
	case engine.IsNotProcessing(err), logstream.IsBufferFull(err):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Type: "UNAVAILABLE", Reason: err.Error()})
	case logstream.IsRecordTooLarge(err):
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Type: string(job.RejectInvalidArgument), Reason: err.Error()})
	case context.Cause(c.Request.Context()) != nil:
		c.Status(499)
	default:
		s.internalError(c, err)
	}
}

func (s *Server) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, errorResponse{Type: "INTERNAL", Reason: err.Error()})
}

func rejectionStatus(kind job.RejectionType) int {
	switch kind {
	case job.RejectNotFound:
		return http.StatusNotFound
	case job.RejectInvalidState:
		return http.StatusConflict
	case job.RejectInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func jobKey(c *gin.Context) (int64, bool) {
	key, err := strconv.ParseInt(c.Param("key"), 10, 64)
	if err != nil || key <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{
			Type:   string(job.RejectInvalidArgument),
			Reason: "job key must be a positive integer",
		})
		return 0, false
	}
	return key, true
}

// bindOptional accepts an empty body as the zero request.
func bindOptional(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

func badRequest(c *gin.Context, err error) {
	reason := err.Error()
	if job.IsValidation(err) {
		reason = job.ValidationReason(err)
	}
	c.JSON(http.StatusBadRequest, errorResponse{Type: string(job.RejectInvalidArgument), Reason: reason})
}
