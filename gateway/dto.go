package gateway

import (
	"encoding/json"

	job "github.com/goliatone/go-job"
)

type createJobRequest struct {
	Type                 string            `json:"type" binding:"required"`
	Retries              int               `json:"retries"`
	RetryBackoff         int64             `json:"retryBackoff"`
	CustomHeaders        map[string]string `json:"customHeaders"`
	Variables            json.RawMessage   `json:"variables"`
	ElementInstanceKey   int64             `json:"elementInstanceKey"`
	ElementID            string            `json:"elementId"`
	ProcessInstanceKey   int64             `json:"processInstanceKey"`
	ProcessDefinitionKey int64             `json:"processDefinitionKey"`
	BpmnProcessID        string            `json:"bpmnProcessId"`
	TenantID             string            `json:"tenantId"`
}

func (r createJobRequest) command() job.Create {
	return job.Create{Job: job.Job{
		Type:                 r.Type,
		Retries:              r.Retries,
		RetryBackoff:         r.RetryBackoff,
		CustomHeaders:        r.CustomHeaders,
		Variables:            []byte(r.Variables),
		ElementInstanceKey:   r.ElementInstanceKey,
		ElementID:            r.ElementID,
		ProcessInstanceKey:   r.ProcessInstanceKey,
		ProcessDefinitionKey: r.ProcessDefinitionKey,
		BpmnProcessID:        r.BpmnProcessID,
		TenantID:             r.TenantID,
	}}
}

type activateJobsRequest struct {
	Type              string   `json:"type"`
	Worker            string   `json:"worker"`
	Timeout           int64    `json:"timeout"`
	MaxJobsToActivate int      `json:"maxJobsToActivate"`
	FetchVariables    []string `json:"fetchVariables"`
	TenantIDs         []string `json:"tenantIds"`
	// RequestTimeout in millis: 0 uses the server default, negative disables long polling.
	RequestTimeout int64 `json:"requestTimeout"`
}

func (r activateJobsRequest) command() job.ActivateBatch {
	return job.ActivateBatch{
		JobType:           r.Type,
		Worker:            r.Worker,
		Timeout:           r.Timeout,
		MaxJobsToActivate: r.MaxJobsToActivate,
		FetchVariables:    r.FetchVariables,
		TenantIDs:         r.TenantIDs,
	}
}

type completeJobRequest struct {
	Variables json.RawMessage `json:"variables"`
}

type failJobRequest struct {
	Retries      int    `json:"retries"`
	ErrorMessage string `json:"errorMessage"`
	RetryBackoff int64  `json:"retryBackoff"`
}

type throwErrorRequest struct {
	ErrorCode    string `json:"errorCode" binding:"required"`
	ErrorMessage string `json:"errorMessage"`
}

type updateJobRequest struct {
	Retries *int   `json:"retries"`
	Timeout *int64 `json:"timeout"`
}

// jobView renders variables as JSON instead of base64.
type jobView struct {
	Key                  int64             `json:"key"`
	Type                 string            `json:"type"`
	State                job.State         `json:"state,omitempty"`
	Worker               string            `json:"worker,omitempty"`
	Retries              int               `json:"retries"`
	RetryBackoff         int64             `json:"retryBackoff,omitempty"`
	RecurringTime        int64             `json:"recurringTime,omitempty"`
	Deadline             int64             `json:"deadline,omitempty"`
	ErrorCode            string            `json:"errorCode,omitempty"`
	ErrorMessage         string            `json:"errorMessage,omitempty"`
	CatchElementID       string            `json:"catchElementId,omitempty"`
	CustomHeaders        map[string]string `json:"customHeaders,omitempty"`
	Variables            json.RawMessage   `json:"variables,omitempty"`
	ElementInstanceKey   int64             `json:"elementInstanceKey"`
	ElementID            string            `json:"elementId,omitempty"`
	ProcessInstanceKey   int64             `json:"processInstanceKey,omitempty"`
	ProcessDefinitionKey int64             `json:"processDefinitionKey,omitempty"`
	BpmnProcessID        string            `json:"bpmnProcessId,omitempty"`
	TenantID             string            `json:"tenantId,omitempty"`
}

func newJobView(key int64, state job.State, j *job.Job) jobView {
	if j == nil {
		return jobView{Key: key, State: state}
	}
	v := jobView{
		Key:                  key,
		State:                state,
		Type:                 j.Type,
		Worker:               j.Worker,
		Retries:              j.Retries,
		RetryBackoff:         j.RetryBackoff,
		RecurringTime:        j.RecurringTime,
		Deadline:             j.Deadline,
		ErrorCode:            j.ErrorCode,
		ErrorMessage:         j.ErrorMessage,
		CatchElementID:       j.CatchElementID,
		CustomHeaders:        j.CustomHeaders,
		ElementInstanceKey:   j.ElementInstanceKey,
		ElementID:            j.ElementID,
		ProcessInstanceKey:   j.ProcessInstanceKey,
		ProcessDefinitionKey: j.ProcessDefinitionKey,
		BpmnProcessID:        j.BpmnProcessID,
		TenantID:             j.TenantID,
	}
	if len(j.Variables) > 0 && json.Valid(j.Variables) {
		v.Variables = json.RawMessage(j.Variables)
	}
	return v
}

type activateJobsResponse struct {
	Jobs      []jobView `json:"jobs"`
	Truncated bool      `json:"truncated"`
}

func newActivateJobsResponse(b *job.Batch) activateJobsResponse {
	out := activateJobsResponse{Jobs: make([]jobView, 0, b.Len()), Truncated: b.Truncated}
	for i, j := range b.Jobs {
		out.Jobs = append(out.Jobs, newJobView(b.JobKeys[i], job.StateActivated, j))
	}
	return out
}

type errorResponse struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
