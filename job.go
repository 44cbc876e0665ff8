package job

import "maps"

// State is the lifecycle state of a job as seen by the precondition guard.
type State string

const (
	StateActivatable State = "ACTIVATABLE"
	StateActivated   State = "ACTIVATED"
	StateFailed      State = "FAILED"
	// StateNotFound is a lookup result only, it is never persisted.
	StateNotFound State = "NOT_FOUND"
)

// Claimable reports whether complete, fail and throw-error may act on the state.
func (s State) Claimable() bool {
	return s == StateActivatable || s == StateActivated
}

const (
	// NoElementInstance marks a standalone job without an owning workflow step.
	NoElementInstance int64 = -1

	// NoCatchEventFound is stored in CatchElementID when a thrown error had no handler.
	NoCatchEventFound = "NO_CATCH_EVENT_FOUND"
)

// Job is a unit of work handed to an external worker.
type Job struct {
	Key                  int64             `msgpack:"key" json:"key"`
	Type                 string            `msgpack:"type" json:"type"`
	Worker               string            `msgpack:"worker" json:"worker"`
	Retries              int               `msgpack:"retries" json:"retries"`
	RetryBackoff         int64             `msgpack:"retryBackoff" json:"retryBackoff"`
	RecurringTime        int64             `msgpack:"recurringTime" json:"recurringTime"`
	Deadline             int64             `msgpack:"deadline" json:"deadline"`
	ErrorCode            string            `msgpack:"errorCode" json:"errorCode"`
	ErrorMessage         string            `msgpack:"errorMessage" json:"errorMessage"`
	CatchElementID       string            `msgpack:"catchElementId" json:"catchElementId,omitempty"`
	Variables            []byte            `msgpack:"variables" json:"variables,omitempty"`
	CustomHeaders        map[string]string `msgpack:"customHeaders" json:"customHeaders,omitempty"`
	ElementInstanceKey   int64             `msgpack:"elementInstanceKey" json:"elementInstanceKey"`
	ElementID            string            `msgpack:"elementId" json:"elementId"`
	ProcessDefinitionKey int64             `msgpack:"processDefinitionKey" json:"processDefinitionKey"`
	ProcessInstanceKey   int64             `msgpack:"processInstanceKey" json:"processInstanceKey"`
	BpmnProcessID        string            `msgpack:"bpmnProcessId" json:"bpmnProcessId"`
	TenantID             string            `msgpack:"tenantId" json:"tenantId"`
}

// HasScope reports whether the job belongs to a workflow step.
func (j *Job) HasScope() bool {
	return j != nil && j.ElementInstanceKey > 0
}

// Clone returns a deep copy so callers never share buffers across iterations.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Variables != nil {
		cp.Variables = append([]byte(nil), j.Variables...)
	}
	if j.CustomHeaders != nil {
		cp.CustomHeaders = maps.Clone(j.CustomHeaders)
	}
	return &cp
}

// Size is the encoded length of the job, used for batch admission.
func (j *Job) Size() (int, error) {
	raw, err := Marshal(j)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}
