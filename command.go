package job

import "fmt"

// Command is the tagged union of everything the engine accepts. The set is
// closed: only types in this package satisfy it.
type Command interface {
	Message
	Intent() Intent
	ValueType() ValueType
	// JobKey is the target job, or -1 for commands that address no job yet.
	JobKey() int64
	command()
}

type jobCommand struct{}

func (jobCommand) ValueType() ValueType { return ValueJob }
func (jobCommand) command()             {}

// Create registers a new ACTIVATABLE job. The key is assigned by the engine.
type Create struct {
	jobCommand
	Job Job `msgpack:"job" json:"job"`
}

func (Create) Type() string   { return "job.create" }
func (Create) Intent() Intent { return IntentCreate }
func (Create) JobKey() int64  { return -1 }
func (c Create) Validate() error {
	if c.Job.Type == "" {
		return invalidArgument("Expected to create job with type to be present, but it was blank")
	}
	if c.Job.Retries <= 0 {
		return invalidArgument(fmt.Sprintf("Expected to create job with a positive amount of retries, but the amount given was '%d'", c.Job.Retries))
	}
	return nil
}

// Complete finishes a job with an optional variables document.
type Complete struct {
	jobCommand
	Key       int64  `msgpack:"key" json:"key"`
	Variables []byte `msgpack:"variables" json:"variables,omitempty"`
}

func (Complete) Type() string      { return "job.complete" }
func (Complete) Intent() Intent    { return IntentComplete }
func (c Complete) JobKey() int64   { return c.Key }
func (c Complete) Validate() error { return nil }

// Fail reports a failed attempt with the retries the worker wants left.
type Fail struct {
	jobCommand
	Key          int64  `msgpack:"key" json:"key"`
	Retries      int    `msgpack:"retries" json:"retries"`
	ErrorMessage string `msgpack:"errorMessage" json:"errorMessage"`
	RetryBackoff int64  `msgpack:"retryBackoff" json:"retryBackoff"`
}

func (Fail) Type() string    { return "job.fail" }
func (Fail) Intent() Intent  { return IntentFail }
func (c Fail) JobKey() int64 { return c.Key }
func (c Fail) Validate() error {
	if c.RetryBackoff < 0 {
		return invalidArgument(fmt.Sprintf("Expected to fail job with key '%d' with a non-negative retry backoff, but it was '%d'", c.Key, c.RetryBackoff))
	}
	return nil
}

// Cancel removes a job regardless of its lifecycle state.
type Cancel struct {
	jobCommand
	Key int64 `msgpack:"key" json:"key"`
}

func (Cancel) Type() string      { return "job.cancel" }
func (Cancel) Intent() Intent    { return IntentCancel }
func (c Cancel) JobKey() int64   { return c.Key }
func (c Cancel) Validate() error { return nil }

// UpdateRetries sets the retry counter without changing the state.
type UpdateRetries struct {
	jobCommand
	Key     int64 `msgpack:"key" json:"key"`
	Retries int   `msgpack:"retries" json:"retries"`
}

func (UpdateRetries) Type() string    { return "job.update_retries" }
func (UpdateRetries) Intent() Intent  { return IntentUpdateRetries }
func (c UpdateRetries) JobKey() int64 { return c.Key }
func (c UpdateRetries) Validate() error {
	if c.Retries <= 0 {
		return invalidArgument(fmt.Sprintf("Expected to update retries for job with key '%d' with a positive amount of retries, but the amount given was '%d'", c.Key, c.Retries))
	}
	return nil
}

// ThrowError raises a business error to be caught by the owning workflow.
type ThrowError struct {
	jobCommand
	Key          int64  `msgpack:"key" json:"key"`
	ErrorCode    string `msgpack:"errorCode" json:"errorCode"`
	ErrorMessage string `msgpack:"errorMessage" json:"errorMessage"`
}

func (ThrowError) Type() string      { return "job.throw_error" }
func (ThrowError) Intent() Intent    { return IntentThrowError }
func (c ThrowError) JobKey() int64   { return c.Key }
func (c ThrowError) Validate() error { return nil }

// TimeOut returns an expired ACTIVATED job to the pool.
type TimeOut struct {
	jobCommand
	Key int64 `msgpack:"key" json:"key"`
}

func (TimeOut) Type() string      { return "job.time_out" }
func (TimeOut) Intent() Intent    { return IntentTimeOut }
func (c TimeOut) JobKey() int64   { return c.Key }
func (c TimeOut) Validate() error { return nil }

// Yield hands an ACTIVATED job back without consuming a retry.
type Yield struct {
	jobCommand
	Key int64 `msgpack:"key" json:"key"`
}

func (Yield) Type() string      { return "job.yield" }
func (Yield) Intent() Intent    { return IntentYield }
func (c Yield) JobKey() int64   { return c.Key }
func (c Yield) Validate() error { return nil }

// UpdateTimeout moves the deadline of an ACTIVATED job.
type UpdateTimeout struct {
	jobCommand
	Key     int64 `msgpack:"key" json:"key"`
	Timeout int64 `msgpack:"timeout" json:"timeout"`
}

func (UpdateTimeout) Type() string    { return "job.update_timeout" }
func (UpdateTimeout) Intent() Intent  { return IntentUpdateTimeout }
func (c UpdateTimeout) JobKey() int64 { return c.Key }
func (c UpdateTimeout) Validate() error {
	if c.Timeout <= 0 {
		return invalidArgument(fmt.Sprintf("Expected to update timeout for job with key '%d' with a positive timeout, but the timeout given was '%d'", c.Key, c.Timeout))
	}
	return nil
}

// RecurAfterBackoff makes a backed-off FAILED job activatable again.
type RecurAfterBackoff struct {
	jobCommand
	Key int64 `msgpack:"key" json:"key"`
}

func (RecurAfterBackoff) Type() string      { return "job.recur_after_backoff" }
func (RecurAfterBackoff) Intent() Intent    { return IntentRecurAfterBackoff }
func (c RecurAfterBackoff) JobKey() int64   { return c.Key }
func (c RecurAfterBackoff) Validate() error { return nil }

// ActivateBatch asks for up to MaxJobsToActivate jobs of one type.
type ActivateBatch struct {
	JobType           string   `msgpack:"type" json:"type"`
	Worker            string   `msgpack:"worker" json:"worker"`
	Timeout           int64    `msgpack:"timeout" json:"timeout"`
	MaxJobsToActivate int      `msgpack:"maxJobsToActivate" json:"maxJobsToActivate"`
	FetchVariables    []string `msgpack:"fetchVariables" json:"fetchVariables,omitempty"`
	TenantIDs         []string `msgpack:"tenantIds" json:"tenantIds,omitempty"`
}

func (ActivateBatch) Type() string         { return "job_batch.activate" }
func (ActivateBatch) Intent() Intent       { return IntentActivate }
func (ActivateBatch) ValueType() ValueType { return ValueJobBatch }
func (ActivateBatch) JobKey() int64        { return -1 }
func (ActivateBatch) command()             {}

func (a ActivateBatch) Validate() error {
	if a.JobType == "" {
		return invalidArgument("Expected to activate job batch with type to be present, but it was blank")
	}
	if a.MaxJobsToActivate <= 0 {
		return invalidArgument(fmt.Sprintf("Expected to activate job batch with max jobs to activate to be greater than zero, but it was '%d'", a.MaxJobsToActivate))
	}
	if a.Timeout <= 0 {
		return invalidArgument(fmt.Sprintf("Expected to activate job batch with timeout to be greater than zero, but it was '%d'", a.Timeout))
	}
	return nil
}
