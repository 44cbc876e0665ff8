package job

// Batch is the transient request/response aggregate of a batch activation.
type Batch struct {
	Type              string   `msgpack:"type" json:"type"`
	Worker            string   `msgpack:"worker" json:"worker"`
	Timeout           int64    `msgpack:"timeout" json:"timeout"`
	MaxJobsToActivate int      `msgpack:"maxJobsToActivate" json:"maxJobsToActivate"`
	FetchVariables    []string `msgpack:"fetchVariables" json:"fetchVariables,omitempty"`
	TenantIDs         []string `msgpack:"tenantIds" json:"tenantIds,omitempty"`
	JobKeys           []int64  `msgpack:"jobKeys" json:"jobKeys"`
	Jobs              []*Job   `msgpack:"jobs" json:"jobs"`
	Truncated         bool     `msgpack:"truncated" json:"truncated"`
}

// NewBatch starts an empty response for the given activation request.
func NewBatch(req ActivateBatch) *Batch {
	return &Batch{
		Type:              req.JobType,
		Worker:            req.Worker,
		Timeout:           req.Timeout,
		MaxJobsToActivate: req.MaxJobsToActivate,
		FetchVariables:    append([]string(nil), req.FetchVariables...),
		TenantIDs:         append([]string(nil), req.TenantIDs...),
		JobKeys:           []int64{},
		Jobs:              []*Job{},
	}
}

// Add appends an activated job to the response.
func (b *Batch) Add(key int64, j *Job) {
	b.JobKeys = append(b.JobKeys, key)
	b.Jobs = append(b.Jobs, j)
}

// Len is the number of activated jobs.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Jobs)
}

// AcceptsTenant reports whether the tenant filter admits the tenant.
func (b *Batch) AcceptsTenant(tenantID string) bool {
	if len(b.TenantIDs) == 0 {
		return true
	}
	for _, id := range b.TenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}
