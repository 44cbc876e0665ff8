package store

import (
	"context"

	"github.com/goliatone/go-errors"

	job "github.com/goliatone/go-job"
)

const ErrCodeStoreNotConfigured = "STORE_NOT_CONFIGURED"

var ErrNotConfigured = errors.New("store not configured", errors.CategoryHandler).
	WithTextCode(ErrCodeStoreNotConfigured)

// Visitor receives jobs during iteration. Returning false stops the walk.
// The job is a private copy the visitor may keep.
type Visitor func(key int64, j *job.Job) (bool, error)

// Reader is the read side of the job store.
type Reader interface {
	// Get returns the job and its state, or (nil, StateNotFound, nil).
	Get(ctx context.Context, key int64) (*job.Job, job.State, error)
	Classify(ctx context.Context, key int64) (job.State, error)
	// ForEachActivatable walks ACTIVATABLE jobs of the type in ascending key order.
	ForEachActivatable(ctx context.Context, jobType string, visit Visitor) error
	// ForEachTimedOut walks ACTIVATED jobs with deadline <= now ordered by (deadline, key).
	ForEachTimedOut(ctx context.Context, now int64, visit Visitor) error
	// ForEachBackedOff walks FAILED jobs with 0 < recurringTime <= now ordered by (recurringTime, key).
	ForEachBackedOff(ctx context.Context, now int64, visit Visitor) error
	Incidents(ctx context.Context, jobKey int64) ([]job.Incident, error)
}

// Tx is the transactional boundary processors mutate through.
type Tx interface {
	Reader
	Put(ctx context.Context, key int64, state job.State, j *job.Job) error
	Delete(ctx context.Context, key int64) error
	PutIncident(ctx context.Context, inc job.Incident) error
	// NextKey draws from a deterministic sequence that survives restarts.
	NextKey(ctx context.Context) (int64, error)
}

// Store persists jobs and incidents. Mutations happen only inside
// RunInTransaction and are rolled back when fn fails.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Reader) error) error
	// OnJobsAvailable registers a callback fired after commit with every job
	// type that gained an ACTIVATABLE job. Callbacks must not block.
	OnJobsAvailable(fn func(jobType string))
}

// Closer is implemented by stores holding external resources.
type Closer interface {
	Close() error
}

var errReadOnly = errors.New("read-only view", errors.CategoryBadInput).
	WithTextCode("STORE_READ_ONLY")
