package engine

import (
	"context"
	"fmt"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/store"
)

const (
	reasonNotFound      = "no such job was found"
	reasonNotActivated  = "it must be activated first"
	reasonMarkedFailed  = "it is marked as failed"
	reasonNotBackedOff  = "it is not waiting for a retry backoff"
	reasonStateTemplate = "it is in state '%s'"
)

// Guard classifies jobs and checks command preconditions. It never writes,
// so every processor shares one set of acceptance rules.
type Guard struct {
	reader store.Reader
}

func NewGuard(reader store.Reader) Guard {
	return Guard{reader: reader}
}

// Classify returns the lifecycle state of key, NOT_FOUND included.
func (g Guard) Classify(ctx context.Context, key int64) (job.State, error) {
	return g.reader.Classify(ctx, key)
}

// RequireClaimable accepts ACTIVATABLE and ACTIVATED jobs.
func (g Guard) RequireClaimable(ctx context.Context, intent job.Intent, key int64) (*job.Job, *job.Rejection, error) {
	j, state, err := g.reader.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case state == job.StateNotFound:
		return nil, job.NewRejection(job.RejectNotFound, intent, key, reasonNotFound), nil
	case !state.Claimable():
		return nil, job.NewRejection(job.RejectInvalidState, intent, key, fmt.Sprintf(reasonStateTemplate, state)), nil
	}
	return j, nil, nil
}

// RequireActivated accepts only ACTIVATED jobs.
func (g Guard) RequireActivated(ctx context.Context, intent job.Intent, key int64) (*job.Job, *job.Rejection, error) {
	j, state, err := g.reader.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	switch state {
	case job.StateActivated:
		return j, nil, nil
	case job.StateNotFound:
		return nil, job.NewRejection(job.RejectNotFound, intent, key, reasonNotFound), nil
	case job.StateActivatable:
		return nil, job.NewRejection(job.RejectInvalidState, intent, key, reasonNotActivated), nil
	case job.StateFailed:
		return nil, job.NewRejection(job.RejectInvalidState, intent, key, reasonMarkedFailed), nil
	default:
		return nil, job.NewRejection(job.RejectInvalidState, intent, key, fmt.Sprintf(reasonStateTemplate, state)), nil
	}
}

// RequireExisting accepts a job in any state.
func (g Guard) RequireExisting(ctx context.Context, intent job.Intent, key int64) (*job.Job, job.State, *job.Rejection, error) {
	j, state, err := g.reader.Get(ctx, key)
	if err != nil {
		return nil, "", nil, err
	}
	if state == job.StateNotFound {
		return nil, state, job.NewRejection(job.RejectNotFound, intent, key, reasonNotFound), nil
	}
	return j, state, nil, nil
}

// RequireBackedOff accepts FAILED jobs waiting for their retry backoff.
func (g Guard) RequireBackedOff(ctx context.Context, intent job.Intent, key int64) (*job.Job, *job.Rejection, error) {
	j, state, err := g.reader.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case state == job.StateNotFound:
		return nil, job.NewRejection(job.RejectNotFound, intent, key, reasonNotFound), nil
	case state != job.StateFailed || j.RecurringTime <= 0:
		return nil, job.NewRejection(job.RejectInvalidState, intent, key, reasonNotBackedOff), nil
	}
	return j, nil, nil
}
