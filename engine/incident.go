package engine

import (
	job "github.com/goliatone/go-job"
)

// raiseIncident writes the incident for j as a follow-up of the current
// command. Linkage and message come from job.NewIncident.
func raiseIncident(u *unit, errType job.ErrorType, jobKey int64, j *job.Job) error {
	key, err := u.tx.NextKey(u.ctx)
	if err != nil {
		return err
	}
	inc := job.NewIncident(key, errType, jobKey, j)
	if err := u.tx.PutIncident(u.ctx, inc); err != nil {
		return err
	}
	return u.w.AppendEvent(key, job.ValueIncident, job.IntentIncidentCreated, inc)
}
