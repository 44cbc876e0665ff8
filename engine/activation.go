package engine

import (
	"context"

	job "github.com/goliatone/go-job"
)

// jobEntryOverhead approximates the framing a job adds to the batch record
// besides its own body: the key in JobKeys and the array headers.
const jobEntryOverhead = 9

type candidate struct {
	key int64
	job *job.Job
}

// activate collects ACTIVATABLE jobs of the requested type into one batch.
// Half of the max record length is the ceiling for the batch value, the
// rest is headroom for the record itself.
func (e *Engine) activate(u *unit, c job.ActivateBatch) error {
	batch := job.NewBatch(c)
	ceiling := e.log.MaxRecordLength() / 2
	header, err := batchSize(batch)
	if err != nil {
		return err
	}
	deadline := u.after(c.Timeout)

	var (
		accepted    []candidate
		oversized   []candidate
		accumulated = header
		remaining   = c.MaxJobsToActivate
		first       = true
	)
	err = u.tx.ForEachActivatable(u.ctx, c.JobType, func(key int64, j *job.Job) (bool, error) {
		if !batch.AcceptsTenant(j.TenantID) {
			return true, nil
		}
		isFirst := first
		first = false

		working := j.Clone()
		working.Worker = c.Worker
		working.Deadline = deadline
		vars, err := e.resolveVariables(u.ctx, working, c.FetchVariables)
		if err != nil {
			return false, err
		}
		working.Variables = vars

		size, err := working.Size()
		if err != nil {
			return false, err
		}
		size += jobEntryOverhead

		if header+size > ceiling {
			oversized = append(oversized, candidate{key: key, job: j})
			if isFirst {
				batch.Truncated = true
				return false, nil
			}
			return true, nil
		}
		if remaining <= 0 || accumulated+size > ceiling {
			batch.Truncated = true
			return false, nil
		}

		accumulated += size
		remaining--
		batch.Add(key, working)
		accepted = append(accepted, candidate{key: key, job: j})
		return remaining > 0, nil
	})
	if err != nil {
		return err
	}

	for _, cand := range accepted {
		stored := cand.job
		stored.Worker = c.Worker
		stored.Deadline = deadline
		if err := u.tx.Put(u.ctx, cand.key, job.StateActivated, stored); err != nil {
			return err
		}
	}

	key, err := u.tx.NextKey(u.ctx)
	if err != nil {
		return err
	}
	if err := u.w.AppendEvent(key, job.ValueJobBatch, job.IntentActivated, batch); err != nil {
		return err
	}

	// an oversized job would block every later activation of its type, so it
	// leaves the pool until an operator resolves the incident
	for _, cand := range oversized {
		disabled := cand.job
		disabled.Deadline = 0
		if err := u.tx.Put(u.ctx, cand.key, job.StateFailed, disabled); err != nil {
			return err
		}
		if err := raiseIncident(u, job.ErrorTypeMessageSizeExceeded, cand.key, disabled); err != nil {
			return err
		}
	}
	return nil
}

// resolveVariables returns the document a worker receives with j.
func (e *Engine) resolveVariables(ctx context.Context, j *job.Job, names []string) ([]byte, error) {
	if !j.HasScope() {
		return append([]byte(nil), emptyDocument...), nil
	}
	if len(names) > 0 {
		return e.variables.DocumentFor(ctx, j.ElementInstanceKey, names)
	}
	return e.variables.Document(ctx, j.ElementInstanceKey)
}

func batchSize(b *job.Batch) (int, error) {
	raw, err := job.Marshal(b)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}
