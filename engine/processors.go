package engine

import (
	"context"
	"fmt"
	"math"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/logstream"
	"github.com/goliatone/go-job/store"
)

const (
	reasonElementInactive  = "its element is no longer active"
	reasonScopeNotAccepted = "the catch event's scope is not accepting events"
)

// unit is the context of one command being processed: the open store
// transaction and the batch collecting its records.
type unit struct {
	ctx    context.Context
	tx     store.Tx
	w      logstream.Writer
	guard  Guard
	source logstream.Record
}

// timestamp is the command's log timestamp, the only clock processors see.
func (u *unit) timestamp() int64 {
	return u.source.Timestamp
}

// after returns timestamp()+d, saturating at math.MaxInt64 so a huge
// client supplied duration never wraps into the past.
func (u *unit) after(d int64) int64 {
	now := u.timestamp()
	if d > math.MaxInt64-now {
		return math.MaxInt64
	}
	return now + d
}

func (u *unit) reject(r *job.Rejection) error {
	return u.w.Reject(r)
}

// dispatch validates cmd and routes it to its processor.
func (e *Engine) dispatch(u *unit, cmd job.Command) error {
	if err := job.ValidateMessage(cmd); err != nil {
		if !job.IsValidation(err) {
			return err
		}
		return u.reject(job.RejectionFromError(err))
	}

	switch c := cmd.(type) {
	case job.Create:
		return e.create(u, c)
	case job.Complete:
		return e.complete(u, c)
	case job.Fail:
		return e.failJob(u, c)
	case job.Cancel:
		return e.cancel(u, c)
	case job.UpdateRetries:
		return e.updateRetries(u, c)
	case job.ThrowError:
		return e.throwError(u, c)
	case job.TimeOut:
		return e.returnToPool(u, c.Intent(), c.Key)
	case job.Yield:
		return e.returnToPool(u, c.Intent(), c.Key)
	case job.UpdateTimeout:
		return e.updateTimeout(u, c)
	case job.RecurAfterBackoff:
		return e.recur(u, c)
	case job.ActivateBatch:
		return e.activate(u, c)
	default:
		return fmt.Errorf("no processor for command %T", cmd)
	}
}

func (e *Engine) create(u *unit, c job.Create) error {
	key, err := u.tx.NextKey(u.ctx)
	if err != nil {
		return err
	}
	j := c.Job.Clone()
	j.Key = key
	j.Worker = ""
	j.Deadline = 0
	j.RecurringTime = 0
	j.ErrorCode = ""
	j.ErrorMessage = ""
	j.CatchElementID = ""
	if j.ElementInstanceKey <= 0 {
		j.ElementInstanceKey = job.NoElementInstance
		// standalone jobs have no scope to resolve variables against
		j.Variables = nil
	}
	if err := u.tx.Put(u.ctx, key, job.StateActivatable, j); err != nil {
		return err
	}
	return u.w.AppendEvent(key, job.ValueJob, job.IntentCreated, j)
}

func (e *Engine) complete(u *unit, c job.Complete) error {
	j, rej, err := u.guard.RequireClaimable(u.ctx, c.Intent(), c.Key)
	if err != nil || rej != nil {
		return e.rejectOr(u, rej, err)
	}
	j.Variables = c.Variables
	if err := u.tx.Delete(u.ctx, c.Key); err != nil {
		return err
	}
	if err := u.w.AppendEvent(c.Key, job.ValueJob, job.IntentCompleted, j); err != nil {
		return err
	}
	if !j.HasScope() {
		return nil
	}
	ev := job.NewProcessEvent(j)
	ev.Variables = c.Variables
	return u.w.AppendFollowUpCommand(j.ElementInstanceKey, job.ValueProcessEvent, job.IntentCompleteElement, ev)
}

func (e *Engine) failJob(u *unit, c job.Fail) error {
	j, rej, err := u.guard.RequireClaimable(u.ctx, c.Intent(), c.Key)
	if err != nil || rej != nil {
		return e.rejectOr(u, rej, err)
	}
	j.Retries = c.Retries
	j.ErrorMessage = c.ErrorMessage
	j.RetryBackoff = c.RetryBackoff
	j.Deadline = 0

	state := job.StateFailed
	switch {
	case c.Retries > 0 && c.RetryBackoff > 0:
		j.RecurringTime = u.after(c.RetryBackoff)
	case c.Retries > 0:
		j.RecurringTime = 0
		state = job.StateActivatable
	default:
		j.RecurringTime = 0
	}
	if err := u.tx.Put(u.ctx, c.Key, state, j); err != nil {
		return err
	}
	if err := u.w.AppendEvent(c.Key, job.ValueJob, job.IntentFailed, j); err != nil {
		return err
	}
	if c.Retries > 0 {
		return nil
	}
	return raiseIncident(u, job.ErrorTypeJobNoRetries, c.Key, j)
}

func (e *Engine) cancel(u *unit, c job.Cancel) error {
	j, _, rej, err := u.guard.RequireExisting(u.ctx, c.Intent(), c.Key)
	if err != nil || rej != nil {
		return e.rejectOr(u, rej, err)
	}
	if err := u.tx.Delete(u.ctx, c.Key); err != nil {
		return err
	}
	return u.w.AppendEvent(c.Key, job.ValueJob, job.IntentCanceled, j)
}

func (e *Engine) updateRetries(u *unit, c job.UpdateRetries) error {
	j, state, rej, err := u.guard.RequireExisting(u.ctx, c.Intent(), c.Key)
	if err != nil || rej != nil {
		return e.rejectOr(u, rej, err)
	}
	j.Retries = c.Retries
	if err := u.tx.Put(u.ctx, c.Key, state, j); err != nil {
		return err
	}
	return u.w.AppendEvent(c.Key, job.ValueJob, job.IntentRetriesUpdated, j)
}

func (e *Engine) throwError(u *unit, c job.ThrowError) error {
	j, rej, err := u.guard.RequireClaimable(u.ctx, c.Intent(), c.Key)
	if err != nil || rej != nil {
		return e.rejectOr(u, rej, err)
	}
	j.ErrorCode = c.ErrorCode
	j.ErrorMessage = c.ErrorMessage

	var (
		ev    CatchEvent
		found bool
	)
	if j.HasScope() {
		ev, found, err = e.catchEvents.FindCatchEvent(u.ctx, c.ErrorCode, j.ElementInstanceKey)
		if err != nil {
			return err
		}
	}

	if !found {
		j.CatchElementID = job.NoCatchEventFound
		j.Deadline = 0
		if err := u.tx.Put(u.ctx, c.Key, job.StateFailed, j); err != nil {
			return err
		}
		if err := u.w.AppendEvent(c.Key, job.ValueJob, job.IntentErrorThrown, j); err != nil {
			return err
		}
		return raiseIncident(u, job.ErrorTypeUnhandledErrorEvent, c.Key, j)
	}

	active, err := e.catchEvents.ElementActive(u.ctx, j.ElementInstanceKey)
	if err != nil {
		return err
	}
	if !active {
		return u.reject(job.NewRejection(job.RejectInvalidState, c.Intent(), c.Key, reasonElementInactive))
	}
	accepting, err := e.catchEvents.AcceptsEvents(u.ctx, ev.EventScopeKey)
	if err != nil {
		return err
	}
	if !accepting {
		return u.reject(job.NewRejection(job.RejectInvalidState, c.Intent(), c.Key, reasonScopeNotAccepted))
	}

	j.CatchElementID = ev.ElementID
	if err := u.tx.Delete(u.ctx, c.Key); err != nil {
		return err
	}
	if err := u.w.AppendEvent(c.Key, job.ValueJob, job.IntentErrorThrown, j); err != nil {
		return err
	}
	pe := job.NewProcessEvent(j)
	pe.ErrorCode = j.ErrorCode
	pe.ErrorMessage = j.ErrorMessage
	pe.CatchElementID = ev.ElementID
	pe.CatchElementInstance = ev.ElementInstanceKey
	return u.w.AppendFollowUpCommand(ev.EventScopeKey, job.ValueProcessEvent, job.IntentTriggerErrorEvent, pe)
}

// returnToPool handles TimeOut and Yield: an ACTIVATED job goes back to
// ACTIVATABLE with its worker and deadline cleared.
func (e *Engine) returnToPool(u *unit, intent job.Intent, key int64) error {
	j, rej, err := u.guard.RequireActivated(u.ctx, intent, key)
	if err != nil || rej != nil {
		return e.rejectOr(u, rej, err)
	}
	j.Worker = ""
	j.Deadline = 0
	if err := u.tx.Put(u.ctx, key, job.StateActivatable, j); err != nil {
		return err
	}
	event, _ := job.EventFor(intent)
	return u.w.AppendEvent(key, job.ValueJob, event, j)
}

func (e *Engine) updateTimeout(u *unit, c job.UpdateTimeout) error {
	j, rej, err := u.guard.RequireActivated(u.ctx, c.Intent(), c.Key)
	if err != nil || rej != nil {
		return e.rejectOr(u, rej, err)
	}
	j.Deadline = u.after(c.Timeout)
	if err := u.tx.Put(u.ctx, c.Key, job.StateActivated, j); err != nil {
		return err
	}
	return u.w.AppendEvent(c.Key, job.ValueJob, job.IntentTimeoutUpdated, j)
}

func (e *Engine) recur(u *unit, c job.RecurAfterBackoff) error {
	j, rej, err := u.guard.RequireBackedOff(u.ctx, c.Intent(), c.Key)
	if err != nil || rej != nil {
		return e.rejectOr(u, rej, err)
	}
	j.RecurringTime = 0
	if err := u.tx.Put(u.ctx, c.Key, job.StateActivatable, j); err != nil {
		return err
	}
	return u.w.AppendEvent(c.Key, job.ValueJob, job.IntentRecurredAfterBackoff, j)
}

// rejectOr returns err when the guard failed, otherwise writes the rejection.
func (e *Engine) rejectOr(u *unit, rej *job.Rejection, err error) error {
	if err != nil {
		return err
	}
	return u.reject(rej)
}
