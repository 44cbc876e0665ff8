package job

import (
	"fmt"
)

// RejectionType is the client visible category of a refused command.
type RejectionType string

const (
	RejectNone            RejectionType = ""
	RejectNotFound        RejectionType = "NOT_FOUND"
	RejectInvalidState    RejectionType = "INVALID_STATE"
	RejectInvalidArgument RejectionType = "INVALID_ARGUMENT"
)

// Rejection is the normal terminal outcome of a command that failed its
// preconditions. It is reported to the caller and never raised as an error.
type Rejection struct {
	Type   RejectionType `msgpack:"type" json:"type"`
	Reason string        `msgpack:"reason" json:"reason"`
}

func (r *Rejection) String() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", r.Type, r.Reason)
}

// NewRejection formats the standard "Expected to <verb> job ..." reason.
func NewRejection(kind RejectionType, intent Intent, key int64, reason string) *Rejection {
	return &Rejection{
		Type:   kind,
		Reason: fmt.Sprintf("Expected to %s job with key '%d', but %s", intent.Verb(), key, reason),
	}
}

// RejectionFromError turns a validation failure into an INVALID_ARGUMENT rejection.
func RejectionFromError(err error) *Rejection {
	if err == nil {
		return nil
	}
	return &Rejection{Type: RejectInvalidArgument, Reason: ValidationReason(err)}
}
