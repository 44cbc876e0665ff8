package logstream

import (
	job "github.com/goliatone/go-job"
)

// NoSourcePosition marks commands written from outside the engine.
const NoSourcePosition int64 = -1

// Record is one entry of the append-only log.
type Record struct {
	Position        int64             `msgpack:"position" json:"position"`
	SourcePosition  int64             `msgpack:"sourcePosition" json:"sourcePosition"`
	Key             int64             `msgpack:"key" json:"key"`
	Timestamp       int64             `msgpack:"timestamp" json:"timestamp"`
	RecordType      job.RecordType    `msgpack:"recordType" json:"recordType"`
	ValueType       job.ValueType     `msgpack:"valueType" json:"valueType"`
	Intent          job.Intent        `msgpack:"intent" json:"intent"`
	RejectionType   job.RejectionType `msgpack:"rejectionType" json:"rejectionType,omitempty"`
	RejectionReason string            `msgpack:"rejectionReason" json:"rejectionReason,omitempty"`
	RequestID       int64             `msgpack:"requestId" json:"requestId"`
	Value           []byte            `msgpack:"value" json:"value"`
}

// IsExternalCommand reports whether the record is a command written by a client
// or a trigger rather than produced while processing another command.
func (r Record) IsExternalCommand() bool {
	return r.RecordType == job.RecordCommand && r.SourcePosition == NoSourcePosition
}

// IsEngineCommand reports whether the engine consumes the record.
func (r Record) IsEngineCommand() bool {
	return r.RecordType == job.RecordCommand &&
		(r.ValueType == job.ValueJob || r.ValueType == job.ValueJobBatch)
}

// Command decodes the record value into the command it carries.
func (r Record) Command() (job.Command, error) {
	return job.DecodeCommand(r.ValueType, r.Intent, r.Value)
}

// Job decodes a JOB value.
func (r Record) Job() (*job.Job, error) {
	var j job.Job
	if err := job.Unmarshal(r.Value, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Batch decodes a JOB_BATCH value.
func (r Record) Batch() (*job.Batch, error) {
	var b job.Batch
	if err := job.Unmarshal(r.Value, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Incident decodes an INCIDENT value.
func (r Record) Incident() (*job.Incident, error) {
	var inc job.Incident
	if err := job.Unmarshal(r.Value, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

// Rejection returns the rejection carried by a COMMAND_REJECTION record.
func (r Record) Rejection() *job.Rejection {
	if r.RecordType != job.RecordCommandRejection {
		return nil
	}
	return &job.Rejection{Type: r.RejectionType, Reason: r.RejectionReason}
}
