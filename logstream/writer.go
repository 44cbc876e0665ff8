package logstream

import (
	"fmt"

	job "github.com/goliatone/go-job"
)

// Writer collects the records produced while processing one command.
type Writer interface {
	AppendEvent(key int64, valueType job.ValueType, intent job.Intent, value any) error
	AppendFollowUpCommand(key int64, valueType job.ValueType, intent job.Intent, value any) error
	Reject(rejection *job.Rejection) error
}

// Batch is the unit of work for one source command. Nothing it holds is
// visible in the log until Log.Commit appends it as a whole.
type Batch struct {
	source          Record
	maxRecordLength int
	entries         []Record
	committed       bool
}

var _ Writer = (*Batch)(nil)

// NewBatch starts a unit of work for the given source command.
func NewBatch(source Record, maxRecordLength int) *Batch {
	return &Batch{source: source, maxRecordLength: maxRecordLength}
}

func (b *Batch) Source() Record { return b.source }

func (b *Batch) AppendEvent(key int64, valueType job.ValueType, intent job.Intent, value any) error {
	return b.append(job.RecordEvent, key, valueType, intent, value)
}

func (b *Batch) AppendFollowUpCommand(key int64, valueType job.ValueType, intent job.Intent, value any) error {
	return b.append(job.RecordCommand, key, valueType, intent, value)
}

// Reject writes a COMMAND_REJECTION mirroring the source command.
func (b *Batch) Reject(rejection *job.Rejection) error {
	if rejection == nil {
		return fmt.Errorf("nil rejection for command at position %d", b.source.Position)
	}
	rec := Record{
		Key:             b.source.Key,
		RecordType:      job.RecordCommandRejection,
		ValueType:       b.source.ValueType,
		Intent:          b.source.Intent,
		RejectionType:   rejection.Type,
		RejectionReason: rejection.Reason,
		RequestID:       b.source.RequestID,
		Value:           b.source.Value,
	}
	b.entries = append(b.entries, rec)
	return nil
}

// Records returns the pending entries without positions.
func (b *Batch) Records() []Record {
	return append([]Record(nil), b.entries...)
}

func (b *Batch) Len() int { return len(b.entries) }

func (b *Batch) append(recordType job.RecordType, key int64, valueType job.ValueType, intent job.Intent, value any) error {
	if b.committed {
		return ErrBatchCommitted
	}
	raw, err := encodeValue(value)
	if err != nil {
		return err
	}
	if b.maxRecordLength > 0 && len(raw) > b.maxRecordLength {
		return cloneError(ErrRecordTooLarge, fmt.Sprintf("%s %s record of %d bytes exceeds max record length %d", valueType, intent, len(raw), b.maxRecordLength), map[string]any{
			"key":    key,
			"intent": string(intent),
			"size":   len(raw),
		})
	}
	rec := Record{
		Key:        key,
		RecordType: recordType,
		ValueType:  valueType,
		Intent:     intent,
		Value:      raw,
	}
	// the response to the client rides on the primary event
	if recordType == job.RecordEvent && valueType == b.source.ValueType {
		rec.RequestID = b.source.RequestID
	}
	b.entries = append(b.entries, rec)
	return nil
}

func encodeValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return append([]byte(nil), v...), nil
	default:
		return job.Marshal(v)
	}
}
