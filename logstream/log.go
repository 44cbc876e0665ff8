package logstream

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	job "github.com/goliatone/go-job"
)

// Log is an in-memory append-only log. Positions start at 1 and never repeat.
type Log struct {
	mu              sync.RWMutex
	records         []Record
	maxRecordLength int
	maxPending      int
	pending         map[int64]struct{}
}

// Option configures a Log.
type Option func(*Log)

// WithMaxRecordLength bounds the encoded value of a single record.
func WithMaxRecordLength(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxRecordLength = n
		}
	}
}

// WithMaxPendingCommands bounds external commands written but not yet processed.
// Zero disables the bound.
func WithMaxPendingCommands(n int) Option {
	return func(l *Log) {
		if n >= 0 {
			l.maxPending = n
		}
	}
}

const DefaultMaxRecordLength = 4 * 1024 * 1024

func New(opts ...Option) *Log {
	l := &Log{
		maxRecordLength: DefaultMaxRecordLength,
		pending:         make(map[int64]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func (l *Log) MaxRecordLength() int {
	return l.maxRecordLength
}

// AppendCommand writes an external command. It fails with ErrBufferFull when
// too many external commands are still waiting for the engine.
func (l *Log) AppendCommand(_ context.Context, key int64, cmd job.Command, timestamp, requestID int64) (Record, error) {
	raw, err := job.Marshal(cmd)
	if err != nil {
		return Record{}, err
	}
	if len(raw) > l.maxRecordLength {
		return Record{}, cloneError(ErrRecordTooLarge, fmt.Sprintf("command %s of %d bytes exceeds max record length %d", cmd.Intent(), len(raw), l.maxRecordLength), nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxPending > 0 && len(l.pending) >= l.maxPending {
		return Record{}, ErrBufferFull
	}
	rec := Record{
		Position:       int64(len(l.records)) + 1,
		SourcePosition: NoSourcePosition,
		Key:            key,
		Timestamp:      timestamp,
		RecordType:     job.RecordCommand,
		ValueType:      cmd.ValueType(),
		Intent:         cmd.Intent(),
		RequestID:      requestID,
		Value:          raw,
	}
	l.records = append(l.records, rec)
	l.pending[rec.Position] = struct{}{}
	return rec, nil
}

// Commit appends every record of the batch atomically, stamping them with the
// source command's position and timestamp.
func (l *Log) Commit(b *Batch) ([]Record, error) {
	if b == nil {
		return nil, nil
	}
	if b.committed {
		return nil, ErrBatchCommitted
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, 0, len(b.entries))
	next := int64(len(l.records)) + 1
	for _, rec := range b.entries {
		rec.Position = next
		rec.SourcePosition = b.source.Position
		rec.Timestamp = b.source.Timestamp
		next++
		out = append(out, rec)
	}
	l.records = append(l.records, out...)
	b.committed = true
	return append([]Record(nil), out...), nil
}

// MarkProcessed releases the back pressure slot held by an external command.
func (l *Log) MarkProcessed(position int64) {
	l.mu.Lock()
	delete(l.pending, position)
	l.mu.Unlock()
}

// Pending is the number of external commands not yet processed.
func (l *Log) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// Get returns the record at position.
func (l *Log) Get(position int64) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if position < 1 || position > int64(len(l.records)) {
		return Record{}, false
	}
	return l.records[position-1], true
}

// LastPosition is the position of the newest record, or 0 when empty.
func (l *Log) LastPosition() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.records))
}

// ReadFrom returns a copy of the records at or after position.
func (l *Log) ReadFrom(position int64) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if position < 1 {
		position = 1
	}
	if position > int64(len(l.records)) {
		return nil
	}
	return append([]Record(nil), l.records[position-1:]...)
}

// Records returns a copy of the whole log.
func (l *Log) Records() []Record {
	return l.ReadFrom(1)
}

// Dump writes every record as a MessagePack stream.
func (l *Log) Dump(w io.Writer) error {
	return WriteRecords(w, l.Records())
}

// WriteRecords encodes records one after another.
func WriteRecords(w io.Writer, records []Record) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode record %d: %w", records[i].Position, err)
		}
	}
	return nil
}

// ReadRecords decodes a stream produced by WriteRecords.
func ReadRecords(r io.Reader) ([]Record, error) {
	dec := msgpack.NewDecoder(r)
	var out []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if stderrors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("decode record after position %d: %w", lastPosition(out), err)
		}
		out = append(out, rec)
	}
}

func lastPosition(records []Record) int64 {
	if len(records) == 0 {
		return 0
	}
	return records[len(records)-1].Position
}
