package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goliatone/go-job/logstream"
	"github.com/goliatone/go-job/store"
)

// ReplayOption configures Replay.
type ReplayOption func(*replayConfig)

type replayConfig struct {
	maxRecordLength int
	store           store.Store
	engineOpts      []Option
}

// WithReplayMaxRecordLength must match the limit the recorded log was written with.
func WithReplayMaxRecordLength(n int) ReplayOption {
	return func(c *replayConfig) {
		c.maxRecordLength = n
	}
}

// WithReplayStore replays into st instead of a fresh in-memory store.
func WithReplayStore(st store.Store) ReplayOption {
	return func(c *replayConfig) {
		c.store = st
	}
}

// WithReplayEngineOptions passes options to the replaying engine, typically
// the variable store and catch event resolver of the recorded run.
func WithReplayEngineOptions(opts ...Option) ReplayOption {
	return func(c *replayConfig) {
		c.engineOpts = append(c.engineOpts, opts...)
	}
}

// ReplayResult summarizes a replay that matched the recorded log.
type ReplayResult struct {
	Records  int
	Commands int
	Store    store.Store
	Log      *logstream.Log
}

// Replay feeds the external commands of records into a fresh engine, with
// their recorded keys and timestamps, and compares every produced record
// with the recorded one. The first mismatch is returned as ErrReplayDiverged.
func Replay(ctx context.Context, records []logstream.Record, opts ...ReplayOption) (ReplayResult, error) {
	cfg := replayConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.store == nil {
		cfg.store = store.NewMemoryStore()
	}
	var logOpts []logstream.Option
	if cfg.maxRecordLength > 0 {
		logOpts = append(logOpts, logstream.WithMaxRecordLength(cfg.maxRecordLength))
	}
	log := logstream.New(logOpts...)

	engineOpts := append([]Option{WithLogger(DiscardLogger())}, cfg.engineOpts...)
	engineOpts = append(engineOpts, WithTimeoutCheckInterval(0), WithBackoffCheckInterval(0))
	e := New(cfg.store, log, engineOpts...)

	res := ReplayResult{Store: cfg.store, Log: log}
	for _, rec := range records {
		if !rec.IsExternalCommand() {
			continue
		}
		cmd, err := rec.Command()
		if err != nil {
			return res, cloneRuntimeError(ErrCorruptRecord, fmt.Sprintf("decode command at position %d", rec.Position), err, nil)
		}
		appended, err := log.AppendCommand(ctx, rec.Key, cmd, rec.Timestamp, rec.RequestID)
		if err != nil {
			return res, err
		}
		if appended.Position != rec.Position {
			return res, diverged(rec.Position, "command landed at position %d", appended.Position)
		}
		if _, err := e.processPending(ctx); err != nil {
			return res, err
		}
		res.Commands++
	}

	produced := log.Records()
	if len(produced) != len(records) {
		at := int64(min(len(produced), len(records)) + 1)
		return res, diverged(at, "replay produced %d records, recorded log has %d", len(produced), len(records))
	}
	for i := range produced {
		if field := firstDifference(records[i], produced[i]); field != "" {
			return res, diverged(records[i].Position, "field %s differs", field)
		}
	}
	res.Records = len(produced)
	return res, nil
}

func diverged(position int64, format string, args ...any) error {
	return cloneRuntimeError(ErrReplayDiverged, fmt.Sprintf("position %d: "+format, append([]any{position}, args...)...), nil, map[string]any{
		"position": position,
	})
}

func firstDifference(want, got logstream.Record) string {
	switch {
	case want.Position != got.Position:
		return "position"
	case want.SourcePosition != got.SourcePosition:
		return "sourcePosition"
	case want.Key != got.Key:
		return "key"
	case want.Timestamp != got.Timestamp:
		return "timestamp"
	case want.RecordType != got.RecordType:
		return "recordType"
	case want.ValueType != got.ValueType:
		return "valueType"
	case want.Intent != got.Intent:
		return "intent"
	case want.RejectionType != got.RejectionType:
		return "rejectionType"
	case want.RejectionReason != got.RejectionReason:
		return "rejectionReason"
	case want.RequestID != got.RequestID:
		return "requestId"
	case !bytes.Equal(want.Value, got.Value):
		return "value"
	}
	return ""
}
