package engine

import (
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/logstream"
)

// Response is what a submitter gets back for its command: the accepted
// primary event or the rejection, plus every record the command produced.
type Response struct {
	Position  int64
	Key       int64
	Intent    job.Intent
	ValueType job.ValueType
	Job       *job.Job
	Batch     *job.Batch
	Rejection *job.Rejection
	Records   []logstream.Record
}

func (r Response) Accepted() bool {
	return r.Rejection == nil
}

func buildResponse(source logstream.Record, written []logstream.Record) (Response, error) {
	resp := Response{
		Position:  source.Position,
		Key:       source.Key,
		Intent:    source.Intent,
		ValueType: source.ValueType,
		Records:   written,
	}
	for _, rec := range written {
		switch {
		case rec.RecordType == job.RecordCommandRejection:
			resp.Rejection = rec.Rejection()
			return resp, nil
		case rec.RecordType == job.RecordEvent && rec.ValueType == source.ValueType:
			resp.Key = rec.Key
			resp.Intent = rec.Intent
			var err error
			if rec.ValueType == job.ValueJobBatch {
				resp.Batch, err = rec.Batch()
			} else {
				resp.Job, err = rec.Job()
			}
			return resp, err
		}
	}
	return resp, nil
}
