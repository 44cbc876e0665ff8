package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/logstream"
)

// meterName is the instrumentation scope name for engine metrics.
const meterName = "github.com/goliatone/go-job/engine"

// Instruments:
//   - jobengine.records.written (Int64Counter): value_type, intent, record_type
//   - jobengine.commands.rejected (Int64Counter): intent, rejection
//   - jobengine.incidents.created (Int64Counter): error_type
//   - jobengine.batch.jobs (Int64Histogram): jobs per activated batch, job_type
type metrics struct {
	records   metric.Int64Counter
	rejected  metric.Int64Counter
	incidents metric.Int64Counter
	batchJobs metric.Int64Histogram
}

func newMetrics(meter metric.Meter) *metrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	// the API hands back noop instruments on error
	records, _ := meter.Int64Counter(
		"jobengine.records.written",
		metric.WithDescription("Records appended to the log by the engine"),
		metric.WithUnit("{record}"),
	)
	rejected, _ := meter.Int64Counter(
		"jobengine.commands.rejected",
		metric.WithDescription("Commands rejected by precondition checks"),
		metric.WithUnit("{command}"),
	)
	incidents, _ := meter.Int64Counter(
		"jobengine.incidents.created",
		metric.WithDescription("Incidents raised by command processing"),
		metric.WithUnit("{incident}"),
	)
	batchJobs, _ := meter.Int64Histogram(
		"jobengine.batch.jobs",
		metric.WithDescription("Jobs activated per batch"),
		metric.WithUnit("{job}"),
	)
	return &metrics{
		records:   records,
		rejected:  rejected,
		incidents: incidents,
		batchJobs: batchJobs,
	}
}

func (m *metrics) recordWritten(ctx context.Context, written []logstream.Record) {
	for _, rec := range written {
		m.records.Add(ctx, 1, metric.WithAttributes(
			attribute.String("value_type", string(rec.ValueType)),
			attribute.String("intent", string(rec.Intent)),
			attribute.String("record_type", string(rec.RecordType)),
		))
		switch {
		case rec.RecordType == job.RecordCommandRejection:
			m.rejected.Add(ctx, 1, metric.WithAttributes(
				attribute.String("intent", string(rec.Intent)),
				attribute.String("rejection", string(rec.RejectionType)),
			))
		case rec.RecordType == job.RecordEvent && rec.ValueType == job.ValueIncident:
			if inc, err := rec.Incident(); err == nil {
				m.incidents.Add(ctx, 1, metric.WithAttributes(
					attribute.String("error_type", string(inc.ErrorType)),
				))
			}
		case rec.RecordType == job.RecordEvent && rec.ValueType == job.ValueJobBatch:
			if batch, err := rec.Batch(); err == nil {
				m.batchJobs.Record(ctx, int64(batch.Len()), metric.WithAttributes(
					attribute.String("job_type", batch.Type),
				))
			}
		}
	}
}
