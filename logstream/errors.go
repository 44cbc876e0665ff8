package logstream

import (
	"github.com/goliatone/go-errors"

	job "github.com/goliatone/go-job"
)

const (
	ErrCodeBufferFull     = "LOG_BUFFER_FULL"
	ErrCodeRecordTooLarge = "RECORD_TOO_LARGE"
	ErrCodeBatchCommitted = "LOG_BATCH_COMMITTED"
)

var (
	// ErrBufferFull is returned when too many external commands wait for processing.
	ErrBufferFull = errors.New("log buffer full", errors.CategoryConflict).
			WithTextCode(ErrCodeBufferFull)
	// ErrRecordTooLarge is returned when a value exceeds the max record length.
	ErrRecordTooLarge = errors.New("record too large", errors.CategoryBadInput).
				WithTextCode(ErrCodeRecordTooLarge)
	ErrBatchCommitted = errors.New("batch already committed", errors.CategoryConflict).
				WithTextCode(ErrCodeBatchCommitted)
)

func cloneError(base *errors.Error, message string, metadata map[string]any) *errors.Error {
	err := base.Clone()
	if message != "" {
		err.Message = message
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// IsBufferFull reports whether err signals back pressure.
func IsBufferFull(err error) bool {
	return job.ErrorCode(err) == ErrCodeBufferFull
}

// IsRecordTooLarge reports whether err is a record length violation.
func IsRecordTooLarge(err error) bool {
	return job.ErrorCode(err) == ErrCodeRecordTooLarge
}
