package engine

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeFatal         = "ENGINE_FATAL"
	ErrCodeNotProcessing = "ENGINE_NOT_PROCESSING"
	ErrCodeCorruptRecord = "ENGINE_CORRUPT_RECORD"
	ErrCodeReplay        = "ENGINE_REPLAY_DIVERGED"
)

var (
	// ErrFatal wraps anything escaping a unit of work. The engine stops.
	ErrFatal = apperrors.New("engine failed while processing a command", apperrors.CategoryHandler).
			WithTextCode(ErrCodeFatal)
	// ErrNotProcessing is returned to submitters while the engine is not accepting work.
	ErrNotProcessing = apperrors.New("engine is not processing commands", apperrors.CategoryConflict).
				WithTextCode(ErrCodeNotProcessing)
	ErrCorruptRecord = apperrors.New("corrupt record", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeCorruptRecord)
	// ErrReplayDiverged reports a replayed record that does not match the recorded one.
	ErrReplayDiverged = apperrors.New("replay diverged from recorded log", apperrors.CategoryConflict).
				WithTextCode(ErrCodeReplay)
)

func cloneRuntimeError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrFatal
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func runtimeErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsNotProcessing reports whether err means the engine refused the command
// because of its lifecycle phase.
func IsNotProcessing(err error) bool {
	return runtimeErrorCode(err) == ErrCodeNotProcessing
}

// IsFatal reports whether err stopped the engine.
func IsFatal(err error) bool {
	return runtimeErrorCode(err) == ErrCodeFatal
}
