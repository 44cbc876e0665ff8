package job

import (
	stderrors "errors"

	"github.com/goliatone/go-errors"
)

// ErrValidation is the template every argument failure is cloned from.
var ErrValidation = errors.New("validation error", errors.CategoryValidation).
	WithTextCode(string(RejectInvalidArgument))

// IsValidation reports whether err is an argument failure.
func IsValidation(err error) bool {
	return ErrorCode(err) == string(RejectInvalidArgument)
}

// ErrorCode extracts the text code of a go-errors value, or "".
func ErrorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// ValidationReason returns the client facing reason carried by err.
func ValidationReason(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return err.Error()
}

func invalidArgument(reason string) error {
	err := ErrValidation.Clone()
	err.Message = reason
	return err
}
