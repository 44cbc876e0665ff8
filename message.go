package job

import (
	"reflect"

	"github.com/goliatone/go-errors"
)

// Message is the interface every command message implements.
type Message interface {
	Type() string
	Validate() error
}

func IsNilMessage(msg any) bool {
	if msg == nil {
		return true
	}

	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Ptr {
		return false
	}

	return v.IsNil()
}

// ValidateMessage runs the message's own validation. Failures always come
// back tagged INVALID_ARGUMENT so callers can tell them apart from engine faults.
func ValidateMessage(msg Message) error {
	if IsNilMessage(msg) {
		return errors.New("nil message pointer", errors.CategoryValidation).
			WithTextCode(string(RejectInvalidArgument))
	}

	if err := msg.Validate(); err != nil {
		if IsValidation(err) {
			return err
		}
		return errors.Wrap(err, errors.CategoryValidation, "message validation failed").
			WithTextCode(string(RejectInvalidArgument))
	}

	return nil
}
