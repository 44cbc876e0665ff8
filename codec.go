package job

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes v with sorted map keys so equal values yield equal bytes.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// DecodeCommand rebuilds a command from its record intent and value.
func DecodeCommand(valueType ValueType, intent Intent, data []byte) (Command, error) {
	var cmd Command
	switch {
	case valueType == ValueJobBatch && intent == IntentActivate:
		var c ActivateBatch
		if err := Unmarshal(data, &c); err != nil {
			return nil, err
		}
		cmd = c
	case valueType == ValueJob:
		var err error
		cmd, err = decodeJobCommand(intent, data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown command %s/%s", valueType, intent)
	}
	return cmd, nil
}

func decodeJobCommand(intent Intent, data []byte) (Command, error) {
	switch intent {
	case IntentCreate:
		return decodeInto[Create](data)
	case IntentComplete:
		return decodeInto[Complete](data)
	case IntentFail:
		return decodeInto[Fail](data)
	case IntentCancel:
		return decodeInto[Cancel](data)
	case IntentUpdateRetries:
		return decodeInto[UpdateRetries](data)
	case IntentThrowError:
		return decodeInto[ThrowError](data)
	case IntentTimeOut:
		return decodeInto[TimeOut](data)
	case IntentYield:
		return decodeInto[Yield](data)
	case IntentUpdateTimeout:
		return decodeInto[UpdateTimeout](data)
	case IntentRecurAfterBackoff:
		return decodeInto[RecurAfterBackoff](data)
	default:
		return nil, fmt.Errorf("unknown job command intent %s", intent)
	}
}

func decodeInto[T Command](data []byte) (Command, error) {
	var c T
	if err := Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c, nil
}
