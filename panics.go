package job

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"

	"github.com/goliatone/go-errors"
)

// ErrCodePanic tags errors produced from a recovered panic.
const ErrCodePanic = "ENGINE_PANIC"

type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// CapturePanic recovers a panic, logs it and stores it into target as an
// error. It must be deferred directly.
func CapturePanic(target *error, funcName string, logger PanicLogger, fields ...map[string]any) {
	r := recover()
	if r == nil {
		return
	}
	stack := make([]byte, 8096)
	stack = cleanStackTrace(stack[:runtime.Stack(stack, false)])
	if logger == nil {
		logger = DefaultPanicLogger
	}
	logger(funcName, r, stack, fields...)

	err := errors.New(fmt.Sprintf("recovered from panic in %s: %v", funcName, r), errors.CategoryHandler).
		WithTextCode(ErrCodePanic)
	if cause, ok := r.(error); ok {
		err.Source = cause
	}
	if target != nil {
		*target = err
	}
}

func DefaultPanicLogger(funcName string, err any, stack []byte, fields ...map[string]any) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[FATAL] recovered from panic in %s\n", funcName))
	sb.WriteString(fmt.Sprintf("Error: %v (%T)\n", err, err))

	if len(fields) > 0 && fields[0] != nil {
		sb.WriteString("Context:\n")

		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fields[0][k]))
		}
	}

	sb.WriteString("Stack Trace:\n")
	sb.Write(stack)

	log.Print(sb.String())
}

// cleanStackTrace drops the runtime frames above the panic call site.
func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	idx := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			idx = i
			break
		}
	}

	// skip the panic() line and its file reference
	if idx >= 0 && idx+2 < len(lines) {
		lines = lines[idx+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
