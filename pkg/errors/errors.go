// Package errors provides production-grade error handling for TripFlow.
// It implements structured errors with codes, context, and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Configuration errors (1xx)
	CodeInvalidConfig   Code = "E101"
	CodeEmptyTargetSet  Code = "E102"
	CodeInvalidWindow   Code = "E103"
	CodeInvalidCap      Code = "E104"
	CodeInvalidDropProb Code = "E105"
	CodeInvalidMode     Code = "E106"

	// Ingest errors (2xx)
	CodeFileNotFound     Code = "E201"
	CodeMalformedEvent   Code = "E202"
	CodeInvalidTimestamp Code = "E203"
	CodeWindowUnderflow  Code = "E204"

	// Artifact errors (3xx)
	CodeWriteFailed Code = "E301"
	CodeReadFailed  Code = "E302"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeInvariant       Code = "E402"
	CodePanic           Code = "E403"

	// Store errors (5xx)
	CodeStoreInit     Code = "E501"
	CodeStoreQuery    Code = "E502"
	CodeStoreWrite    Code = "E503"
	CodeStoreNotFound Code = "E504"

	// Unknown
	CodeUnknown Code = "E999"
)

// TripFlowError is the base error type for all TripFlow errors.
type TripFlowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *TripFlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *TripFlowError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *TripFlowError) Is(target error) bool {
	if t, ok := target.(*TripFlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *TripFlowError) WithContext(key string, value interface{}) *TripFlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new TripFlowError.
func New(code Code, message string) *TripFlowError {
	return &TripFlowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *TripFlowError {
	if err == nil {
		return nil
	}

	return &TripFlowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *TripFlowError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return errors.Is(err, &TripFlowError{Code: code})
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *TripFlowError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// InvalidConfig creates a configuration error for a named option.
func InvalidConfig(option string, reason string) *TripFlowError {
	return New(CodeInvalidConfig, "invalid configuration").
		WithContext("option", option).
		WithContext("reason", reason)
}

// FileNotFound creates a file not found error.
func FileNotFound(path string) *TripFlowError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// MalformedEvent creates an error for a row that cannot become an event.
func MalformedEvent(row int64, reason string) *TripFlowError {
	return New(CodeMalformedEvent, "malformed event").
		WithContext("row", row).
		WithContext("reason", reason)
}

// InvalidTimestamp creates a timestamp parsing error.
func InvalidTimestamp(value string, row int64) *TripFlowError {
	return New(CodeInvalidTimestamp, "failed to parse timestamp").
		WithContext("value", value).
		WithContext("row", row)
}

// Invariant creates a fatal internal invariant violation. The offending
// state is attached as context so the run can be debugged post-mortem.
func Invariant(what string) *TripFlowError {
	return New(CodeInvariant, "invariant violation").WithContext("invariant", what)
}
