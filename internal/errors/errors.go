// Package errors defines the persona engine error taxonomy.
//
// Every failure that crosses a package boundary is an *Error carrying a Code.
// errors.Is matches on Code alone, so callers compare against the Err* sentinels.
package errors

import (
	"fmt"
	"strconv"
)

// #region codes

// Code is a machine-readable error category.
type Code string

const (
	CodeUnknownField       Code = "UNKNOWN_FIELD"
	CodeRangeViolation     Code = "RANGE_VIOLATION"
	CodePersistence        Code = "PERSISTENCE"
	CodeInsufficientSample Code = "INSUFFICIENT_SAMPLE"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeUnknown            Code = "UNKNOWN"
)

// Sentinels for errors.Is.
var (
	ErrUnknownField       = &Error{Code: CodeUnknownField}
	ErrRangeViolation     = &Error{Code: CodeRangeViolation}
	ErrPersistence        = &Error{Code: CodePersistence}
	ErrInsufficientSample = &Error{Code: CodeInsufficientSample}
	ErrInvalidArgument    = &Error{Code: CodeInvalidArgument}
	ErrNotFound           = &Error{Code: CodeNotFound}
)

// #endregion codes

// #region error

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// #endregion error

// #region constructors

// UnknownField reports an event target that does not resolve against the schema.
func UnknownField(path string) *Error {
	return &Error{
		Code:     CodeUnknownField,
		Message:  fmt.Sprintf("unknown field %q", path),
		Metadata: map[string]string{"field": path},
	}
}

// RangeViolation reports a value outside its declared range. It signals a broken
// invariant: the update engine clamps every value it writes.
func RangeViolation(path string, value any, reason string) *Error {
	return &Error{
		Code:     CodeRangeViolation,
		Message:  fmt.Sprintf("field %s value %v: %s", path, value, reason),
		Metadata: map[string]string{"field": path, "reason": reason},
	}
}

// Persistence wraps a storage failure. The committed state is unchanged.
func Persistence(op string, cause error) *Error {
	return &Error{
		Code:     CodePersistence,
		Message:  "persist " + op,
		Metadata: map[string]string{"op": op},
		Cause:    cause,
	}
}

// InsufficientSample reports outcome feedback deferred until enough samples accrue.
func InsufficientSample(have, need int) *Error {
	return &Error{
		Code:    CodeInsufficientSample,
		Message: fmt.Sprintf("outcome deferred: %d of %d samples", have, need),
		Metadata: map[string]string{
			"have": strconv.Itoa(have),
			"need": strconv.Itoa(need),
		},
	}
}

// InvalidArgument reports malformed caller input.
func InvalidArgument(message string) *Error {
	return New(CodeInvalidArgument, message)
}

// NotFound reports a missing entity.
func NotFound(what string) *Error {
	return New(CodeNotFound, what+" not found")
}

// #endregion constructors
