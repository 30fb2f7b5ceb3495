package engine

import (
	"errors"
	"fmt"
)

// BodyError represents an error detected while running transaction or
// method bodies inside a cycle.
//
// Body errors include:
//   - Undeclared call: a body calls a method missing from its call list
//   - Duplicate call: a method is invoked twice in one cycle
//   - Invalid args/result: data does not match the method layout
//   - Body failure: a user body returned an error
//
// A body error aborts the cycle; nothing is recorded for it.
type BodyError struct {
	// Code identifies the error category.
	Code BodyErrorCode

	// Message is a human-readable description.
	Message string

	// Cycle is the logical cycle the error occurred in.
	Cycle int64

	// Transaction is the firing transaction whose body was running.
	Transaction string

	// Method is the method being called, if any.
	Method string

	// Err is the underlying cause, if any.
	Err error
}

// BodyErrorCode categorizes body errors.
type BodyErrorCode string

const (
	// ErrCodeUndeclaredCall indicates a call to a method the caller did not declare.
	ErrCodeUndeclaredCall BodyErrorCode = "UNDECLARED_CALL"

	// ErrCodeDuplicateCall indicates a method was called twice in one cycle.
	ErrCodeDuplicateCall BodyErrorCode = "DUPLICATE_CALL"

	// ErrCodeInvalidArgs indicates arguments do not match the input layout.
	ErrCodeInvalidArgs BodyErrorCode = "INVALID_ARGS"

	// ErrCodeInvalidResult indicates a result does not match the output layout.
	ErrCodeInvalidResult BodyErrorCode = "INVALID_RESULT"

	// ErrCodeBodyFailed indicates a user body returned an error.
	ErrCodeBodyFailed BodyErrorCode = "BODY_FAILED"
)

// Error implements the error interface.
func (e *BodyError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Method != "" {
		return fmt.Sprintf("%s: %s (cycle=%d, transaction=%s, method=%s)", e.Code, msg, e.Cycle, e.Transaction, e.Method)
	}
	return fmt.Sprintf("%s: %s (cycle=%d, transaction=%s)", e.Code, msg, e.Cycle, e.Transaction)
}

// Unwrap returns the underlying cause.
func (e *BodyError) Unwrap() error {
	return e.Err
}

// IsBodyError returns true if err is or wraps a BodyError.
func IsBodyError(err error) bool {
	var be *BodyError
	return errors.As(err, &be)
}

// BodyErrorCodeOf returns the code of the BodyError in err's chain, or "".
func BodyErrorCodeOf(err error) BodyErrorCode {
	var be *BodyError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
