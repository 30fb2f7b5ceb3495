package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ConflictCode categorizes ConflictGraphError.
type ConflictCode string

const (
	// CodePriorityCycle indicates forced priorities form a cycle (A > B > ... > A).
	CodePriorityCycle ConflictCode = "PRIORITY_CYCLE"

	// CodeCallCycle indicates methods call each other in a cycle.
	CodeCallCycle ConflictCode = "CALL_CYCLE"

	// CodeSelfConflict indicates a transaction would have to exclude itself,
	// e.g. it reaches two methods declared mutually exclusive.
	CodeSelfConflict ConflictCode = "SELF_CONFLICT"
)

// ConflictGraphError is a fatal build-time error: the declared relations
// cannot be satisfied by any schedule.
type ConflictGraphError struct {
	// Code identifies the error category.
	Code ConflictCode

	// Message is a human-readable description.
	Message string

	// Path is the offending cycle, closed (first element repeated last).
	// Empty for self conflicts.
	Path []string

	// Transaction names the self-conflicting transaction.
	Transaction string
}

// Error implements the error interface.
func (e *ConflictGraphError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, strings.Join(e.Path, " → "))
	}
	if e.Transaction != "" {
		return fmt.Sprintf("%s: %s (transaction=%s)", e.Code, e.Message, e.Transaction)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LateRegistrationError is returned when a builder is used after Finalize.
type LateRegistrationError struct {
	Op   string // "method", "transaction", "call", "exclusive", "priority", "finalize"
	Name string
}

// Error implements the error interface.
func (e *LateRegistrationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("late registration: %s after graph finalization", e.Op)
	}
	return fmt.Sprintf("late registration: %s %q after graph finalization", e.Op, e.Name)
}

// UnreachableMethodError is a warning-level diagnostic: no transaction ever
// reaches the method, directly or through other methods.
type UnreachableMethodError struct {
	Method string
}

// Error implements the error interface.
func (e *UnreachableMethodError) Error() string {
	return fmt.Sprintf("unreachable method %q: no transaction calls it", e.Method)
}

// DeclarationCode categorizes DeclarationError.
type DeclarationCode string

const (
	CodeDuplicateName   DeclarationCode = "DUPLICATE_NAME"
	CodeUnknownName     DeclarationCode = "UNKNOWN_NAME"
	CodeSelfRelation    DeclarationCode = "SELF_RELATION"
	CodeCallTransaction DeclarationCode = "CALLS_TRANSACTION"
	CodeEmptyName       DeclarationCode = "EMPTY_NAME"
	CodeInvalidLayout   DeclarationCode = "INVALID_LAYOUT"
)

// DeclarationError reports a malformed declaration (bad or missing names).
type DeclarationError struct {
	Code    DeclarationCode
	Name    string
	Message string
}

// Error implements the error interface.
func (e *DeclarationError) Error() string {
	return fmt.Sprintf("%s: %s (%q)", e.Code, e.Message, e.Name)
}

// IsConflictGraphError returns true if err is or wraps a ConflictGraphError.
func IsConflictGraphError(err error) bool {
	var ce *ConflictGraphError
	return errors.As(err, &ce)
}

// IsLateRegistration returns true if err is or wraps a LateRegistrationError.
func IsLateRegistration(err error) bool {
	var le *LateRegistrationError
	return errors.As(err, &le)
}

// IsDeclarationError returns true if err is or wraps a DeclarationError.
func IsDeclarationError(err error) bool {
	var de *DeclarationError
	return errors.As(err, &de)
}
