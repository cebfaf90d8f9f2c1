// Package shared contains common domain types, errors and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Integrity errors: the caller handed the core an inconsistent working set.
	ErrIntegrity = errors.New("referential integrity violation")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "grade", "achievement", "climbing"
	Op      string // Operation that failed, e.g., "Build", "Lookup"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Grade scale errors
var (
	ErrScaleNotFound  = NewDomainError("grade", "Lookup", ErrNotFound, "grade scale not found")
	ErrDuplicateLabel = NewDomainError("grade", "Validate", ErrInvalidInput, "duplicate label in grade scale")
	ErrEmptyScale     = NewDomainError("grade", "Validate", ErrEmptyValue, "grade scale has no labels")
)

// Climbing domain errors
var (
	ErrProblemNotFound      = NewDomainError("climbing", "FindProblem", ErrNotFound, "problem not found")
	ErrGymNotFound          = NewDomainError("climbing", "FindGym", ErrNotFound, "gym not found")
	ErrClimberNotFound      = NewDomainError("climbing", "FindClimber", ErrNotFound, "climber not found")
	ErrInvalidAttempts      = NewDomainError("climbing", "Validate", ErrValueOutOfRange, "attempts must be at least 1")
	ErrInvalidThresholdBand = NewDomainError("climbing", "Validate", ErrInvalidInput, "threshold band needs at least one non-negative position")
	ErrInvalidDateRange     = NewDomainError("climbing", "Validate", ErrInvalidInput, "date range end is before its start")
)

// Achievement domain errors
var (
	ErrUnknownProblem = NewDomainError("achievement", "Build", ErrIntegrity, "attempt references a problem outside the working set")
)

// Statistics snapshot errors
var (
	ErrSnapshotNotFound = NewDomainError("snapshot", "Find", ErrNotFound, "interval snapshot not found")
	ErrInvalidInterval  = NewDomainError("snapshot", "Validate", ErrInvalidInput, "invalid statistics interval")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsIntegrity checks if the error signals an inconsistent working set.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
