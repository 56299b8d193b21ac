// Package shared contains common domain types, errors, and events used across
// all domain packages. This package has zero external dependencies.
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

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")

	// Ingestion errors
	ErrDuplicateEvent  = errors.New("duplicate event")
	ErrStaleEvent      = errors.New("stale event")
	ErrInvalidTimezone = errors.New("invalid timezone")

	// State errors
	ErrNotEligible  = errors.New("not eligible")
	ErrInvalidState = errors.New("invalid state")

	// Concurrency errors
	ErrOptimisticLock = errors.New("optimistic lock failure")

	// Storage errors
	ErrUnavailable = errors.New("storage unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "streak", "achievement", "gateway"
	Op      string // Operation that failed, e.g., "RecordActivity"
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

// Streak domain errors
var (
	ErrStreakNotFound    = NewDomainError("streak", "Find", ErrNotFound, "streak state not found")
	ErrRecoveryNotOpen   = NewDomainError("streak", "Recover", ErrNotEligible, "streak is not at risk")
	ErrRecoveryExpired   = NewDomainError("streak", "Recover", ErrNotEligible, "recovery deadline has passed")
	ErrRecoveryExhausted = NewDomainError("streak", "Recover", ErrNotEligible, "recovery already used within eligibility window")
)

// Achievement domain errors
var (
	ErrDefinitionNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement definition not found")
	ErrUnknownCriteria    = NewDomainError("achievement", "Evaluate", ErrInvalidInput, "unknown criteria kind")
)

// Gateway errors
var (
	ErrEventAlreadySeen = NewDomainError("gateway", "Ingest", ErrDuplicateEvent, "dedup key already accepted")
	ErrEmptyDedupKey    = NewDomainError("gateway", "Ingest", ErrInvalidInput, "dedup key is required")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate checks if the error marks an already-accepted event. Duplicates
// are a successful no-op from the producer's point of view.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateEvent)
}

// IsNotEligible checks if the error is an eligibility failure.
func IsNotEligible(err error) bool {
	return errors.Is(err, ErrNotEligible)
}

// IsRetryable checks if the operation can be retried against the store.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOptimisticLock) || errors.Is(err, ErrUnavailable)
}
