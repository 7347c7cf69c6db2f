// Package shared contains common domain types, errors, events, and value objects
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

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrConflict         = errors.New("conflicting state")
	ErrExpired          = errors.New("expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "checkin", "bestie", "stats"
	Op      string // Operation that failed, e.g., "Complete", "Escalate"
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

// Check-in domain errors
var (
	ErrCheckInNotFound       = NewDomainError("checkin", "Find", ErrNotFound, "check-in not found")
	ErrCheckInNotActive      = NewDomainError("checkin", "Transition", ErrInvalidState, "check-in is not active")
	ErrCheckInAlreadyAlerted = NewDomainError("checkin", "Complete", ErrConflict, "check-in already escalated")
	ErrCheckInNotOwner       = NewDomainError("checkin", "Authorize", ErrForbidden, "caller is not the check-in owner")
	ErrInvalidDuration       = NewDomainError("checkin", "Validate", ErrValueOutOfRange, "invalid check-in duration")
	ErrEmptyCircle           = NewDomainError("checkin", "Validate", ErrInvalidInput, "safety circle is empty")
)

// User domain errors
var (
	ErrUserNotFound      = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrUserAlreadyExists = NewDomainError("user", "Create", ErrAlreadyExists, "user already exists")
)

// Bestie domain errors
var (
	ErrBestieNotFound      = NewDomainError("bestie", "Find", ErrNotFound, "bestie relationship not found")
	ErrBestieExists        = NewDomainError("bestie", "Request", ErrAlreadyExists, "bestie relationship already exists")
	ErrSelfBestie          = NewDomainError("bestie", "Request", ErrInvalidInput, "cannot bestie yourself")
	ErrBestieNotParty      = NewDomainError("bestie", "Authorize", ErrForbidden, "caller is not a party to this relationship")
	ErrBestieNotPending    = NewDomainError("bestie", "Respond", ErrInvalidState, "relationship is not pending")
	ErrBestieNotRecipient  = NewDomainError("bestie", "Respond", ErrForbidden, "only the recipient can respond")
	ErrMilestoneDuplicate  = NewDomainError("bestie", "RecordMilestone", ErrAlreadyExists, "milestone already recorded")
	ErrInteractionNotFound = NewDomainError("bestie", "FindInteraction", ErrNotFound, "interaction not found")
)

// Notification domain errors
var (
	ErrNotificationFailed = NewDomainError("notification", "Send", ErrExternalService, "failed to deliver notification")
	ErrInvalidPushToken   = NewDomainError("notification", "Send", ErrInvalidInput, "push token is invalid or revoked")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
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

// IsAuthorization checks if the error is an authorization failure.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsConflict checks if the error is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrConcurrentModification)
}

// IsRetryable checks if the operation can be retried. Lifecycle handlers are
// idempotent, so transient I/O failures are always safe to replay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
