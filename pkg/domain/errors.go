package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeAlreadyEnrolled   = "ALREADY_ENROLLED"
	ErrCodeContentionTimeout = "CONTENTION_TIMEOUT"

	// Assignment outcomes reported to API callers. The engine returns them as
	// results, not errors.
	ErrCodeNoEligibleBroker = "NO_ELIGIBLE_BROKER"
	ErrCodeAlreadyAssigned  = "ALREADY_ASSIGNED"
)

// Error constructors

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewMissingIDsError reports every id of a batch that does not exist
func NewMissingIDsError(resource string, ids []int) error {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, strings.Join(parts, ", ")),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError() error {
	return &DomainError{
		Code:    ErrCodeUnauthorized,
		Message: "Authentication required",
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(msg string) error {
	return &DomainError{
		Code:    ErrCodeForbidden,
		Message: msg,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(err error) error {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "An internal error occurred",
		Err:     err,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

// NewAlreadyEnrolledError is returned when an active roster entry already exists for the broker
func NewAlreadyEnrolledError(brokerID string) error {
	return &DomainError{
		Code:    ErrCodeAlreadyEnrolled,
		Message: fmt.Sprintf("broker %s is already enrolled in the rotation", brokerID),
	}
}

// NewContentionTimeoutError wraps a lock-wait failure. Callers may retry.
func NewContentionTimeoutError(err error) error {
	return &DomainError{
		Code:    ErrCodeContentionTimeout,
		Message: "timed out waiting for assignment locks",
		Err:     err,
	}
}

// Helper functions to check error types

func hasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool {
	return hasCode(err, ErrCodeUnauthorized)
}

// IsForbidden checks if the error is a forbidden error
func IsForbidden(err error) bool {
	return hasCode(err, ErrCodeForbidden)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return hasCode(err, ErrCodeInternal)
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsAlreadyEnrolled checks if the error is an enrollment conflict
func IsAlreadyEnrolled(err error) bool {
	return hasCode(err, ErrCodeAlreadyEnrolled)
}

// IsContentionTimeout checks if the error is a retryable lock-wait timeout
func IsContentionTimeout(err error) bool {
	return hasCode(err, ErrCodeContentionTimeout)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}
