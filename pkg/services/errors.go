// Package services provides the business logic for submitting, reviewing
// and controlling scheduled SQL workflow orders.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrEmptySQL           = errors.New("SQL content cannot be empty")
	ErrBadQuery           = errors.New("query statement rejected by check")
	ErrStarForbidden      = errors.New("query selects all columns with *")
	ErrInvalidScheduleReq = errors.New("invalid schedule configuration")

	// Authorization Errors (403 Forbidden).
	ErrNotGroupMember = errors.New("caller is not a member of the order's resource group")

	// Conflict Errors (409 Conflict).
	ErrIllegalOperation = errors.New("operation not allowed in the order's current status")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptySQL) ||
		errors.Is(err, ErrBadQuery) ||
		errors.Is(err, ErrStarForbidden) ||
		errors.Is(err, ErrInvalidScheduleReq)
}

// IsAuthorizationError checks if an error should return HTTP 403.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrNotGroupMember)
}

// IsConflictError checks if an error is a status conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrIllegalOperation)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
