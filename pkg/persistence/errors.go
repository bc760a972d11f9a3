// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrOrderNotFound indicates a workflow order was not found by the given identifier.
	ErrOrderNotFound = errors.New("workflow order not found")

	// ErrContentNotFound indicates no content row exists for the given order.
	ErrContentNotFound = errors.New("workflow content not found")

	// ErrScheduleNotFound indicates a schedule entry was not found by name.
	ErrScheduleNotFound = errors.New("schedule entry not found")

	// ErrAuditNotFound indicates no audit record exists for the given order.
	ErrAuditNotFound = errors.New("audit record not found")

	// ErrOrderAlreadyExists indicates an order with the same identifier already exists.
	ErrOrderAlreadyExists = errors.New("workflow order already exists")

	// ErrIllegalTransition indicates the order's current status is not a legal
	// source for the requested transition.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrStaleCompletion indicates a finalization arrived for an order whose
	// status no longer matches any expected pre-state. The run result is
	// dropped without being applied.
	ErrStaleCompletion = errors.New("stale completion")
)

// OrderError wraps order-related errors with additional context.
type OrderError struct {
	Op      string // Operation being performed (e.g., "OrderByID", "Transition")
	OrderID string // Order ID if applicable
	Err     error  // Underlying error
	Message string // Additional context message
}

func (e *OrderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for order %s: %s (%v)", e.Op, e.OrderID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for order %s: %v", e.Op, e.OrderID, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for order errors.
func (e *OrderError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOrderError creates a new order error with context.
func NewOrderError(op, orderID string, err error) *OrderError {
	return &OrderError{
		Op:      op,
		OrderID: orderID,
		Err:     err,
	}
}

// ScheduleError wraps schedule-related errors with additional context.
type ScheduleError struct {
	Op   string // Operation being performed
	Name string // Schedule entry name
	Err  error  // Underlying error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("%s operation failed for schedule %s: %v", e.Op, e.Name, e.Err)
}

func (e *ScheduleError) Unwrap() error {
	return e.Err
}

func (e *ScheduleError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// AuditError wraps audit-trail errors with additional context.
type AuditError struct {
	Op      string // Operation being performed
	OrderID string // Order ID
	Err     error  // Underlying error
}

func (e *AuditError) Error() string {
	return fmt.Sprintf("%s operation failed for audit of order %s: %v", e.Op, e.OrderID, e.Err)
}

func (e *AuditError) Unwrap() error {
	return e.Err
}

func (e *AuditError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsOrderNotFound checks if an error indicates a workflow order was not found.
func IsOrderNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

// IsScheduleNotFound checks if an error indicates a schedule entry was not found.
func IsScheduleNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}

// IsAuditNotFound checks if an error indicates an audit record was not found.
func IsAuditNotFound(err error) bool {
	return errors.Is(err, ErrAuditNotFound)
}

// IsStaleCompletion checks if an error indicates a dropped finalization.
func IsStaleCompletion(err error) bool {
	return errors.Is(err, ErrStaleCompletion)
}
