// Package persistence provides the data storage abstraction for workflow
// orders, schedule entries and the audit trail.
package persistence

import (
	"context"
	"time"

	"github.com/sqlcron/sqlcron/pkg/models"
)

// TransitionRequest describes one atomic status transition: the status
// check, the status write, the optional schedule repeats write and the
// audit-log append commit or fail together.
type TransitionRequest struct {
	OrderID string
	Op      string
	From    []models.OrderStatus
	To      models.OrderStatus
	// Repeats, when non-nil, is written to the order's schedule entry in
	// the same transaction.
	Repeats *int
	// Approval, when non-nil, is written to the order's audit record in
	// the same transaction.
	Approval *models.ApprovalStatus
	// Log, when non-nil, is appended to the order's audit thread in the
	// same transaction.
	Log *models.AuditLogEntry
}

// FinalizeRequest applies the terminal result of one run: status, execute
// result payload, finish time and audit-log append commit together. The
// write happens only when the order's current status is in Expected and
// ExecutionID differs from the order's last finalized run; otherwise
// ErrStaleCompletion is returned and nothing changes.
type FinalizeRequest struct {
	OrderID string
	// ExecutionID identifies the run being finalized. A repeat of the
	// order's most recently finalized execution id is dropped as stale,
	// which catches duplicate deliveries even when the order's status
	// already equals To.
	ExecutionID   string
	Expected      []models.OrderStatus
	To            models.OrderStatus
	ExecuteResult string
	FinishTime    time.Time
	Log           *models.AuditLogEntry
}

// ListOrdersOptions filters and pages the order listing.
type ListOrdersOptions struct {
	Status   models.OrderStatus
	Kind     models.OrderKind
	GroupID  string
	Engineer string
	Search   string // Matches against the order name
	Limit    int
	Offset   int
}

// OrderPage is one page of the order listing.
type OrderPage struct {
	Orders []*models.WorkflowOrder `json:"orders"`
	Total  int                     `json:"total"`
}

// Persistence is implemented by every storage backend. Multi-row
// invariants live behind the compound operations: CreateOrder, Transition
// and FinalizeExecution are atomic, so no caller ever sees an order whose
// status, schedule and audit trail disagree.
type Persistence interface {
	// CreateOrder persists a new order with its content, schedule entry
	// and, when audit is non-nil, the audit record and submit log, all in
	// one transaction.
	CreateOrder(ctx context.Context, order *models.WorkflowOrder, content *models.WorkflowContent, schedule *models.ScheduleEntry, audit *models.AuditRecord, log *models.AuditLogEntry) error

	Orders(ctx context.Context, opts ListOrdersOptions) (*OrderPage, error)
	OrderByID(ctx context.Context, id string) (*models.WorkflowOrder, error)
	ContentByOrderID(ctx context.Context, orderID string) (*models.WorkflowContent, error)

	// Transition atomically applies one guarded status transition.
	Transition(ctx context.Context, req TransitionRequest) error

	// FinalizeExecution atomically applies the terminal result of one run.
	FinalizeExecution(ctx context.Context, req FinalizeRequest) error

	ScheduleByName(ctx context.Context, name string) (*models.ScheduleEntry, error)
	SaveSchedule(ctx context.Context, entry *models.ScheduleEntry) error
	// DueSchedules returns the active entries whose next fire time has
	// passed at now.
	DueSchedules(ctx context.Context, now time.Time) ([]*models.ScheduleEntry, error)

	AuditByOrderID(ctx context.Context, orderID string) (*models.AuditRecord, error)
	AppendAuditLog(ctx context.Context, log *models.AuditLogEntry) error
	// AuditLogs returns an audit thread's entries in insertion order.
	AuditLogs(ctx context.Context, auditID string) ([]*models.AuditLogEntry, error)

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
