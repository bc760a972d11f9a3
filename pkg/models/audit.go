package models

import "time"

// WorkflowType tags the audit thread with the review flow it belongs to.
type WorkflowType int

const (
	WorkflowTypeSQLReview WorkflowType = 2
)

// Approval status of an audit record.
type ApprovalStatus int

const (
	ApprovalWaiting  ApprovalStatus = 0
	ApprovalPassed   ApprovalStatus = 1
	ApprovalRejected ApprovalStatus = 2
)

// AuditOperation is the closed set of audit-log operation codes. Each
// lifecycle event gets its own code so the history can be reconstructed
// without parsing description strings.
type AuditOperation int

const (
	AuditOpSubmit   AuditOperation = 0
	AuditOpApprove  AuditOperation = 1
	AuditOpReject   AuditOperation = 2
	AuditOpAutoFire AuditOperation = 4
	AuditOpPause    AuditOperation = 5
	AuditOpResume   AuditOperation = 6
	AuditOpStop     AuditOperation = 7
	AuditOpExecute  AuditOperation = 8
)

// Description returns the fixed human label for the operation code.
func (op AuditOperation) Description() string {
	switch op {
	case AuditOpSubmit:
		return "submit order"
	case AuditOpApprove:
		return "approve order"
	case AuditOpReject:
		return "reject order"
	case AuditOpAutoFire:
		return "scheduled fire"
	case AuditOpPause:
		return "pause order"
	case AuditOpResume:
		return "resume order"
	case AuditOpStop:
		return "stop order"
	case AuditOpExecute:
		return "execute order"
	default:
		return "unknown operation"
	}
}

// AuditRecord is the approval/tracking thread opened for an order that
// required review. Exactly one record exists per reviewed order.
type AuditRecord struct {
	AuditID       string         `json:"audit_id"`
	OrderID       string         `json:"order_id"`
	WorkflowType  WorkflowType   `json:"workflow_type"`
	Status        ApprovalStatus `json:"status"`
	ApprovalChain []string       `json:"approval_chain"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AuditLogEntry is one immutable event in an order's history. Entries are
// never mutated or deleted; insertion order is the authoritative ordering.
type AuditLogEntry struct {
	ID          int64          `json:"id"`
	AuditID     string         `json:"audit_id"`
	Operation   AuditOperation `json:"operation"`
	Description string         `json:"description"`
	Info        string         `json:"info"`
	Operator    string         `json:"operator"` // Empty for system events
	CreatedAt   time.Time      `json:"created_at"`
}

// NewAuditLogEntry builds a log entry with the operation's fixed description.
func NewAuditLogEntry(auditID string, op AuditOperation, info, operator string) *AuditLogEntry {
	return &AuditLogEntry{
		AuditID:     auditID,
		Operation:   op,
		Description: op.Description(),
		Info:        info,
		Operator:    operator,
		CreatedAt:   time.Now().UTC(),
	}
}
