package services

import (
	"context"
	"log/slog"

	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

// AuditHistory is one order's audit record with its full log thread.
type AuditHistory struct {
	Record *models.AuditRecord     `json:"record"`
	Logs   []*models.AuditLogEntry `json:"logs"`
}

// AuditTrail serves an order's audit history and appends out-of-band log
// entries. A lookup miss is an error; log entries are never attached to a
// missing thread.
type AuditTrail struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

// NewAuditTrail creates the audit trail service.
func NewAuditTrail(logger *slog.Logger, store persistence.Persistence) *AuditTrail {
	return &AuditTrail{persistence: store, logger: logger.With("module", "audit")}
}

// History returns the audit record and ordered log entries of an order.
func (a *AuditTrail) History(ctx context.Context, orderID string) (*AuditHistory, error) {
	record, err := a.persistence.AuditByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	logs, err := a.persistence.AuditLogs(ctx, record.AuditID)
	if err != nil {
		return nil, err
	}

	return &AuditHistory{Record: record, Logs: logs}, nil
}

// AddLog appends one entry to an order's audit thread. Operator is empty
// for system events.
func (a *AuditTrail) AddLog(ctx context.Context, orderID string, op models.AuditOperation, info, operator string) error {
	record, err := a.persistence.AuditByOrderID(ctx, orderID)
	if err != nil {
		return err
	}

	entry := models.NewAuditLogEntry(record.AuditID, op, info, operator)

	return a.persistence.AppendAuditLog(ctx, entry)
}
