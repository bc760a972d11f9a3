package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

// AuditRepository handles audit-trail database operations.
type AuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// GetByOrderID returns the audit record opened for an order.
func (r *AuditRepository) GetByOrderID(ctx context.Context, orderID string) (*models.AuditRecord, error) {
	var (
		record    models.AuditRecord
		chainJSON []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT audit_id, order_id, workflow_type, status, approval_chain, created_at
		FROM audit_records
		WHERE order_id = $1
	`, orderID).Scan(&record.AuditID, &record.OrderID, &record.WorkflowType,
		&record.Status, &chainJSON, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.AuditError{Op: "GetByOrderID", OrderID: orderID, Err: persistence.ErrAuditNotFound}
		}

		return nil, fmt.Errorf("failed to scan audit record: %w", err)
	}

	if err := json.Unmarshal(chainJSON, &record.ApprovalChain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval chain: %w", err)
	}

	return &record, nil
}

// AppendLog appends one entry to an audit thread.
func (r *AuditRepository) AppendLog(ctx context.Context, log *models.AuditLogEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = appendAuditLogTx(ctx, tx, log)
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit audit log: %w", err)
	}

	return nil
}

// Logs returns an audit thread's entries in insertion order.
func (r *AuditRepository) Logs(ctx context.Context, auditID string) ([]*models.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, audit_id, operation, description, info, operator, created_at
		FROM audit_logs
		WHERE audit_id = $1
		ORDER BY id
	`, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	logs := make([]*models.AuditLogEntry, 0)

	for rows.Next() {
		var entry models.AuditLogEntry

		err := rows.Scan(&entry.ID, &entry.AuditID, &entry.Operation,
			&entry.Description, &entry.Info, &entry.Operator, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		logs = append(logs, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return logs, nil
}
