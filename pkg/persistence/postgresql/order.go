package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

// OrderRepository handles workflow-order database operations, including the
// compound transactional transitions.
type OrderRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(db *sql.DB, logger *slog.Logger) *OrderRepository {
	return &OrderRepository{db: db, logger: logger}
}

const orderColumns = `
	id
  , name
  , kind
  , demand_url
  , group_id
  , group_name
  , engineer
  , instance_name
  , db_name
  , syntax_type
  , is_backup
  , status
  , receivers
  , cc_list
  , schedule_name
  , last_execution_id
  , created_at
  , finished_at
`

// Create inserts the order, its content, its schedule entry and, when audit
// is non-nil, the audit record and submit log in one transaction.
func (r *OrderRepository) Create(ctx context.Context, order *models.WorkflowOrder, content *models.WorkflowContent, schedule *models.ScheduleEntry, audit *models.AuditRecord, log *models.AuditLogEntry) error {
	if order.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate order ID: %w", err)
		}

		order.ID = id.String()
	}

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	receiversJSON, err := json.Marshal(order.Receivers)
	if err != nil {
		return fmt.Errorf("failed to marshal receivers: %w", err)
	}

	ccJSON, err := json.Marshal(order.CCList)
	if err != nil {
		return fmt.Errorf("failed to marshal cc list: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_orders (
			id, name, kind, demand_url, group_id, group_name, engineer,
			instance_name, db_name, syntax_type, is_backup, status,
			receivers, cc_list, schedule_name, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, order.ID, order.Name, order.Kind, order.DemandURL, order.GroupID,
		order.GroupName, order.Engineer, order.InstanceName, order.DBName,
		order.SyntaxType, order.IsBackup, order.Status, receiversJSON,
		ccJSON, order.ScheduleName, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_contents (order_id, sql_content, review_content, execute_result)
		VALUES ($1, $2, $3, $4)
	`, order.ID, content.SQLContent, content.ReviewContent, content.ExecuteResult)
	if err != nil {
		return fmt.Errorf("failed to insert order content: %w", err)
	}

	if schedule != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO schedule_entries (
				name, order_id, kind, minutes, cron_expression,
				next_fire_at, repeats, timeout_seconds, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, schedule.Name, schedule.OrderID, schedule.Kind, schedule.Minutes,
			schedule.CronExpression, schedule.NextFireAt, schedule.Repeats,
			schedule.TimeoutSeconds, schedule.CreatedAt, schedule.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert schedule entry: %w", err)
		}
	}

	if audit != nil {
		chainJSON, marshalErr := json.Marshal(audit.ApprovalChain)
		if marshalErr != nil {
			err = fmt.Errorf("failed to marshal approval chain: %w", marshalErr)

			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_records (audit_id, order_id, workflow_type, status, approval_chain, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, audit.AuditID, audit.OrderID, audit.WorkflowType, audit.Status,
			chainJSON, audit.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert audit record: %w", err)
		}

		if log != nil {
			log.AuditID = audit.AuditID

			err = appendAuditLogTx(ctx, tx, log)
			if err != nil {
				return err
			}
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit order creation: %w", err)
	}

	return nil
}

// GetByID returns an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.WorkflowOrder, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM workflow_orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewOrderError("GetByID", id, persistence.ErrOrderNotFound)
		}

		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	return order, nil
}

// GetContent returns an order's content payload.
func (r *OrderRepository) GetContent(ctx context.Context, orderID string) (*models.WorkflowContent, error) {
	content := &models.WorkflowContent{OrderID: orderID}

	err := r.db.QueryRowContext(ctx, `
		SELECT sql_content, review_content, execute_result
		FROM workflow_contents
		WHERE order_id = $1
	`, orderID).Scan(&content.SQLContent, &content.ReviewContent, &content.ExecuteResult)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewOrderError("GetContent", orderID, persistence.ErrContentNotFound)
		}

		return nil, fmt.Errorf("failed to scan order content: %w", err)
	}

	return content, nil
}

// List returns a filtered page of orders, newest first.
func (r *OrderRepository) List(ctx context.Context, opts persistence.ListOrdersOptions) (*persistence.OrderPage, error) {
	where := "WHERE 1=1"
	args := []any{}

	addFilter := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if opts.Status != "" {
		addFilter("status =", string(opts.Status))
	}

	if opts.Kind != "" {
		addFilter("kind =", string(opts.Kind))
	}

	if opts.GroupID != "" {
		addFilter("group_id =", opts.GroupID)
	}

	if opts.Engineer != "" {
		addFilter("engineer =", opts.Engineer)
	}

	if opts.Search != "" {
		addFilter("name ILIKE", "%"+opts.Search+"%")
	}

	var total int

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_orders "+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	args = append(args, limit, opts.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM workflow_orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, orderColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	page := &persistence.OrderPage{Orders: make([]*models.WorkflowOrder, 0), Total: total}

	for rows.Next() {
		order, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan order: %w", scanErr)
		}

		page.Orders = append(page.Orders, order)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return page, nil
}

// Transition applies one guarded status transition. The row is locked, the
// current status checked against req.From, and the status write, optional
// schedule repeats write and optional audit-log append commit together.
func (r *OrderRepository) Transition(ctx context.Context, req persistence.TransitionRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		current      models.OrderStatus
		scheduleName string
	)

	err = tx.QueryRowContext(ctx, `
		SELECT status, schedule_name
		FROM workflow_orders
		WHERE id = $1
		FOR UPDATE
	`, req.OrderID).Scan(&current, &scheduleName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.NewOrderError("Transition", req.OrderID, persistence.ErrOrderNotFound)

			return err
		}

		return fmt.Errorf("failed to lock order: %w", err)
	}

	if !slices.Contains(req.From, current) {
		err = &persistence.OrderError{
			Op:      "Transition",
			OrderID: req.OrderID,
			Err:     persistence.ErrIllegalTransition,
			Message: fmt.Sprintf("cannot %s from status %q", req.Op, current),
		}

		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE workflow_orders SET status = $1 WHERE id = $2
	`, req.To, req.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	if req.Repeats != nil && scheduleName != "" {
		_, err = tx.ExecContext(ctx, `
			UPDATE schedule_entries SET repeats = $1, updated_at = NOW() WHERE name = $2
		`, *req.Repeats, scheduleName)
		if err != nil {
			return fmt.Errorf("failed to update schedule repeats: %w", err)
		}
	}

	if req.Approval != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE audit_records SET status = $1 WHERE order_id = $2
		`, *req.Approval, req.OrderID)
		if err != nil {
			return fmt.Errorf("failed to update approval status: %w", err)
		}
	}

	if req.Log != nil {
		err = r.appendLogForOrder(ctx, tx, req.OrderID, req.Log)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}

	return nil
}

// Finalize applies the terminal result of one run. When the order's current
// status is not in req.Expected the result is stale and dropped.
func (r *OrderRepository) Finalize(ctx context.Context, req persistence.FinalizeRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		current         models.OrderStatus
		lastExecutionID string
	)

	err = tx.QueryRowContext(ctx, `
		SELECT status, last_execution_id
		FROM workflow_orders
		WHERE id = $1
		FOR UPDATE
	`, req.OrderID).Scan(&current, &lastExecutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.NewOrderError("Finalize", req.OrderID, persistence.ErrOrderNotFound)

			return err
		}

		return fmt.Errorf("failed to lock order: %w", err)
	}

	if !slices.Contains(req.Expected, current) {
		err = &persistence.OrderError{
			Op:      "Finalize",
			OrderID: req.OrderID,
			Err:     persistence.ErrStaleCompletion,
			Message: fmt.Sprintf("order is in status %q", current),
		}

		return err
	}

	// A recurring order re-enters finish, so the status check alone cannot
	// catch a duplicate delivery; the execution id can.
	if req.ExecutionID != "" && req.ExecutionID == lastExecutionID {
		err = &persistence.OrderError{
			Op:      "Finalize",
			OrderID: req.OrderID,
			Err:     persistence.ErrStaleCompletion,
			Message: fmt.Sprintf("execution %q already finalized", req.ExecutionID),
		}

		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE workflow_orders SET status = $1, last_execution_id = $2, finished_at = $3 WHERE id = $4
	`, req.To, req.ExecutionID, req.FinishTime, req.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE workflow_contents SET execute_result = $1 WHERE order_id = $2
	`, req.ExecuteResult, req.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update execute result: %w", err)
	}

	if req.Log != nil {
		err = r.appendLogForOrder(ctx, tx, req.OrderID, req.Log)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit finalization: %w", err)
	}

	return nil
}

// appendLogForOrder resolves the order's audit thread inside the transaction
// and appends the entry. An order without an audit record fails the whole
// transaction; log appends never silently vanish.
func (r *OrderRepository) appendLogForOrder(ctx context.Context, tx *sql.Tx, orderID string, log *models.AuditLogEntry) error {
	if log.AuditID == "" {
		err := tx.QueryRowContext(ctx, `
			SELECT audit_id FROM audit_records WHERE order_id = $1
		`, orderID).Scan(&log.AuditID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &persistence.AuditError{Op: "AppendLog", OrderID: orderID, Err: persistence.ErrAuditNotFound}
			}

			return fmt.Errorf("failed to resolve audit record: %w", err)
		}
	}

	return appendAuditLogTx(ctx, tx, log)
}

func appendAuditLogTx(ctx context.Context, tx *sql.Tx, log *models.AuditLogEntry) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO audit_logs (audit_id, operation, description, info, operator, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, log.AuditID, log.Operation, log.Description, log.Info, log.Operator, log.CreatedAt).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.WorkflowOrder, error) {
	var (
		order         models.WorkflowOrder
		receiversJSON []byte
		ccJSON        []byte
		finishedAt    sql.NullTime
	)

	err := row.Scan(&order.ID, &order.Name, &order.Kind, &order.DemandURL,
		&order.GroupID, &order.GroupName, &order.Engineer, &order.InstanceName,
		&order.DBName, &order.SyntaxType, &order.IsBackup, &order.Status,
		&receiversJSON, &ccJSON, &order.ScheduleName, &order.LastExecutionID,
		&order.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(receiversJSON, &order.Receivers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receivers: %w", err)
	}

	if err := json.Unmarshal(ccJSON, &order.CCList); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cc list: %w", err)
	}

	if finishedAt.Valid {
		t := finishedAt.Time

		order.FinishedAt = &t
	}

	return &order, nil
}
