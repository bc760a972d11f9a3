// Package postgresql provides PostgreSQL persistence for workflow orders,
// schedule entries and the audit trail.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/persistence"
	"github.com/sqlcron/sqlcron/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	orderRepo    *OrderRepository
	scheduleRepo *ScheduleRepository
	auditRepo    *AuditRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:           database,
		logger:       logger,
		orderRepo:    NewOrderRepository(database, logger),
		scheduleRepo: NewScheduleRepository(database, logger),
		auditRepo:    NewAuditRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// CreateOrder persists a new order with its content, schedule entry and
// optional audit thread in one transaction.
func (p *Persistence) CreateOrder(ctx context.Context, order *models.WorkflowOrder, content *models.WorkflowContent, schedule *models.ScheduleEntry, audit *models.AuditRecord, log *models.AuditLogEntry) error {
	return p.orderRepo.Create(ctx, order, content, schedule, audit, log)
}

// Orders returns a filtered page of workflow orders.
func (p *Persistence) Orders(ctx context.Context, opts persistence.ListOrdersOptions) (*persistence.OrderPage, error) {
	return p.orderRepo.List(ctx, opts)
}

// OrderByID returns a workflow order by its ID.
func (p *Persistence) OrderByID(ctx context.Context, id string) (*models.WorkflowOrder, error) {
	return p.orderRepo.GetByID(ctx, id)
}

// ContentByOrderID returns an order's content payload.
func (p *Persistence) ContentByOrderID(ctx context.Context, orderID string) (*models.WorkflowContent, error) {
	return p.orderRepo.GetContent(ctx, orderID)
}

// Transition atomically applies one guarded status transition.
func (p *Persistence) Transition(ctx context.Context, req persistence.TransitionRequest) error {
	return p.orderRepo.Transition(ctx, req)
}

// FinalizeExecution atomically applies the terminal result of one run.
func (p *Persistence) FinalizeExecution(ctx context.Context, req persistence.FinalizeRequest) error {
	return p.orderRepo.Finalize(ctx, req)
}

// ScheduleByName returns a schedule entry by its unique name.
func (p *Persistence) ScheduleByName(ctx context.Context, name string) (*models.ScheduleEntry, error) {
	return p.scheduleRepo.GetByName(ctx, name)
}

// SaveSchedule upserts a schedule entry.
func (p *Persistence) SaveSchedule(ctx context.Context, entry *models.ScheduleEntry) error {
	return p.scheduleRepo.Save(ctx, entry)
}

// DueSchedules returns the active entries due at now.
func (p *Persistence) DueSchedules(ctx context.Context, now time.Time) ([]*models.ScheduleEntry, error) {
	return p.scheduleRepo.Due(ctx, now)
}

// AuditByOrderID returns the audit record opened for an order.
func (p *Persistence) AuditByOrderID(ctx context.Context, orderID string) (*models.AuditRecord, error) {
	return p.auditRepo.GetByOrderID(ctx, orderID)
}

// AppendAuditLog appends one entry to an audit thread.
func (p *Persistence) AppendAuditLog(ctx context.Context, log *models.AuditLogEntry) error {
	return p.auditRepo.AppendLog(ctx, log)
}

// AuditLogs returns an audit thread's entries in insertion order.
func (p *Persistence) AuditLogs(ctx context.Context, auditID string) ([]*models.AuditLogEntry, error) {
	return p.auditRepo.Logs(ctx, auditID)
}
