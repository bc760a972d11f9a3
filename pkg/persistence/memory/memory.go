// Package memory provides an in-memory persistence implementation used by
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

// Persistence keeps every record in process memory behind one mutex, which
// gives the compound operations the same atomicity the SQL backends get
// from transactions.
type Persistence struct {
	mu        sync.Mutex
	orders    map[string]*models.WorkflowOrder
	contents  map[string]*models.WorkflowContent
	schedules map[string]*models.ScheduleEntry
	audits    map[string]*models.AuditRecord // keyed by order ID
	logs      map[string][]*models.AuditLogEntry
	nextLogID int64
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		orders:    make(map[string]*models.WorkflowOrder),
		contents:  make(map[string]*models.WorkflowContent),
		schedules: make(map[string]*models.ScheduleEntry),
		audits:    make(map[string]*models.AuditRecord),
		logs:      make(map[string][]*models.AuditLogEntry),
	}
}

// CreateOrder persists a new order with its content, schedule entry and
// optional audit thread as one atomic step.
func (p *Persistence) CreateOrder(_ context.Context, order *models.WorkflowOrder, content *models.WorkflowContent, schedule *models.ScheduleEntry, audit *models.AuditRecord, log *models.AuditLogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if order.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate order ID: %w", err)
		}

		order.ID = id.String()
	}

	if _, exists := p.orders[order.ID]; exists {
		return persistence.NewOrderError("CreateOrder", order.ID, persistence.ErrOrderAlreadyExists)
	}

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	stored := *order
	p.orders[order.ID] = &stored

	storedContent := *content
	storedContent.OrderID = order.ID
	p.contents[order.ID] = &storedContent

	if schedule != nil {
		storedSchedule := *schedule
		p.schedules[schedule.Name] = &storedSchedule
	}

	if audit != nil {
		storedAudit := *audit
		p.audits[order.ID] = &storedAudit

		if log != nil {
			log.AuditID = audit.AuditID
			p.appendLogLocked(log)
		}
	}

	return nil
}

// Orders returns a filtered page of orders, newest first.
func (p *Persistence) Orders(_ context.Context, opts persistence.ListOrdersOptions) (*persistence.OrderPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	matched := make([]*models.WorkflowOrder, 0)

	for _, order := range p.orders {
		if opts.Status != "" && order.Status != opts.Status {
			continue
		}

		if opts.Kind != "" && order.Kind != opts.Kind {
			continue
		}

		if opts.GroupID != "" && order.GroupID != opts.GroupID {
			continue
		}

		if opts.Engineer != "" && order.Engineer != opts.Engineer {
			continue
		}

		if opts.Search != "" && !strings.Contains(strings.ToLower(order.Name), strings.ToLower(opts.Search)) {
			continue
		}

		copied := *order
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := &persistence.OrderPage{Total: len(matched)}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}

	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	page.Orders = matched[start:end]

	return page, nil
}

// OrderByID returns an order by its ID.
func (p *Persistence) OrderByID(_ context.Context, id string) (*models.WorkflowOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[id]
	if !ok {
		return nil, persistence.NewOrderError("OrderByID", id, persistence.ErrOrderNotFound)
	}

	copied := *order

	return &copied, nil
}

// ContentByOrderID returns an order's content payload.
func (p *Persistence) ContentByOrderID(_ context.Context, orderID string) (*models.WorkflowContent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, ok := p.contents[orderID]
	if !ok {
		return nil, persistence.NewOrderError("ContentByOrderID", orderID, persistence.ErrContentNotFound)
	}

	copied := *content

	return &copied, nil
}

// Transition atomically applies one guarded status transition.
func (p *Persistence) Transition(_ context.Context, req persistence.TransitionRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[req.OrderID]
	if !ok {
		return persistence.NewOrderError("Transition", req.OrderID, persistence.ErrOrderNotFound)
	}

	if !slices.Contains(req.From, order.Status) {
		return &persistence.OrderError{
			Op:      "Transition",
			OrderID: req.OrderID,
			Err:     persistence.ErrIllegalTransition,
			Message: fmt.Sprintf("cannot %s from status %q", req.Op, order.Status),
		}
	}

	if req.Log != nil {
		if err := p.resolveAuditIDLocked(req.OrderID, req.Log); err != nil {
			return err
		}
	}

	order.Status = req.To

	if req.Repeats != nil {
		if entry, found := p.schedules[order.ScheduleName]; found {
			entry.Repeats = *req.Repeats
			entry.UpdatedAt = time.Now().UTC()
		}
	}

	if req.Approval != nil {
		if record, found := p.audits[req.OrderID]; found {
			record.Status = *req.Approval
		}
	}

	if req.Log != nil {
		p.appendLogLocked(req.Log)
	}

	return nil
}

// FinalizeExecution atomically applies the terminal result of one run,
// dropping stale completions.
func (p *Persistence) FinalizeExecution(_ context.Context, req persistence.FinalizeRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[req.OrderID]
	if !ok {
		return persistence.NewOrderError("Finalize", req.OrderID, persistence.ErrOrderNotFound)
	}

	if !slices.Contains(req.Expected, order.Status) {
		return &persistence.OrderError{
			Op:      "Finalize",
			OrderID: req.OrderID,
			Err:     persistence.ErrStaleCompletion,
			Message: fmt.Sprintf("order is in status %q", order.Status),
		}
	}

	// A recurring order re-enters finish, so the status check alone cannot
	// catch a duplicate delivery; the execution id can.
	if req.ExecutionID != "" && req.ExecutionID == order.LastExecutionID {
		return &persistence.OrderError{
			Op:      "Finalize",
			OrderID: req.OrderID,
			Err:     persistence.ErrStaleCompletion,
			Message: fmt.Sprintf("execution %q already finalized", req.ExecutionID),
		}
	}

	if req.Log != nil {
		if err := p.resolveAuditIDLocked(req.OrderID, req.Log); err != nil {
			return err
		}
	}

	order.Status = req.To
	order.LastExecutionID = req.ExecutionID
	finishTime := req.FinishTime
	order.FinishedAt = &finishTime

	if content, found := p.contents[req.OrderID]; found {
		content.ExecuteResult = req.ExecuteResult
	}

	if req.Log != nil {
		p.appendLogLocked(req.Log)
	}

	return nil
}

// ScheduleByName returns a schedule entry by its unique name.
func (p *Persistence) ScheduleByName(_ context.Context, name string) (*models.ScheduleEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.schedules[name]
	if !ok {
		return nil, &persistence.ScheduleError{Op: "GetByName", Name: name, Err: persistence.ErrScheduleNotFound}
	}

	copied := *entry

	return &copied, nil
}

// SaveSchedule upserts a schedule entry by name.
func (p *Persistence) SaveSchedule(_ context.Context, entry *models.ScheduleEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry.UpdatedAt = time.Now().UTC()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.UpdatedAt
	}

	copied := *entry
	p.schedules[entry.Name] = &copied

	return nil
}

// DueSchedules returns the active entries due at now, earliest first.
func (p *Persistence) DueSchedules(_ context.Context, now time.Time) ([]*models.ScheduleEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	due := make([]*models.ScheduleEntry, 0)

	for _, entry := range p.schedules {
		if entry.Due(now) {
			copied := *entry
			due = append(due, &copied)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextFireAt.Before(due[j].NextFireAt)
	})

	return due, nil
}

// AuditByOrderID returns the audit record opened for an order.
func (p *Persistence) AuditByOrderID(_ context.Context, orderID string) (*models.AuditRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, ok := p.audits[orderID]
	if !ok {
		return nil, &persistence.AuditError{Op: "GetByOrderID", OrderID: orderID, Err: persistence.ErrAuditNotFound}
	}

	copied := *record

	return &copied, nil
}

// AppendAuditLog appends one entry to an audit thread.
func (p *Persistence) AppendAuditLog(_ context.Context, log *models.AuditLogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.appendLogLocked(log)

	return nil
}

// AuditLogs returns an audit thread's entries in insertion order.
func (p *Persistence) AuditLogs(_ context.Context, auditID string) ([]*models.AuditLogEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.logs[auditID]
	copied := make([]*models.AuditLogEntry, 0, len(entries))

	for _, entry := range entries {
		e := *entry
		copied = append(copied, &e)
	}

	return copied, nil
}

// HealthCheck always succeeds for the in-memory store.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// resolveAuditIDLocked fills in the entry's audit thread from the order's
// audit record. A missing record is an error; log appends never silently
// vanish.
func (p *Persistence) resolveAuditIDLocked(orderID string, log *models.AuditLogEntry) error {
	if log.AuditID != "" {
		return nil
	}

	record, ok := p.audits[orderID]
	if !ok {
		return &persistence.AuditError{Op: "AppendLog", OrderID: orderID, Err: persistence.ErrAuditNotFound}
	}

	log.AuditID = record.AuditID

	return nil
}

func (p *Persistence) appendLogLocked(log *models.AuditLogEntry) {
	p.nextLogID++
	log.ID = p.nextLogID

	copied := *log
	p.logs[log.AuditID] = append(p.logs[log.AuditID], &copied)
}
