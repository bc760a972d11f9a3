package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sqlcron/sqlcron/pkg/engine"
	"github.com/sqlcron/sqlcron/pkg/eventbus"
	"github.com/sqlcron/sqlcron/pkg/events"
	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/notify"
	"github.com/sqlcron/sqlcron/pkg/persistence"
	"github.com/sqlcron/sqlcron/pkg/sysconfig"
)

// GroupResolver answers resource-group questions against the directory
// backing the deployment.
type GroupResolver interface {
	IsMember(ctx context.Context, user, groupID string) (bool, error)
	Reviewers(ctx context.Context, groupID string) ([]string, error)
}

// ScheduleSpec is the caller-facing schedule configuration of a submission.
type ScheduleSpec struct {
	Kind           models.ScheduleKind `json:"kind"            validate:"required"`
	Minutes        int                 `json:"minutes,omitempty"`
	CronExpression string              `json:"cron_expression,omitempty"`
	FirstFireAt    time.Time           `json:"first_fire_at"   validate:"required"`
}

// SubmitRequest is the shared payload of change and query submissions.
type SubmitRequest struct {
	Name         string       `json:"name"          validate:"required,min=3"`
	DemandURL    string       `json:"demand_url"`
	GroupID      string       `json:"group_id"      validate:"required"`
	GroupName    string       `json:"group_name"`
	Engineer     string       `json:"engineer"      validate:"required"`
	InstanceName string       `json:"instance_name" validate:"required"`
	DBName       string       `json:"db_name"       validate:"required"`
	SQLContent   string       `json:"sql_content"   validate:"required"`
	IsBackup     bool         `json:"is_backup"`
	Receivers    []string     `json:"receivers"`
	CCList       []string     `json:"cc_list"`
	Schedule     ScheduleSpec `json:"schedule"      validate:"required"`
}

// Submission handles new change and query orders: check, review routing,
// atomic creation and the submission notification.
type Submission struct {
	persistence persistence.Persistence
	engines     engine.Resolver
	groups      GroupResolver
	config      *sysconfig.Service
	dispatcher  notify.Dispatcher
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewSubmission creates the submission service.
func NewSubmission(logger *slog.Logger, store persistence.Persistence, engines engine.Resolver, groups GroupResolver, config *sysconfig.Service, dispatcher notify.Dispatcher, publisher eventbus.EventPublisher) *Submission {
	return &Submission{
		persistence: store,
		engines:     engines,
		groups:      groups,
		config:      config,
		dispatcher:  dispatcher,
		publisher:   publisher,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "submission"),
	}
}

// SubmitChange checks and persists a recurring change order. The check
// engine's findings decide the initial status according to the review
// policy; rejected orders are stored with their review payload and never
// get an active schedule.
func (s *Submission) SubmitChange(ctx context.Context, req SubmitRequest) (*models.WorkflowOrder, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("SubmitChange", "INVALID_SUBMISSION", err.Error(), ErrInvalidRequest)
	}

	eng, err := s.engines.EngineFor(ctx, req.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve engine for instance %q: %w", req.InstanceName, err)
	}

	check, err := eng.ExecuteCheck(ctx, req.DBName, req.SQLContent)
	if err != nil {
		return nil, NewValidationError("SubmitChange", "CHECK_FAILED", err.Error(), ErrInvalidRequest)
	}

	cfg := s.config.Get()

	status := models.StatusManualReviewing
	if s.rejectedByPolicy(cfg.ReviewPolicy, check.WarningCount, check.ErrorCount) {
		status = models.StatusAutoReviewWrong
	}

	isBackup := req.IsBackup
	if !cfg.EnableBackupSwitch && eng.AutoBackup() {
		// Backup is mandatory when the operator has not opened the switch.
		isBackup = true
	}

	reviewJSON, err := check.Review.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize review result: %w", err)
	}

	return s.create(ctx, req, models.KindRecurringChange, status, check.SyntaxType, isBackup, reviewJSON)
}

// SubmitQuery checks and persists a recurring query order. Query orders
// always pass through manual review; the stored review payload is the
// single synthetic row the check produces.
func (s *Submission) SubmitQuery(ctx context.Context, req SubmitRequest) (*models.WorkflowOrder, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("SubmitQuery", "INVALID_SUBMISSION", err.Error(), ErrInvalidRequest)
	}

	eng, err := s.engines.EngineFor(ctx, req.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve engine for instance %q: %w", req.InstanceName, err)
	}

	check, err := eng.QueryCheck(ctx, req.DBName, req.SQLContent)
	if err != nil {
		return nil, NewValidationError("SubmitQuery", "CHECK_FAILED", err.Error(), ErrInvalidRequest)
	}

	if check.BadQuery {
		return nil, NewValidationError("SubmitQuery", "BAD_QUERY", check.Msg, ErrBadQuery)
	}

	cfg := s.config.Get()
	if check.HasStar && cfg.DisableStar {
		return nil, NewValidationError("SubmitQuery", "STAR_FORBIDDEN", check.Msg, ErrStarForbidden)
	}

	review := models.NewReviewSet(req.SQLContent)
	review.Append(models.ReviewResult{
		StageStatus:  "Audit completed",
		ErrorMessage: "None",
		SQL:          check.FilteredSQL,
	})

	reviewJSON, err := review.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize review result: %w", err)
	}

	return s.create(ctx, req, models.KindRecurringQuery, models.StatusManualReviewing, models.SyntaxQuery, false, reviewJSON)
}

func (s *Submission) rejectedByPolicy(policy sysconfig.ReviewPolicy, warnings, errCount int) bool {
	switch policy {
	case sysconfig.PolicyRejectOnWarning:
		return errCount > 0 || warnings > 0
	case sysconfig.PolicyRejectOnError:
		return errCount > 0
	default:
		return errCount > 0
	}
}

// create builds the order, content, schedule entry and audit thread and
// persists them in one transaction, then fans out the submission
// notification.
func (s *Submission) create(ctx context.Context, req SubmitRequest, kind models.OrderKind, status models.OrderStatus, syntaxType models.SyntaxType, isBackup bool, reviewJSON string) (*models.WorkflowOrder, error) {
	orderID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate order ID: %w", err)
	}

	schedule, err := models.NewScheduleEntry(orderID.String(), req.Schedule.Kind, req.Schedule.Minutes, req.Schedule.CronExpression, req.Schedule.FirstFireAt)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSchedule) {
			return nil, NewValidationError("create", "INVALID_SCHEDULE", err.Error(), ErrInvalidScheduleReq)
		}

		return nil, err
	}

	order := &models.WorkflowOrder{
		ID:           orderID.String(),
		Name:         req.Name,
		Kind:         kind,
		DemandURL:    req.DemandURL,
		GroupID:      req.GroupID,
		GroupName:    req.GroupName,
		Engineer:     req.Engineer,
		InstanceName: req.InstanceName,
		DBName:       req.DBName,
		SyntaxType:   syntaxType,
		IsBackup:     isBackup,
		Status:       status,
		Receivers:    req.Receivers,
		CCList:       req.CCList,
		ScheduleName: schedule.Name,
		CreatedAt:    time.Now().UTC(),
	}

	content := &models.WorkflowContent{
		OrderID:       order.ID,
		SQLContent:    req.SQLContent,
		ReviewContent: reviewJSON,
	}

	var (
		audit *models.AuditRecord
		log   *models.AuditLogEntry
	)

	if status == models.StatusManualReviewing {
		chain, chainErr := s.groups.Reviewers(ctx, req.GroupID)
		if chainErr != nil {
			return nil, fmt.Errorf("failed to resolve approval chain: %w", chainErr)
		}

		auditID, idErr := uuid.NewV7()
		if idErr != nil {
			return nil, fmt.Errorf("failed to generate audit ID: %w", idErr)
		}

		audit = &models.AuditRecord{
			AuditID:       auditID.String(),
			OrderID:       order.ID,
			WorkflowType:  models.WorkflowTypeSQLReview,
			Status:        models.ApprovalWaiting,
			ApprovalChain: chain,
			CreatedAt:     order.CreatedAt,
		}
		log = models.NewAuditLogEntry(audit.AuditID, models.AuditOpSubmit, "order submitted for review", req.Engineer)
	}

	if err := s.persistence.CreateOrder(ctx, order, content, schedule, audit, log); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	s.logger.InfoContext(ctx, "Order submitted",
		"order_id", order.ID,
		"kind", order.Kind,
		"status", order.Status)

	s.announce(ctx, order)

	return order, nil
}

// announce publishes the submission event and notifies the engineer.
// Failures here never fail the submission.
func (s *Submission) announce(ctx context.Context, order *models.WorkflowOrder) {
	event := events.OrderSubmitted{
		BaseEvent: events.NewBaseEvent(events.OrderSubmittedEvent, order.ID),
		OrderName: order.Name,
		OrderKind: order.Kind,
		Status:    order.Status,
		Engineer:  order.Engineer,
	}

	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish submission event", "order_id", order.ID, "error", err)
	}

	message := "order submitted, awaiting review"
	if order.Status == models.StatusAutoReviewWrong {
		message = "order rejected by automatic review"
	}

	err := s.dispatcher.Dispatch(ctx, notify.Notification{
		OrderID:    order.ID,
		OrderName:  order.Name,
		Status:     order.Status,
		Message:    message,
		Recipients: append([]string{order.Engineer}, order.Receivers...),
		CCList:     order.CCList,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to dispatch submission notification", "order_id", order.ID, "error", err)
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Submission) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}
