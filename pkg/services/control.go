package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/notify"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

// ControlResult is the caller-facing outcome of a control operation.
// Status 0 means applied, 1 means rejected.
type ControlResult struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
}

// Control applies the manual lifecycle operations to orders: approve,
// pause, resume and stop. Every operation checks group membership, then
// hands the guarded transition to the persistence layer, which applies the
// status write, the schedule repeats write and the audit-log append
// atomically.
type Control struct {
	persistence persistence.Persistence
	groups      GroupResolver
	dispatcher  notify.Dispatcher
	logger      *slog.Logger
}

// NewControl creates the control service.
func NewControl(logger *slog.Logger, store persistence.Persistence, groups GroupResolver, dispatcher notify.Dispatcher) *Control {
	return &Control{
		persistence: store,
		groups:      groups,
		dispatcher:  dispatcher,
		logger:      logger.With("module", "control"),
	}
}

// Approve moves a reviewed order to review_pass and activates its schedule
// in the same transaction. The order waits in review_pass until the poller
// dispatches its next due fire; it stays pausable and stoppable meanwhile.
func (c *Control) Approve(ctx context.Context, orderID, caller string) (*ControlResult, error) {
	repeats := models.RepeatsForever
	approval := models.ApprovalPassed

	return c.apply(ctx, orderID, caller, models.OpApprove, models.AuditOpApprove, &repeats, &approval, "order approved, schedule activated")
}

// Pause suppresses future fires of an order. A run already dispatched is
// not interrupted and will still finalize.
func (c *Control) Pause(ctx context.Context, orderID, caller string) (*ControlResult, error) {
	repeats := models.RepeatsInactive

	return c.apply(ctx, orderID, caller, models.OpPause, models.AuditOpPause, &repeats, nil, "order paused")
}

// Resume reactivates a paused order's schedule.
func (c *Control) Resume(ctx context.Context, orderID, caller string) (*ControlResult, error) {
	repeats := models.RepeatsForever

	return c.apply(ctx, orderID, caller, models.OpResume, models.AuditOpResume, &repeats, nil, "order resumed")
}

// Stop terminates an order. Stopped orders never fire again and cannot be
// resumed.
func (c *Control) Stop(ctx context.Context, orderID, caller string) (*ControlResult, error) {
	repeats := models.RepeatsInactive

	return c.apply(ctx, orderID, caller, models.OpStop, models.AuditOpStop, &repeats, nil, "order stopped")
}

func (c *Control) apply(ctx context.Context, orderID, caller, op string, auditOp models.AuditOperation, repeats *int, approval *models.ApprovalStatus, successMsg string) (*ControlResult, error) {
	order, err := c.persistence.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	member, err := c.groups.IsMember(ctx, caller, order.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to check group membership: %w", err)
	}

	if !member {
		return nil, &ServiceError{
			Op:      op,
			Code:    "NOT_GROUP_MEMBER",
			Message: fmt.Sprintf("user %q is not a member of group %q", caller, order.GroupID),
			Err:     ErrNotGroupMember,
		}
	}

	target, err := models.GuardTransition(op, order.Status)
	if err != nil {
		if models.IsIllegalTransition(err) {
			return &ControlResult{Status: 1, Msg: err.Error()}, nil
		}

		return nil, err
	}

	req := persistence.TransitionRequest{
		OrderID:  orderID,
		Op:       op,
		From:     models.TransitionSources(op),
		To:       target,
		Repeats:  repeats,
		Approval: approval,
		Log:      models.NewAuditLogEntry("", auditOp, successMsg, caller),
	}

	err = c.persistence.Transition(ctx, req)
	if err != nil {
		// The pre-check above raced with another writer; report the
		// rejection instead of failing the call.
		if errors.Is(err, persistence.ErrIllegalTransition) {
			return &ControlResult{Status: 1, Msg: err.Error()}, nil
		}

		return nil, err
	}

	c.logger.InfoContext(ctx, "Control operation applied",
		"order_id", orderID,
		"op", op,
		"operator", caller,
		"status", target)

	c.notifyControl(ctx, order, target, successMsg)

	return &ControlResult{Status: 0, Msg: successMsg}, nil
}

func (c *Control) notifyControl(ctx context.Context, order *models.WorkflowOrder, status models.OrderStatus, message string) {
	err := c.dispatcher.Dispatch(ctx, notify.Notification{
		OrderID:    order.ID,
		OrderName:  order.Name,
		Status:     status,
		Message:    message,
		Recipients: append([]string{order.Engineer}, order.Receivers...),
		CCList:     order.CCList,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to dispatch control notification", "order_id", order.ID, "error", err)
	}
}
