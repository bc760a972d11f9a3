// Package runner executes fired orders and finalizes their results.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sqlcron/sqlcron/pkg/engine"
	"github.com/sqlcron/sqlcron/pkg/eventbus"
	"github.com/sqlcron/sqlcron/pkg/events"
	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/otelhelper"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

const tracerName = "sqlcron/runner"

// Runner consumes fire events, runs the order's SQL against its target
// instance and publishes the raw outcome. It never finalizes order state
// itself; that is the finalizer's job.
type Runner struct {
	workerID    string
	persistence persistence.Persistence
	engines     engine.Resolver
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewRunner creates a runner identified by workerID in completion events.
func NewRunner(logger *slog.Logger, workerID string, store persistence.Persistence, engines engine.Resolver, publisher eventbus.EventPublisher) *Runner {
	return &Runner{
		workerID:    workerID,
		persistence: store,
		engines:     engines,
		publisher:   publisher,
		logger:      logger.With("module", "runner", "worker_id", workerID),
	}
}

// HandleFired processes one fire event. A parked order is moved to
// executing first; orders whose status changed since dispatch are dropped.
func (r *Runner) HandleFired(ctx context.Context, event any) error {
	fired, ok := event.(*events.OrderFired)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	logger := r.logger.With("order_id", fired.OrderID, "execution_id", fired.ExecutionID)

	order, err := r.persistence.OrderByID(ctx, fired.OrderID)
	if err != nil {
		if persistence.IsOrderNotFound(err) {
			logger.WarnContext(ctx, "Fired order no longer exists, dropping")

			return nil
		}

		return err
	}

	runStatus := fired.DispatchStatus

	if order.Status == models.StatusTimingTask {
		err = r.persistence.Transition(ctx, persistence.TransitionRequest{
			OrderID: order.ID,
			Op:      models.OpFire,
			From:    models.TransitionSources(models.OpFire),
			To:      models.TransitionTarget(models.OpFire),
			Log:     models.NewAuditLogEntry("", models.AuditOpAutoFire, "system scheduled execution", ""),
		})
		if err != nil {
			if errors.Is(err, persistence.ErrIllegalTransition) {
				logger.WarnContext(ctx, "Order moved since dispatch, dropping fire", "error", err)

				return nil
			}

			return err
		}

		runStatus = models.StatusExecuting
	} else if order.Status != fired.DispatchStatus {
		// Control intervened between dispatch and pickup. Paused orders
		// still run: the fire was already committed and the finalizer
		// accepts completions out of pause.
		if order.Status != models.StatusPause {
			logger.WarnContext(ctx, "Order status changed since dispatch, dropping fire",
				"dispatch_status", fired.DispatchStatus,
				"status", order.Status)

			return nil
		}
	}

	content, err := r.persistence.ContentByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}

	completion := r.run(ctx, order, content, fired, runStatus)

	return r.publisher.Publish(ctx, order.ID, completion)
}

// run executes the SQL and shapes the completion event. Engine failures
// are carried in the event, never returned: the fire is consumed either way.
func (r *Runner) run(ctx context.Context, order *models.WorkflowOrder, content *models.WorkflowContent, fired *events.OrderFired, runStatus models.OrderStatus) events.OrderExecutionCompleted {
	completion := events.OrderExecutionCompleted{
		BaseEvent:      events.NewBaseEvent(events.OrderExecutionCompletedEvent, order.ID),
		ExecutionID:    fired.ExecutionID,
		OrderKind:      order.Kind,
		DispatchStatus: runStatus,
		FullSQL:        content.SQLContent,
	}
	completion.WorkerID = r.workerID

	runCtx, cancel := r.withTimeout(ctx, order)
	defer cancel()

	tracer := otel.Tracer(tracerName)

	runCtx, span := otelhelper.StartSpan(runCtx, tracer, "order.execute",
		attribute.String(otelhelper.OrderIDKey, order.ID),
		attribute.String(otelhelper.OrderKindKey, string(order.Kind)),
		attribute.String(otelhelper.ExecutionIDKey, fired.ExecutionID),
		attribute.String(otelhelper.InstanceKey, order.InstanceName),
		attribute.String(otelhelper.WorkerIDKey, r.workerID),
	)
	defer span.End()

	started := time.Now()

	eng, err := r.engines.EngineFor(runCtx, order.InstanceName)
	if err != nil {
		completion.ErrorText = err.Error()
		completion.DurationMs = time.Since(started).Milliseconds()
		otelhelper.SetError(span, err)

		return completion
	}

	switch order.Kind {
	case models.KindRecurringQuery:
		result, queryErr := eng.Query(runCtx, order.DBName, content.SQLContent)

		switch {
		case queryErr != nil:
			completion.ErrorText = queryErr.Error()
			otelhelper.SetError(span, queryErr)
		case result.Error != "":
			completion.ErrorText = result.Error
		default:
			completion.Success = true
			completion.Columns = result.Columns
			completion.Rows = result.Rows
			completion.AffectedRows = result.AffectedRows
		}
	case models.KindRecurringChange:
		result, execErr := eng.Execute(runCtx, order.DBName, content.SQLContent)

		switch {
		case execErr != nil:
			completion.ErrorText = execErr.Error()
			otelhelper.SetError(span, execErr)
		case result.Error != "":
			completion.ErrorText = result.Error
		default:
			completion.Success = true
			completion.AffectedRows = result.AffectedRows
		}
	default:
		completion.ErrorText = fmt.Sprintf("unknown order kind %q", order.Kind)
	}

	completion.DurationMs = time.Since(started).Milliseconds()

	r.logger.InfoContext(ctx, "Order run completed",
		"order_id", order.ID,
		"execution_id", fired.ExecutionID,
		"success", completion.Success,
		"duration_ms", completion.DurationMs)

	return completion
}

// withTimeout applies the schedule entry's per-run timeout when one is set.
func (r *Runner) withTimeout(ctx context.Context, order *models.WorkflowOrder) (context.Context, context.CancelFunc) {
	entry, err := r.persistence.ScheduleByName(ctx, order.ScheduleName)
	if err != nil || entry.TimeoutSeconds <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, time.Duration(entry.TimeoutSeconds)*time.Second)
}
