package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sqlcron/sqlcron/pkg/artifact"
	"github.com/sqlcron/sqlcron/pkg/events"
	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/notify"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

// Finalizer consumes completion events and applies each run's terminal
// result exactly once: status, execute result payload, finish time, the
// audit log entry and the outgoing notification.
type Finalizer struct {
	persistence persistence.Persistence
	artifacts   *artifact.Writer
	dispatcher  notify.Dispatcher
	logger      *slog.Logger
}

// NewFinalizer creates the finalizer. artifacts may be nil when query
// result files are disabled.
func NewFinalizer(logger *slog.Logger, store persistence.Persistence, artifacts *artifact.Writer, dispatcher notify.Dispatcher) *Finalizer {
	return &Finalizer{
		persistence: store,
		artifacts:   artifacts,
		dispatcher:  dispatcher,
		logger:      logger.With("module", "finalizer"),
	}
}

// HandleCompleted processes one completion event. Stale completions, for
// example the second delivery of a duplicate, are dropped without touching
// order state or notifying anyone.
func (f *Finalizer) HandleCompleted(ctx context.Context, event any) error {
	completion, ok := event.(*events.OrderExecutionCompleted)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	logger := f.logger.With("order_id", completion.OrderID, "execution_id", completion.ExecutionID)

	order, err := f.persistence.OrderByID(ctx, completion.OrderID)
	if err != nil {
		if persistence.IsOrderNotFound(err) {
			logger.WarnContext(ctx, "Completed order no longer exists, dropping")

			return nil
		}

		return err
	}

	finishTime := time.Now().UTC()
	target := models.StatusFinish
	artifactPath := ""

	review := models.NewReviewSet(completion.FullSQL)

	if completion.Success {
		if completion.OrderKind == models.KindRecurringQuery && f.artifacts != nil {
			artifactPath, err = f.artifacts.WriteResult(order.ID, finishTime, completion.Columns, completion.Rows)
			if err != nil {
				// The run itself succeeded; record the result without a file.
				logger.ErrorContext(ctx, "Failed to write query artifact", "error", err)
				artifactPath = ""
			}
		}

		review.Append(models.ReviewResult{
			StageStatus:  "Execute Successfully",
			ErrorMessage: "None",
			SQL:          completion.FullSQL,
			AffectedRows: completion.AffectedRows,
			ExecuteTime:  float64(completion.DurationMs) / 1000.0,
		})
	} else {
		target = models.StatusException
		review.Append(models.ReviewResult{
			Stage:        "Execute failed",
			ErrLevel:     models.ErrLevelError,
			StageStatus:  "Execute failed",
			ErrorMessage: completion.ErrorText,
			SQL:          completion.FullSQL,
			ExecuteTime:  float64(completion.DurationMs) / 1000.0,
		})
	}

	resultJSON, err := review.JSON()
	if err != nil {
		return fmt.Errorf("failed to serialize execute result: %w", err)
	}

	info := fmt.Sprintf("run finished with status %s", target)
	if completion.ErrorText != "" {
		info = fmt.Sprintf("run failed: %s", completion.ErrorText)
	}

	if artifactPath != "" {
		info += fmt.Sprintf(", artifact %s", filepath.Base(artifactPath))
	}

	// An already-dispatched run of a paused order still finalizes, so
	// pause is accepted alongside the status the run was dispatched under.
	// The execution id keys out duplicate deliveries of the same run.
	err = f.persistence.FinalizeExecution(ctx, persistence.FinalizeRequest{
		OrderID:       order.ID,
		ExecutionID:   completion.ExecutionID,
		Expected:      []models.OrderStatus{completion.DispatchStatus, models.StatusPause},
		To:            target,
		ExecuteResult: resultJSON,
		FinishTime:    finishTime,
		Log:           models.NewAuditLogEntry("", models.AuditOpExecute, info, ""),
	})
	if err != nil {
		if persistence.IsStaleCompletion(err) {
			logger.InfoContext(ctx, "Dropping stale completion", "error", err)

			return nil
		}

		return err
	}

	logger.InfoContext(ctx, "Order finalized", "status", target, "artifact", artifactPath)

	f.notifyResult(ctx, order, target, info, artifactPath)

	return nil
}

func (f *Finalizer) notifyResult(ctx context.Context, order *models.WorkflowOrder, status models.OrderStatus, message, artifactPath string) {
	err := f.dispatcher.Dispatch(ctx, notify.Notification{
		OrderID:      order.ID,
		OrderName:    order.Name,
		Status:       status,
		Message:      message,
		ArtifactPath: artifactPath,
		Recipients:   append([]string{order.Engineer}, order.Receivers...),
		CCList:       order.CCList,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		f.logger.ErrorContext(ctx, "Failed to dispatch result notification", "order_id", order.ID, "error", err)
	}
}
