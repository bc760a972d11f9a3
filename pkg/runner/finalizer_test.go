package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlcron/sqlcron/pkg/artifact"
	"github.com/sqlcron/sqlcron/pkg/events"
	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/persistence/memory"
)

func completedEvent(order *models.WorkflowOrder, dispatchStatus models.OrderStatus) *events.OrderExecutionCompleted {
	return &events.OrderExecutionCompleted{
		BaseEvent:      events.NewBaseEvent(events.OrderExecutionCompletedEvent, order.ID),
		ExecutionID:    "exec-1",
		OrderKind:      order.Kind,
		DispatchStatus: dispatchStatus,
		FullSQL:        "select count(*) from events",
	}
}

func newFinalizer(t *testing.T, store *memory.Persistence, dispatcher *captureDispatcher) *Finalizer {
	t.Helper()

	writer, err := artifact.NewWriter(t.TempDir())
	require.NoError(t, err)

	return NewFinalizer(testLogger(), store, writer, dispatcher)
}

func TestHandleCompletedSuccess(t *testing.T) {
	store := memory.NewPersistence()
	dispatcher := &captureDispatcher{}
	f := newFinalizer(t, store, dispatcher)

	order := seedOrder(t, store, models.KindRecurringChange, models.StatusExecuting)

	completion := completedEvent(order, models.StatusExecuting)
	completion.Success = true
	completion.AffectedRows = 12
	completion.DurationMs = 420

	require.NoError(t, f.HandleCompleted(t.Context(), completion))

	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinish, loaded.Status)
	require.NotNil(t, loaded.FinishedAt)

	content, err := store.ContentByOrderID(t.Context(), order.ID)
	require.NoError(t, err)

	review, err := models.ParseReviewSet(content.ExecuteResult)
	require.NoError(t, err)
	require.Len(t, review.Rows, 1)
	assert.Equal(t, "Execute Successfully", review.Rows[0].StageStatus)
	assert.Equal(t, int64(12), review.Rows[0].AffectedRows)
	assert.InDelta(t, 0.42, review.Rows[0].ExecuteTime, 0.0001)

	logs, err := store.AuditLogs(t.Context(), "audit-"+order.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditOpExecute, logs[1].Operation)

	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, models.StatusFinish, dispatcher.sent[0].Status)
}

func TestHandleCompletedQueryWritesArtifact(t *testing.T) {
	store := memory.NewPersistence()
	dispatcher := &captureDispatcher{}
	f := newFinalizer(t, store, dispatcher)

	order := seedOrder(t, store, models.KindRecurringQuery, models.StatusExecuting)

	completion := completedEvent(order, models.StatusExecuting)
	completion.Success = true
	completion.Columns = []string{"total"}
	completion.Rows = [][]any{{int64(42)}}

	require.NoError(t, f.HandleCompleted(t.Context(), completion))

	require.Len(t, dispatcher.sent, 1)
	path := dispatcher.sent[0].ArtifactPath
	require.NotEmpty(t, path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "total\n42\n", string(raw))

	// The audit entry names the produced file.
	logs, err := store.AuditLogs(t.Context(), "audit-"+order.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Contains(t, logs[1].Info, filepath.Base(path))
}

func TestHandleCompletedQueryWithoutArtifactWriter(t *testing.T) {
	store := memory.NewPersistence()
	dispatcher := &captureDispatcher{}
	f := NewFinalizer(testLogger(), store, nil, dispatcher)

	order := seedOrder(t, store, models.KindRecurringQuery, models.StatusExecuting)

	completion := completedEvent(order, models.StatusExecuting)
	completion.Success = true
	completion.Columns = []string{"total"}
	completion.Rows = [][]any{{int64(42)}}

	require.NoError(t, f.HandleCompleted(t.Context(), completion))

	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinish, loaded.Status)

	require.Len(t, dispatcher.sent, 1)
	assert.Empty(t, dispatcher.sent[0].ArtifactPath)
}

func TestHandleCompletedFailure(t *testing.T) {
	store := memory.NewPersistence()
	dispatcher := &captureDispatcher{}
	f := newFinalizer(t, store, dispatcher)

	order := seedOrder(t, store, models.KindRecurringChange, models.StatusExecuting)

	completion := completedEvent(order, models.StatusExecuting)
	completion.ErrorText = "Duplicate entry '7' for key 'PRIMARY'"
	completion.DurationMs = 15

	require.NoError(t, f.HandleCompleted(t.Context(), completion))

	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusException, loaded.Status)

	content, err := store.ContentByOrderID(t.Context(), order.ID)
	require.NoError(t, err)

	review, err := models.ParseReviewSet(content.ExecuteResult)
	require.NoError(t, err)
	require.Len(t, review.Rows, 1)
	assert.Equal(t, "Execute failed", review.Rows[0].StageStatus)
	assert.Equal(t, models.ErrLevelError, review.Rows[0].ErrLevel)
	assert.Contains(t, review.Rows[0].ErrorMessage, "Duplicate entry")

	require.Len(t, dispatcher.sent, 1)
	assert.Contains(t, dispatcher.sent[0].Message, "run failed")
}

func TestHandleCompletedPausedOrderFinalizes(t *testing.T) {
	store := memory.NewPersistence()
	dispatcher := &captureDispatcher{}
	f := newFinalizer(t, store, dispatcher)

	order := seedOrder(t, store, models.KindRecurringChange, models.StatusPause)

	completion := completedEvent(order, models.StatusExecuting)
	completion.Success = true

	require.NoError(t, f.HandleCompleted(t.Context(), completion))

	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinish, loaded.Status)
}

func TestHandleCompletedDuplicateDropped(t *testing.T) {
	store := memory.NewPersistence()
	dispatcher := &captureDispatcher{}
	f := newFinalizer(t, store, dispatcher)

	order := seedOrder(t, store, models.KindRecurringChange, models.StatusExecuting)

	completion := completedEvent(order, models.StatusExecuting)
	completion.Success = true

	require.NoError(t, f.HandleCompleted(t.Context(), completion))

	// Redelivery of the same completion: the order is already finished, so
	// nothing changes and nobody is notified again.
	require.NoError(t, f.HandleCompleted(t.Context(), completion))

	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinish, loaded.Status)

	logs, err := store.AuditLogs(t.Context(), "audit-"+order.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	assert.Len(t, dispatcher.sent, 1)
}

func TestHandleCompletedRepeatFromFinishDropped(t *testing.T) {
	store := memory.NewPersistence()
	dispatcher := &captureDispatcher{}
	f := newFinalizer(t, store, dispatcher)

	// Steady state of a recurring schedule: the order sits in finish and
	// the run was dispatched from finish, so the status check alone cannot
	// tell a duplicate from a fresh completion.
	order := seedOrder(t, store, models.KindRecurringChange, models.StatusFinish)

	completion := completedEvent(order, models.StatusFinish)
	completion.Success = true

	require.NoError(t, f.HandleCompleted(t.Context(), completion))
	require.NoError(t, f.HandleCompleted(t.Context(), completion))

	logs, err := store.AuditLogs(t.Context(), "audit-"+order.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	assert.Len(t, dispatcher.sent, 1)

	// The next run carries a fresh execution id and finalizes normally.
	next := completedEvent(order, models.StatusFinish)
	next.ExecutionID = "exec-2"
	next.Success = true

	require.NoError(t, f.HandleCompleted(t.Context(), next))

	logs, err = store.AuditLogs(t.Context(), "audit-"+order.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	assert.Len(t, dispatcher.sent, 2)
}

func TestHandleCompletedMissingOrderDropped(t *testing.T) {
	store := memory.NewPersistence()
	dispatcher := &captureDispatcher{}
	f := newFinalizer(t, store, dispatcher)

	completion := &events.OrderExecutionCompleted{
		BaseEvent:      events.NewBaseEvent(events.OrderExecutionCompletedEvent, "gone"),
		ExecutionID:    "exec-1",
		OrderKind:      models.KindRecurringChange,
		DispatchStatus: models.StatusExecuting,
		Success:        true,
	}

	require.NoError(t, f.HandleCompleted(t.Context(), completion))
	assert.Empty(t, dispatcher.sent)
}
