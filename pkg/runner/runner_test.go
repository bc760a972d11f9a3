package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlcron/sqlcron/pkg/engine"
	"github.com/sqlcron/sqlcron/pkg/engine/enginetest"
	"github.com/sqlcron/sqlcron/pkg/eventbus"
	"github.com/sqlcron/sqlcron/pkg/events"
	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/notify"
	"github.com/sqlcron/sqlcron/pkg/persistence/memory"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturePublisher) completions(t *testing.T) []events.OrderExecutionCompleted {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]events.OrderExecutionCompleted, 0, len(p.events))

	for _, e := range p.events {
		completion, ok := e.(events.OrderExecutionCompleted)
		require.True(t, ok)

		out = append(out, completion)
	}

	return out
}

type captureDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (d *captureDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sent = append(d.sent, n)

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedOrder stores a ready-to-fire order with its content, schedule and
// audit thread.
func seedOrder(t *testing.T, store *memory.Persistence, kind models.OrderKind, status models.OrderStatus) *models.WorkflowOrder {
	t.Helper()

	id := uuid.New().String()

	schedule, err := models.NewScheduleEntry(id, models.ScheduleKindHourly, 0, "", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	schedule.Repeats = models.RepeatsForever

	order := &models.WorkflowOrder{
		ID:           id,
		Name:         "hourly report",
		Kind:         kind,
		GroupID:      "dba",
		Engineer:     "alice",
		InstanceName: "primary",
		DBName:       "app",
		Status:       status,
		ScheduleName: schedule.Name,
	}

	content := &models.WorkflowContent{SQLContent: "select count(*) from events"}

	audit := &models.AuditRecord{
		AuditID:       "audit-" + id,
		OrderID:       id,
		WorkflowType:  models.WorkflowTypeSQLReview,
		Status:        models.ApprovalPassed,
		ApprovalChain: []string{"bob"},
		CreatedAt:     time.Now().UTC(),
	}

	require.NoError(t, store.CreateOrder(t.Context(), order, content, schedule, audit,
		models.NewAuditLogEntry("", models.AuditOpSubmit, "order submitted for review", "alice")))

	return order
}

func firedEvent(order *models.WorkflowOrder, dispatchStatus models.OrderStatus) *events.OrderFired {
	return &events.OrderFired{
		BaseEvent:      events.NewBaseEvent(events.OrderFiredEvent, order.ID),
		ExecutionID:    uuid.New().String(),
		OrderKind:      order.Kind,
		DispatchStatus: dispatchStatus,
	}
}

func newRunner(store *memory.Persistence, stub *enginetest.Stub, publisher *capturePublisher) *Runner {
	resolver := &enginetest.Resolver{Engine: stub}

	return NewRunner(testLogger(), "worker-test", store, resolver, publisher)
}

func TestHandleFiredParkedOrder(t *testing.T) {
	store := memory.NewPersistence()
	stub := &enginetest.Stub{ExecResult: &engine.ExecuteResult{AffectedRows: 3}}
	publisher := &capturePublisher{}
	r := newRunner(store, stub, publisher)

	order := seedOrder(t, store, models.KindRecurringChange, models.StatusTimingTask)

	require.NoError(t, r.HandleFired(t.Context(), firedEvent(order, models.StatusTimingTask)))

	// The parked order moved to executing before the run.
	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuting, loaded.Status)

	logs, err := store.AuditLogs(t.Context(), "audit-"+order.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditOpAutoFire, logs[1].Operation)
	assert.Empty(t, logs[1].Operator)

	completions := publisher.completions(t)
	require.Len(t, completions, 1)
	assert.True(t, completions[0].Success)
	assert.Equal(t, models.StatusExecuting, completions[0].DispatchStatus)
	assert.Equal(t, int64(3), completions[0].AffectedRows)
	assert.Equal(t, "worker-test", completions[0].WorkerID)
	assert.Equal(t, 1, stub.ExecuteCalls)
}

func TestHandleFiredDropsWhenStatusChanged(t *testing.T) {
	store := memory.NewPersistence()
	stub := &enginetest.Stub{}
	publisher := &capturePublisher{}
	r := newRunner(store, stub, publisher)

	order := seedOrder(t, store, models.KindRecurringChange, models.StatusStop)

	require.NoError(t, r.HandleFired(t.Context(), firedEvent(order, models.StatusReviewPass)))

	assert.Empty(t, publisher.events)
	assert.Zero(t, stub.ExecuteCalls)
}

func TestHandleFiredPausedOrderStillRuns(t *testing.T) {
	store := memory.NewPersistence()
	stub := &enginetest.Stub{ExecResult: &engine.ExecuteResult{AffectedRows: 1}}
	publisher := &capturePublisher{}
	r := newRunner(store, stub, publisher)

	order := seedOrder(t, store, models.KindRecurringChange, models.StatusPause)

	require.NoError(t, r.HandleFired(t.Context(), firedEvent(order, models.StatusFinish)))

	completions := publisher.completions(t)
	require.Len(t, completions, 1)
	assert.True(t, completions[0].Success)
	assert.Equal(t, models.StatusFinish, completions[0].DispatchStatus)
	assert.Equal(t, 1, stub.ExecuteCalls)
}

func TestHandleFiredMissingOrderDropped(t *testing.T) {
	store := memory.NewPersistence()
	publisher := &capturePublisher{}
	r := newRunner(store, &enginetest.Stub{}, publisher)

	event := &events.OrderFired{
		BaseEvent:      events.NewBaseEvent(events.OrderFiredEvent, "gone"),
		ExecutionID:    "exec-1",
		OrderKind:      models.KindRecurringChange,
		DispatchStatus: models.StatusTimingTask,
	}

	require.NoError(t, r.HandleFired(t.Context(), event))
	assert.Empty(t, publisher.events)
}

func TestHandleFiredQueryFailureCarriedInCompletion(t *testing.T) {
	store := memory.NewPersistence()
	stub := &enginetest.Stub{QueryErr: errors.New("connection refused")}
	publisher := &capturePublisher{}
	r := newRunner(store, stub, publisher)

	order := seedOrder(t, store, models.KindRecurringQuery, models.StatusTimingTask)

	require.NoError(t, r.HandleFired(t.Context(), firedEvent(order, models.StatusTimingTask)))

	completions := publisher.completions(t)
	require.Len(t, completions, 1)
	assert.False(t, completions[0].Success)
	assert.Equal(t, "connection refused", completions[0].ErrorText)
}

func TestHandleFiredRejectsUnexpectedPayload(t *testing.T) {
	r := newRunner(memory.NewPersistence(), &enginetest.Stub{}, &capturePublisher{})

	err := r.HandleFired(t.Context(), "not an event")
	require.Error(t, err)
}
