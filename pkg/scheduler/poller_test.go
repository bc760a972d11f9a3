package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlcron/sqlcron/pkg/eventbus"
	"github.com/sqlcron/sqlcron/pkg/events"
	"github.com/sqlcron/sqlcron/pkg/models"
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

func (p *capturePublisher) fires(t *testing.T) []events.OrderFired {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]events.OrderFired, 0, len(p.events))

	for _, e := range p.events {
		fired, ok := e.(events.OrderFired)
		require.True(t, ok)

		out = append(out, fired)
	}

	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedScheduledOrder(t *testing.T, store *memory.Persistence, status models.OrderStatus, nextFireAt time.Time) *models.WorkflowOrder {
	t.Helper()

	id := uuid.New().String()

	schedule, err := models.NewScheduleEntry(id, models.ScheduleKindHourly, 0, "", nextFireAt)
	require.NoError(t, err)

	schedule.Repeats = models.RepeatsForever

	order := &models.WorkflowOrder{
		ID:           id,
		Name:         "hourly report",
		Kind:         models.KindRecurringQuery,
		GroupID:      "dba",
		Engineer:     "alice",
		InstanceName: "primary",
		DBName:       "app",
		Status:       status,
		ScheduleName: schedule.Name,
	}

	content := &models.WorkflowContent{SQLContent: "select 1"}

	require.NoError(t, store.CreateOrder(t.Context(), order, content, schedule, nil, nil))

	return order
}

func TestProcessDueSchedulesDispatches(t *testing.T) {
	store := memory.NewPersistence()
	publisher := &capturePublisher{}
	p := NewPoller(testLogger(), store, publisher, time.Minute)

	order := seedScheduledOrder(t, store, models.StatusTimingTask, time.Now().Add(-time.Minute))

	p.ProcessDueSchedules(t.Context())

	fires := publisher.fires(t)
	require.Len(t, fires, 1)
	assert.Equal(t, order.ID, fires[0].OrderID)
	assert.Equal(t, models.StatusTimingTask, fires[0].DispatchStatus)
	assert.NotEmpty(t, fires[0].ExecutionID)

	// The entry advanced past now, so the next pass is quiet.
	entry, err := store.ScheduleByName(t.Context(), order.ScheduleName)
	require.NoError(t, err)
	assert.True(t, entry.NextFireAt.After(time.Now()))

	p.ProcessDueSchedules(t.Context())
	assert.Len(t, publisher.fires(t), 1)
}

func TestProcessDueSchedulesSkipsNonDispatchable(t *testing.T) {
	tests := []struct {
		status     models.OrderStatus
		dispatched bool
	}{
		{models.StatusTimingTask, true},
		{models.StatusReviewPass, true},
		{models.StatusFinish, true},
		{models.StatusException, true},
		{models.StatusExecuting, false},
		{models.StatusPause, false},
		{models.StatusStop, false},
		{models.StatusManualReviewing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			store := memory.NewPersistence()
			publisher := &capturePublisher{}
			p := NewPoller(testLogger(), store, publisher, time.Minute)

			order := seedScheduledOrder(t, store, tt.status, time.Now().Add(-time.Minute))

			p.ProcessDueSchedules(t.Context())

			if tt.dispatched {
				require.Len(t, publisher.fires(t), 1)
			} else {
				assert.Empty(t, publisher.fires(t))
			}

			// Skipped or not, the entry is advanced so it cannot hot-loop.
			entry, err := store.ScheduleByName(t.Context(), order.ScheduleName)
			require.NoError(t, err)
			assert.True(t, entry.NextFireAt.After(time.Now()))
		})
	}
}

func TestProcessDueSchedulesIgnoresFutureAndInactive(t *testing.T) {
	store := memory.NewPersistence()
	publisher := &capturePublisher{}
	p := NewPoller(testLogger(), store, publisher, time.Minute)

	seedScheduledOrder(t, store, models.StatusTimingTask, time.Now().Add(time.Hour))

	inactive := seedScheduledOrder(t, store, models.StatusTimingTask, time.Now().Add(-time.Minute))
	entry, err := store.ScheduleByName(t.Context(), inactive.ScheduleName)
	require.NoError(t, err)

	entry.Repeats = models.RepeatsInactive
	require.NoError(t, store.SaveSchedule(t.Context(), entry))

	p.ProcessDueSchedules(t.Context())

	assert.Empty(t, publisher.fires(t))
}

func TestStartStop(t *testing.T) {
	store := memory.NewPersistence()
	p := NewPoller(testLogger(), store, &capturePublisher{}, 10*time.Millisecond)

	require.NoError(t, p.Start(t.Context()))
	require.NoError(t, p.Start(t.Context()))

	require.NoError(t, p.Stop(t.Context()))
	require.NoError(t, p.Stop(t.Context()))
}
