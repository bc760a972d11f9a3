package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

func seedOrder(t *testing.T, store *Persistence, status models.OrderStatus) *models.WorkflowOrder {
	t.Helper()

	id := uuid.New().String()

	schedule, err := models.NewScheduleEntry(id, models.ScheduleKindHourly, 0, "", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	order := &models.WorkflowOrder{
		ID:           id,
		Name:         "weekly cleanup",
		Kind:         models.KindRecurringChange,
		GroupID:      "dba",
		Engineer:     "alice",
		InstanceName: "primary",
		DBName:       "app",
		Status:       status,
		ScheduleName: schedule.Name,
	}

	content := &models.WorkflowContent{SQLContent: "delete from sessions where expired = 1"}

	audit := &models.AuditRecord{
		AuditID:       "audit-" + id,
		OrderID:       id,
		WorkflowType:  models.WorkflowTypeSQLReview,
		ApprovalChain: []string{"bob"},
		CreatedAt:     time.Now().UTC(),
	}

	require.NoError(t, store.CreateOrder(t.Context(), order, content, schedule, audit,
		models.NewAuditLogEntry("", models.AuditOpSubmit, "order submitted for review", "alice")))

	return order
}

func TestCreateOrderAssignsIDAndPersistsAll(t *testing.T) {
	store := NewPersistence()

	order := seedOrder(t, store, models.StatusManualReviewing)
	require.NotEmpty(t, order.ID)

	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusManualReviewing, loaded.Status)

	content, err := store.ContentByOrderID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Contains(t, content.SQLContent, "delete from sessions")

	record, err := store.AuditByOrderID(t.Context(), order.ID)
	require.NoError(t, err)

	logs, err := store.AuditLogs(t.Context(), record.AuditID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditOpSubmit, logs[0].Operation)
}

func TestTransitionAppliesStatusRepeatsAndLog(t *testing.T) {
	store := NewPersistence()
	order := seedOrder(t, store, models.StatusManualReviewing)

	repeats := models.RepeatsForever
	approval := models.ApprovalPassed

	err := store.Transition(t.Context(), persistence.TransitionRequest{
		OrderID:  order.ID,
		Op:       models.OpApprove,
		From:     models.TransitionSources(models.OpApprove),
		To:       models.StatusReviewPass,
		Repeats:  &repeats,
		Approval: &approval,
		Log:      models.NewAuditLogEntry("", models.AuditOpApprove, "order approved", "bob"),
	})
	require.NoError(t, err)

	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewPass, loaded.Status)

	entry, err := store.ScheduleByName(t.Context(), order.ScheduleName)
	require.NoError(t, err)
	assert.Equal(t, models.RepeatsForever, entry.Repeats)

	record, err := store.AuditByOrderID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPassed, record.Status)

	logs, err := store.AuditLogs(t.Context(), record.AuditID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditOpApprove, logs[1].Operation)
}

func TestTransitionRejectedLeavesEverythingUntouched(t *testing.T) {
	store := NewPersistence()
	order := seedOrder(t, store, models.StatusStop)

	repeats := models.RepeatsForever

	err := store.Transition(t.Context(), persistence.TransitionRequest{
		OrderID: order.ID,
		Op:      models.OpResume,
		From:    models.TransitionSources(models.OpResume),
		To:      models.StatusReviewPass,
		Repeats: &repeats,
		Log:     models.NewAuditLogEntry("", models.AuditOpResume, "order resumed", "bob"),
	})
	require.ErrorIs(t, err, persistence.ErrIllegalTransition)

	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStop, loaded.Status)

	entry, err := store.ScheduleByName(t.Context(), order.ScheduleName)
	require.NoError(t, err)
	assert.Equal(t, models.RepeatsInactive, entry.Repeats)

	record, err := store.AuditByOrderID(t.Context(), order.ID)
	require.NoError(t, err)

	logs, err := store.AuditLogs(t.Context(), record.AuditID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestFinalizeExecution(t *testing.T) {
	store := NewPersistence()
	order := seedOrder(t, store, models.StatusExecuting)

	finish := time.Now().UTC()

	err := store.FinalizeExecution(t.Context(), persistence.FinalizeRequest{
		OrderID:       order.ID,
		Expected:      []models.OrderStatus{models.StatusExecuting, models.StatusPause},
		To:            models.StatusFinish,
		ExecuteResult: `{"rows":[]}`,
		FinishTime:    finish,
		Log:           models.NewAuditLogEntry("", models.AuditOpExecute, "run finished", ""),
	})
	require.NoError(t, err)

	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinish, loaded.Status)
	require.NotNil(t, loaded.FinishedAt)

	content, err := store.ContentByOrderID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"rows":[]}`, content.ExecuteResult)
}

func TestFinalizeExecutionDropsStaleCompletion(t *testing.T) {
	store := NewPersistence()
	order := seedOrder(t, store, models.StatusFinish)

	err := store.FinalizeExecution(t.Context(), persistence.FinalizeRequest{
		OrderID:       order.ID,
		Expected:      []models.OrderStatus{models.StatusExecuting, models.StatusPause},
		To:            models.StatusFinish,
		ExecuteResult: "{}",
		FinishTime:    time.Now().UTC(),
	})
	require.ErrorIs(t, err, persistence.ErrStaleCompletion)
	assert.True(t, persistence.IsStaleCompletion(err))
}

func TestFinalizeExecutionRejectsRepeatedExecutionID(t *testing.T) {
	store := NewPersistence()
	order := seedOrder(t, store, models.StatusExecuting)

	first := persistence.FinalizeRequest{
		OrderID:       order.ID,
		ExecutionID:   "exec-1",
		Expected:      []models.OrderStatus{models.StatusExecuting, models.StatusPause},
		To:            models.StatusFinish,
		ExecuteResult: "{}",
		FinishTime:    time.Now().UTC(),
		Log:           models.NewAuditLogEntry("", models.AuditOpExecute, "run finished", ""),
	}
	require.NoError(t, store.FinalizeExecution(t.Context(), first))

	// A duplicate delivery passes the status check (finish is an expected
	// dispatch status for recurring orders) but repeats the execution id.
	replay := first
	replay.Expected = []models.OrderStatus{models.StatusFinish, models.StatusPause}

	err := store.FinalizeExecution(t.Context(), replay)
	require.ErrorIs(t, err, persistence.ErrStaleCompletion)

	record, err := store.AuditByOrderID(t.Context(), order.ID)
	require.NoError(t, err)

	logs, err := store.AuditLogs(t.Context(), record.AuditID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	// A fresh run finalizes normally.
	next := replay
	next.ExecutionID = "exec-2"
	next.Log = models.NewAuditLogEntry("", models.AuditOpExecute, "run finished", "")
	require.NoError(t, store.FinalizeExecution(t.Context(), next))

	loaded, err := store.OrderByID(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "exec-2", loaded.LastExecutionID)
}

func TestTransitionLogRequiresAuditRecord(t *testing.T) {
	store := NewPersistence()

	id := uuid.New().String()

	schedule, err := models.NewScheduleEntry(id, models.ScheduleKindHourly, 0, "", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	order := &models.WorkflowOrder{
		ID:           id,
		Name:         "ad hoc report",
		Kind:         models.KindRecurringQuery,
		GroupID:      "dba",
		InstanceName: "primary",
		DBName:       "app",
		Status:       models.StatusReviewPass,
		ScheduleName: schedule.Name,
	}
	content := &models.WorkflowContent{SQLContent: "select 1"}

	require.NoError(t, store.CreateOrder(t.Context(), order, content, schedule, nil, nil))

	repeats := models.RepeatsInactive

	err = store.Transition(t.Context(), persistence.TransitionRequest{
		OrderID: id,
		Op:      models.OpPause,
		From:    models.TransitionSources(models.OpPause),
		To:      models.StatusPause,
		Repeats: &repeats,
		Log:     models.NewAuditLogEntry("", models.AuditOpPause, "order paused", "bob"),
	})
	require.Error(t, err)
	assert.True(t, persistence.IsAuditNotFound(err))

	// The rejected append leaves the whole transition unapplied.
	loaded, err := store.OrderByID(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewPass, loaded.Status)
}

func TestDueSchedules(t *testing.T) {
	store := NewPersistence()
	now := time.Now().UTC()

	active, err := models.NewScheduleEntry("o1", models.ScheduleKindHourly, 0, "", now.Add(-time.Minute))
	require.NoError(t, err)

	active.Repeats = models.RepeatsForever
	require.NoError(t, store.SaveSchedule(t.Context(), active))

	inactive, err := models.NewScheduleEntry("o2", models.ScheduleKindHourly, 0, "", now.Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.SaveSchedule(t.Context(), inactive))

	future, err := models.NewScheduleEntry("o3", models.ScheduleKindHourly, 0, "", now.Add(time.Hour))
	require.NoError(t, err)

	future.Repeats = models.RepeatsForever
	require.NoError(t, store.SaveSchedule(t.Context(), future))

	due, err := store.DueSchedules(t.Context(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "o1", due[0].OrderID)
}

func TestOrdersFiltering(t *testing.T) {
	store := NewPersistence()

	first := seedOrder(t, store, models.StatusManualReviewing)
	seedOrder(t, store, models.StatusFinish)

	page, err := store.Orders(t.Context(), persistence.ListOrdersOptions{Status: models.StatusManualReviewing})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, first.ID, page.Orders[0].ID)

	page, err = store.Orders(t.Context(), persistence.ListOrdersOptions{Search: "CLEANUP"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}
