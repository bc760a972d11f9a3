// Package models defines the core domain records for scheduled SQL workflow orders.
package models

import "time"

// OrderStatus is the lifecycle state of a workflow order. The string values
// are wire-visible and stored as-is.
type OrderStatus string

const (
	StatusManualReviewing OrderStatus = "manual_reviewing"  // Awaiting human approval
	StatusAutoReviewWrong OrderStatus = "auto_review_wrong" // Rejected by the check engine / review policy
	StatusReviewPass      OrderStatus = "review_pass"       // Approved, schedule active
	StatusTimingTask      OrderStatus = "timing_task"       // Parked until the next scheduled fire
	StatusExecuting       OrderStatus = "executing"         // A fired run is in flight
	StatusFinish          OrderStatus = "finish"            // Last run completed successfully
	StatusException       OrderStatus = "exception"         // Last run failed
	StatusPause           OrderStatus = "pause"             // Future fires suppressed, resumable
	StatusStop            OrderStatus = "stop"              // Terminated, not resumable
)

// Valid reports whether the status is a member of the closed enum.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusManualReviewing, StatusAutoReviewWrong, StatusReviewPass,
		StatusTimingTask, StatusExecuting, StatusFinish, StatusException,
		StatusPause, StatusStop:
		return true
	}

	return false
}

// Terminal reports whether the status ends the order's current run.
// finish and exception may still be re-entered by future fires of a
// recurring schedule.
func (s OrderStatus) Terminal() bool {
	return s == StatusFinish || s == StatusException || s == StatusStop
}

// OrderKind distinguishes the two supported order types.
type OrderKind string

const (
	KindRecurringChange OrderKind = "recurring_change"
	KindRecurringQuery  OrderKind = "recurring_query"
)

// SyntaxType is the check engine's classification of the submitted SQL.
type SyntaxType int

const (
	SyntaxUnknown SyntaxType = 0
	SyntaxDDL     SyntaxType = 1
	SyntaxDML     SyntaxType = 2
	SyntaxQuery   SyntaxType = 3
)

// WorkflowOrder is the persistent record of one submitted SQL change or
// query job and its lifecycle status. Status mutations go through the
// transition guards in statemachine.go; the persistence layer enforces
// them atomically together with the schedule entry and the audit trail.
type WorkflowOrder struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"            validate:"required,min=3"`
	Kind         OrderKind   `json:"kind"            validate:"required"`
	DemandURL    string      `json:"demand_url"`
	GroupID      string      `json:"group_id"        validate:"required"`
	GroupName    string      `json:"group_name"`
	Engineer     string      `json:"engineer"`
	InstanceName string      `json:"instance_name"   validate:"required"`
	DBName       string      `json:"db_name"         validate:"required"`
	SyntaxType   SyntaxType  `json:"syntax_type"`
	IsBackup     bool        `json:"is_backup"`
	Status       OrderStatus `json:"status"`
	Receivers    []string    `json:"receivers"`
	CCList       []string    `json:"cc_list"`
	ScheduleName string      `json:"schedule_name"`
	// LastExecutionID is the run whose completion was finalized most
	// recently; a repeated delivery of that run's completion is stale.
	LastExecutionID string     `json:"last_execution_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// WorkflowContent is the 1:1 payload of a workflow order. ExecuteResult is
// overwritten only by the finalization of a matching run.
type WorkflowContent struct {
	OrderID       string `json:"order_id"`
	SQLContent    string `json:"sql_content" validate:"required"`
	ReviewContent string `json:"review_content"`
	ExecuteResult string `json:"execute_result"`
}
