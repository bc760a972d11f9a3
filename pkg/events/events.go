// Package events defines event types for the order scheduling pipeline.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/sqlcron/sqlcron/pkg/models"
)

type EventType string

// Topic carries every order lifecycle event.
const Topic = "sqlcron.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// OrderFiredEvent is published by the scheduler when a due schedule
	// entry fires.
	OrderFiredEvent EventType = "order.fired"

	// OrderExecutionCompletedEvent is published by the worker when a fired
	// run finishes, successfully or not.
	OrderExecutionCompletedEvent EventType = "order.execution.completed"

	// OrderSubmittedEvent is published when a new order enters the system.
	OrderSubmittedEvent EventType = "order.submitted"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	OrderID   string         `json:"order_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// OrderFired marks one scheduled fire of an order. DispatchStatus is the
// order status observed at dispatch time; the finalizer uses it to detect
// stale completions.
type OrderFired struct {
	BaseEvent

	ExecutionID    string             `json:"execution_id"`
	OrderKind      models.OrderKind   `json:"order_kind"`
	DispatchStatus models.OrderStatus `json:"dispatch_status"`
}

func (o OrderFired) GetType() EventType {
	return OrderFiredEvent
}

// OrderExecutionCompleted carries the raw outcome of one run back to the
// finalizer.
type OrderExecutionCompleted struct {
	BaseEvent

	ExecutionID    string             `json:"execution_id"`
	OrderKind      models.OrderKind   `json:"order_kind"`
	DispatchStatus models.OrderStatus `json:"dispatch_status"`
	Success        bool               `json:"success"`
	ErrorText      string             `json:"error_text,omitempty"`
	Columns        []string           `json:"columns,omitempty"`
	Rows           [][]any            `json:"rows,omitempty"`
	AffectedRows   int64              `json:"affected_rows"`
	DurationMs     int64              `json:"duration_ms"`
	FullSQL        string             `json:"full_sql"`
}

func (o OrderExecutionCompleted) GetType() EventType {
	return OrderExecutionCompletedEvent
}

// OrderSubmitted announces a new order, primarily for notification fan-out.
type OrderSubmitted struct {
	BaseEvent

	OrderName string             `json:"order_name"`
	OrderKind models.OrderKind   `json:"order_kind"`
	Status    models.OrderStatus `json:"status"`
	Engineer  string             `json:"engineer"`
}

func (o OrderSubmitted) GetType() EventType {
	return OrderSubmittedEvent
}

func NewBaseEvent(eventType EventType, orderID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		OrderID:   orderID,
		Metadata:  make(map[string]any),
	}
}
