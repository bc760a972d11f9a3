// Package scheduler implements the centralized poller that turns due
// schedule entries into order fire events.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlcron/sqlcron/pkg/eventbus"
	"github.com/sqlcron/sqlcron/pkg/events"
	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

// Poller polls the database for due schedule entries and publishes one
// fire event per entry, regardless of the entries' individual intervals.
// Entries are advanced whether or not a fire was dispatched, so a skipped
// entry can never hot-loop.
type Poller struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	interval    time.Duration
	ticker      *time.Ticker
	done        chan bool
	started     bool
	mu          sync.Mutex
}

// NewPoller creates a poller that wakes every interval.
func NewPoller(logger *slog.Logger, store persistence.Persistence, publisher eventbus.EventPublisher, interval time.Duration) *Poller {
	return &Poller{
		persistence: store,
		publisher:   publisher,
		logger:      logger.With("module", "scheduler"),
		interval:    interval,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.logger.Info("Starting schedule poller", "interval", p.interval)

	p.ticker = time.NewTicker(p.interval)
	p.done = make(chan bool)
	p.started = true

	go p.poll(ctx)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	p.logger.Info("Stopping schedule poller")

	if p.ticker != nil {
		p.ticker.Stop()
	}

	select {
	case p.done <- true:
	default:
	}

	p.started = false

	return nil
}

func (p *Poller) poll(ctx context.Context) {
	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-p.ticker.C:
			p.ProcessDueSchedules(ctx)
		}
	}
}

// ProcessDueSchedules runs one polling pass. Exported so tests and the
// worker manager can trigger a pass without waiting for the ticker.
func (p *Poller) ProcessDueSchedules(ctx context.Context) {
	now := time.Now().UTC()

	due, err := p.persistence.DueSchedules(ctx, now)
	if err != nil {
		p.logger.Error("Failed to get due schedules", "error", err)

		return
	}

	if len(due) > 0 {
		p.logger.Info("Processing due schedules", "count", len(due))
	}

	for _, entry := range due {
		p.processEntry(ctx, entry, now)
	}
}

func (p *Poller) processEntry(ctx context.Context, entry *models.ScheduleEntry, now time.Time) {
	order, err := p.persistence.OrderByID(ctx, entry.OrderID)
	if err != nil {
		p.logger.Error("Failed to load order for due schedule",
			"schedule", entry.Name,
			"order_id", entry.OrderID,
			"error", err)

		return
	}

	if p.dispatchable(order.Status) {
		if err := p.publishFire(ctx, order); err != nil {
			p.logger.Error("Failed to publish fire event",
				"schedule", entry.Name,
				"order_id", order.ID,
				"error", err)

			return
		}
	} else {
		p.logger.Info("Skipping fire for order",
			"schedule", entry.Name,
			"order_id", order.ID,
			"status", order.Status)
	}

	if err := entry.Advance(now); err != nil {
		p.logger.Error("Failed to advance schedule",
			"schedule", entry.Name,
			"error", err)

		return
	}

	if err := p.persistence.SaveSchedule(ctx, entry); err != nil {
		p.logger.Error("Failed to save schedule",
			"schedule", entry.Name,
			"error", err)

		return
	}

	p.logger.Info("Schedule advanced",
		"schedule", entry.Name,
		"next_fire_at", entry.NextFireAt)
}

// dispatchable reports whether an order in this status may receive a fire.
// executing is excluded so overlapping runs of one order never start;
// pause and stop are excluded because control suppressed the schedule, and
// a lingering due entry must not override that.
func (p *Poller) dispatchable(status models.OrderStatus) bool {
	switch status {
	case models.StatusTimingTask, models.StatusReviewPass,
		models.StatusFinish, models.StatusException:
		return true
	default:
		return false
	}
}

func (p *Poller) publishFire(ctx context.Context, order *models.WorkflowOrder) error {
	executionID := uuid.New().String()

	event := events.OrderFired{
		BaseEvent:      events.NewBaseEvent(events.OrderFiredEvent, order.ID),
		ExecutionID:    executionID,
		OrderKind:      order.Kind,
		DispatchStatus: order.Status,
	}

	p.logger.Info("Dispatching order fire",
		"order_id", order.ID,
		"execution_id", executionID,
		"dispatch_status", order.Status)

	return p.publisher.Publish(ctx, order.ID, event)
}
