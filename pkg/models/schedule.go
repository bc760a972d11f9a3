package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind selects how the next fire time is computed.
type ScheduleKind string

const (
	ScheduleKindMinutes ScheduleKind = "minutes" // Every Minutes minutes
	ScheduleKindHourly  ScheduleKind = "hourly"
	ScheduleKindDaily   ScheduleKind = "daily"
	ScheduleKindCron    ScheduleKind = "cron" // Standard 5-field cron expression
)

// Repeats values. Repeats is the sole activation flag: control operations
// flip it between these two values and never touch any other field.
const (
	RepeatsInactive = 0
	RepeatsForever  = -1
)

// ScheduleNamePrefix derives the globally unique entry name from an order id.
const ScheduleNamePrefix = "sqlcron"

// ScheduleName returns the entry name for an order, "sqlcron-<orderID>".
func ScheduleName(orderID string) string {
	return ScheduleNamePrefix + "-" + orderID
}

var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// ScheduleEntry is the recurring-fire contract associated 1:1 with a
// workflow order. An entry fires while Repeats != 0 and NextFireAt has
// passed; the poller advances NextFireAt after each fire.
type ScheduleEntry struct {
	Name           string       `json:"name"`
	OrderID        string       `json:"order_id"`
	Kind           ScheduleKind `json:"kind"`
	Minutes        int          `json:"minutes,omitempty"`
	CronExpression string       `json:"cron_expression,omitempty"`
	NextFireAt     time.Time    `json:"next_fire_at"`
	Repeats        int          `json:"repeats"`
	TimeoutSeconds int          `json:"timeout_seconds"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// NewScheduleEntry builds an inactive entry for an order. Activation is a
// separate explicit step so a half-created order can never fire.
func NewScheduleEntry(orderID string, kind ScheduleKind, minutes int, cronExpr string, firstFireAt time.Time) (*ScheduleEntry, error) {
	now := time.Now().UTC()
	entry := &ScheduleEntry{
		Name:           ScheduleName(orderID),
		OrderID:        orderID,
		Kind:           kind,
		Minutes:        minutes,
		CronExpression: cronExpr,
		NextFireAt:     firstFireAt.UTC(),
		Repeats:        RepeatsInactive,
		TimeoutSeconds: -1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	return entry, nil
}

// Validate checks the kind-specific interval configuration.
func (s *ScheduleEntry) Validate() error {
	switch s.Kind {
	case ScheduleKindMinutes:
		if s.Minutes <= 0 {
			return fmt.Errorf("%w: minutes schedule requires a positive interval", ErrInvalidSchedule)
		}
	case ScheduleKindHourly, ScheduleKindDaily:
		// Interval is implied by the kind.
	case ScheduleKindCron:
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(s.CronExpression); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	default:
		return fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidSchedule, s.Kind)
	}

	if s.NextFireAt.IsZero() {
		return fmt.Errorf("%w: first fire time is required", ErrInvalidSchedule)
	}

	return nil
}

// Active reports whether the entry will fire again.
func (s *ScheduleEntry) Active() bool {
	return s.Repeats != RepeatsInactive
}

// Due checks whether the entry should fire at now.
func (s *ScheduleEntry) Due(now time.Time) bool {
	return s.Active() && !s.NextFireAt.After(now)
}

// NextAfter computes the fire time that follows reference according to the
// entry's own interval or cron expression.
func (s *ScheduleEntry) NextAfter(reference time.Time) (time.Time, error) {
	switch s.Kind {
	case ScheduleKindMinutes:
		return reference.Add(time.Duration(s.Minutes) * time.Minute), nil
	case ScheduleKindHourly:
		return reference.Add(time.Hour), nil
	case ScheduleKindDaily:
		return reference.Add(24 * time.Hour), nil
	case ScheduleKindCron:
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

		schedule, err := parser.Parse(s.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}

		return schedule.Next(reference), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidSchedule, s.Kind)
	}
}

// Advance moves NextFireAt past reference.
func (s *ScheduleEntry) Advance(reference time.Time) error {
	next, err := s.NextAfter(reference)
	if err != nil {
		return err
	}

	s.NextFireAt = next.UTC()
	s.UpdatedAt = time.Now().UTC()

	return nil
}
