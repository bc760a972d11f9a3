package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleName(t *testing.T) {
	assert.Equal(t, "sqlcron-42", ScheduleName("42"))
}

func TestNewScheduleEntryStartsInactive(t *testing.T) {
	entry, err := NewScheduleEntry("order-1", ScheduleKindMinutes, 15, "", time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, RepeatsInactive, entry.Repeats)
	assert.False(t, entry.Active())
	assert.False(t, entry.Due(time.Now().Add(2*time.Hour)))
	assert.Equal(t, -1, entry.TimeoutSeconds)
}

func TestNewScheduleEntryValidation(t *testing.T) {
	_, err := NewScheduleEntry("order-1", ScheduleKindMinutes, 0, "", time.Now())
	require.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = NewScheduleEntry("order-1", ScheduleKindCron, 0, "not a cron", time.Now())
	require.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = NewScheduleEntry("order-1", ScheduleKind("weekly"), 0, "", time.Now())
	require.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = NewScheduleEntry("order-1", ScheduleKindDaily, 0, "", time.Time{})
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestScheduleDue(t *testing.T) {
	now := time.Now().UTC()

	entry, err := NewScheduleEntry("order-1", ScheduleKindHourly, 0, "", now.Add(-time.Minute))
	require.NoError(t, err)

	entry.Repeats = RepeatsForever

	assert.True(t, entry.Due(now))
	assert.False(t, entry.Due(now.Add(-2*time.Minute)))

	entry.Repeats = RepeatsInactive
	assert.False(t, entry.Due(now))
}

func TestNextAfter(t *testing.T) {
	reference := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		kind ScheduleKind
		mins int
		cron string
		want time.Time
	}{
		{name: "minutes", kind: ScheduleKindMinutes, mins: 20, want: reference.Add(20 * time.Minute)},
		{name: "hourly", kind: ScheduleKindHourly, want: reference.Add(time.Hour)},
		{name: "daily", kind: ScheduleKindDaily, want: reference.Add(24 * time.Hour)},
		{name: "cron top of hour", kind: ScheduleKindCron, cron: "0 * * * *", want: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)},
		{name: "cron nightly", kind: ScheduleKindCron, cron: "30 2 * * *", want: time.Date(2026, 3, 11, 2, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := NewScheduleEntry("order-1", tt.kind, tt.mins, tt.cron, reference)
			require.NoError(t, err)

			next, err := entry.NextAfter(reference)
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestAdvance(t *testing.T) {
	reference := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	entry, err := NewScheduleEntry("order-1", ScheduleKindMinutes, 5, "", reference)
	require.NoError(t, err)

	require.NoError(t, entry.Advance(reference))
	assert.Equal(t, reference.Add(5*time.Minute), entry.NextFireAt)
}
