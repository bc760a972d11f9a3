package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

// ScheduleRepository handles schedule-entry database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

const scheduleColumns = `
	name
  , order_id
  , kind
  , minutes
  , cron_expression
  , next_fire_at
  , repeats
  , timeout_seconds
  , created_at
  , updated_at
`

// GetByName returns a schedule entry by its unique name.
func (r *ScheduleRepository) GetByName(ctx context.Context, name string) (*models.ScheduleEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedule_entries
		WHERE name = $1
	`, name)

	entry, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ScheduleError{Op: "GetByName", Name: name, Err: persistence.ErrScheduleNotFound}
		}

		return nil, fmt.Errorf("failed to scan schedule entry: %w", err)
	}

	return entry, nil
}

// Save upserts a schedule entry by name.
func (r *ScheduleRepository) Save(ctx context.Context, entry *models.ScheduleEntry) error {
	entry.UpdatedAt = time.Now().UTC()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.UpdatedAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedule_entries (
			name, order_id, kind, minutes, cron_expression,
			next_fire_at, repeats, timeout_seconds, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name) DO UPDATE SET
			kind = EXCLUDED.kind,
			minutes = EXCLUDED.minutes,
			cron_expression = EXCLUDED.cron_expression,
			next_fire_at = EXCLUDED.next_fire_at,
			repeats = EXCLUDED.repeats,
			timeout_seconds = EXCLUDED.timeout_seconds,
			updated_at = EXCLUDED.updated_at
	`, entry.Name, entry.OrderID, entry.Kind, entry.Minutes,
		entry.CronExpression, entry.NextFireAt, entry.Repeats,
		entry.TimeoutSeconds, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return &persistence.ScheduleError{Op: "Save", Name: entry.Name, Err: err}
	}

	return nil
}

// Due returns the active entries whose next fire time has passed at now.
func (r *ScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedule_entries
		WHERE repeats <> 0 AND next_fire_at <= $1
		ORDER BY next_fire_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	entries := make([]*models.ScheduleEntry, 0)

	for rows.Next() {
		entry, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan schedule entry: %w", scanErr)
		}

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating schedule entries: %w", err)
	}

	return entries, nil
}

func scanSchedule(row rowScanner) (*models.ScheduleEntry, error) {
	var entry models.ScheduleEntry

	err := row.Scan(&entry.Name, &entry.OrderID, &entry.Kind, &entry.Minutes,
		&entry.CronExpression, &entry.NextFireAt, &entry.Repeats,
		&entry.TimeoutSeconds, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}
