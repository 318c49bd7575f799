package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/persistence"
)

// ScheduleRepository stores cron trigger schedules with their precomputed
// next due time indexed for the poller.
type ScheduleRepository struct {
	db *sql.DB
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.TriggerSchedule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trigger_schedules (id, workflow_id, trigger_id, cron_expression, next_due_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = NOW()
	`, schedule.ID, schedule.WorkflowID, schedule.TriggerID, schedule.CronExpression, schedule.NextDueAt, schedule.Active)
	if err != nil {
		return persistence.NewStoreError("Save", schedule.ID, err)
	}

	return nil
}

func (r *ScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.TriggerSchedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, trigger_id, cron_expression, next_due_at, active, created_at, updated_at
		FROM trigger_schedules
		WHERE active = TRUE AND next_due_at <= $1
	`, now)
	if err != nil {
		return nil, persistence.NewStoreError("Due", "", err)
	}
	defer rows.Close()

	schedules := make([]*models.TriggerSchedule, 0)

	for rows.Next() {
		var schedule models.TriggerSchedule

		err := rows.Scan(
			&schedule.ID,
			&schedule.WorkflowID,
			&schedule.TriggerID,
			&schedule.CronExpression,
			&schedule.NextDueAt,
			&schedule.Active,
			&schedule.CreatedAt,
			&schedule.UpdatedAt,
		)
		if err != nil {
			return nil, persistence.NewStoreError("Due", "", err)
		}

		schedules = append(schedules, &schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Due", "", err)
	}

	return schedules, nil
}

func (r *ScheduleRepository) Update(ctx context.Context, schedule *models.TriggerSchedule) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE trigger_schedules
		SET next_due_at = $2, active = $3, updated_at = NOW()
		WHERE id = $1
	`, schedule.ID, schedule.NextDueAt, schedule.Active)
	if err != nil {
		return persistence.NewStoreError("Update", schedule.ID, err)
	}

	return requireScheduleRow(result, schedule.ID)
}

func requireScheduleRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Update", id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Update", id, persistence.ErrScheduleNotFound)
	}

	return nil
}
