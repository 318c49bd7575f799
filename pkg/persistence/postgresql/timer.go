package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/persistence"
)

// TimerRepository stores armed step timers as rows. Arming re-arms an
// existing timer for the same (instance, step); claiming deletes and returns
// due rows in one statement so a timer fires at most once even with multiple
// scheduler processes polling.
type TimerRepository struct {
	db *sql.DB
}

func (r *TimerRepository) Arm(ctx context.Context, timer *models.StepTimer) error {
	condition := timer.Condition
	if condition == "" {
		condition = models.EscalationConditionTimeout
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO step_timers (instance_id, step_id, fire_at, condition)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instance_id, step_id) DO UPDATE SET
			fire_at = EXCLUDED.fire_at,
			condition = EXCLUDED.condition
	`, timer.InstanceID, timer.StepID, timer.FireAt, string(condition))
	if err != nil {
		return persistence.NewStoreError("Arm", timer.InstanceID, err)
	}

	return nil
}

func (r *TimerRepository) Cancel(ctx context.Context, instanceID, stepID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM step_timers WHERE instance_id = $1 AND step_id = $2
	`, instanceID, stepID)
	if err != nil {
		return persistence.NewStoreError("Cancel", instanceID, err)
	}

	return nil
}

func (r *TimerRepository) CancelAll(ctx context.Context, instanceID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM step_timers WHERE instance_id = $1
	`, instanceID)
	if err != nil {
		return persistence.NewStoreError("CancelAll", instanceID, err)
	}

	return nil
}

func (r *TimerRepository) ClaimDue(ctx context.Context, now time.Time) ([]*models.StepTimer, error) {
	rows, err := r.db.QueryContext(ctx, `
		DELETE FROM step_timers
		WHERE fire_at <= $1
		RETURNING instance_id, step_id, fire_at, condition, created_at
	`, now)
	if err != nil {
		return nil, persistence.NewStoreError("ClaimDue", "", err)
	}
	defer rows.Close()

	timers := make([]*models.StepTimer, 0)

	for rows.Next() {
		var (
			timer     models.StepTimer
			condition string
		)

		if err := rows.Scan(&timer.InstanceID, &timer.StepID, &timer.FireAt, &condition, &timer.CreatedAt); err != nil {
			return nil, persistence.NewStoreError("ClaimDue", "", err)
		}

		timer.Condition = models.EscalationCondition(condition)
		timers = append(timers, &timer)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ClaimDue", "", err)
	}

	return timers, nil
}
