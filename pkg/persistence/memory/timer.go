package memory

import (
	"context"
	"sync"
	"time"

	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/persistence"
)

type timerKey struct {
	instanceID string
	stepID     string
}

// TimerRepository stores armed step timers in memory. ClaimDue removes timers
// as it returns them, so a claimed timer cannot fire twice and a cancelled
// one cannot fire at all.
type TimerRepository struct {
	mu     sync.Mutex
	timers map[timerKey]*models.StepTimer
}

func NewTimerRepository() *TimerRepository {
	return &TimerRepository{
		timers: make(map[timerKey]*models.StepTimer),
	}
}

func (r *TimerRepository) Arm(_ context.Context, timer *models.StepTimer) error {
	stored, err := clone(timer)
	if err != nil {
		return persistence.NewStoreError("Arm", timer.InstanceID, err)
	}

	stored.CreatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.timers[timerKey{timer.InstanceID, timer.StepID}] = stored

	return nil
}

// Cancel is idempotent: cancelling an unarmed timer is not an error.
func (r *TimerRepository) Cancel(_ context.Context, instanceID, stepID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.timers, timerKey{instanceID, stepID})

	return nil
}

func (r *TimerRepository) CancelAll(_ context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.timers {
		if key.instanceID == instanceID {
			delete(r.timers, key)
		}
	}

	return nil
}

func (r *TimerRepository) ClaimDue(_ context.Context, now time.Time) ([]*models.StepTimer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*models.StepTimer, 0)

	for key, timer := range r.timers {
		if !timer.FireAt.After(now) {
			due = append(due, timer)
			delete(r.timers, key)
		}
	}

	return due, nil
}
