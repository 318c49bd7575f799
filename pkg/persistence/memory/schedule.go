package memory

import (
	"context"
	"sync"
	"time"

	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/persistence"
)

// ScheduleRepository stores cron trigger schedules in memory.
type ScheduleRepository struct {
	mu        sync.RWMutex
	schedules map[string]*models.TriggerSchedule
}

func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{
		schedules: make(map[string]*models.TriggerSchedule),
	}
}

func (r *ScheduleRepository) Save(_ context.Context, schedule *models.TriggerSchedule) error {
	stored, err := clone(schedule)
	if err != nil {
		return persistence.NewStoreError("Save", schedule.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.schedules[schedule.ID] = stored

	return nil
}

func (r *ScheduleRepository) Due(_ context.Context, now time.Time) ([]*models.TriggerSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]*models.TriggerSchedule, 0)

	for _, schedule := range r.schedules {
		if schedule.IsDue(now) {
			copied, err := clone(schedule)
			if err != nil {
				return nil, persistence.NewStoreError("Due", schedule.ID, err)
			}

			due = append(due, copied)
		}
	}

	return due, nil
}

func (r *ScheduleRepository) Update(_ context.Context, schedule *models.TriggerSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schedules[schedule.ID]; !exists {
		return persistence.NewStoreError("Update", schedule.ID, persistence.ErrScheduleNotFound)
	}

	stored, err := clone(schedule)
	if err != nil {
		return persistence.NewStoreError("Update", schedule.ID, err)
	}

	r.schedules[schedule.ID] = stored

	return nil
}
