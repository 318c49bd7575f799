// Package persistence provides the data storage abstraction for workflow
// definitions, instances, timers and trigger schedules.
package persistence

import (
	"context"
	"time"

	"github.com/okrun/caseflow/pkg/models"
)

// DefinitionRepository stores immutable workflow definitions. Only the
// metadata counters mutate after registration, through the atomic increment
// operations.
type DefinitionRepository interface {
	Save(ctx context.Context, def *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	List(ctx context.Context) ([]*models.WorkflowDefinition, error)

	// IncrementUsage bumps the usage counter on instance start.
	IncrementUsage(ctx context.Context, id string) error

	// RecordCompletion updates the completion counters and the rolling
	// success rate when an instance reaches a terminal state.
	RecordCompletion(ctx context.Context, id string, success bool) error
}

// InstanceRepository stores mutable workflow instances. Instances are never
// deleted; they are retained for audit and history.
type InstanceRepository interface {
	Save(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	List(ctx context.Context) ([]*models.WorkflowInstance, error)
	ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error)
}

// TimerRepository stores armed step timers durably so that countdowns survive
// a process restart. Arm is an insert, Cancel a delete; ClaimDue atomically
// removes and returns due timers so a timer fires at most once and a
// cancelled timer never fires.
type TimerRepository interface {
	Arm(ctx context.Context, timer *models.StepTimer) error
	Cancel(ctx context.Context, instanceID, stepID string) error
	CancelAll(ctx context.Context, instanceID string) error
	ClaimDue(ctx context.Context, now time.Time) ([]*models.StepTimer, error)
}

// ScheduleRepository stores cron trigger schedules with precomputed due times.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.TriggerSchedule) error
	Due(ctx context.Context, now time.Time) ([]*models.TriggerSchedule, error)
	Update(ctx context.Context, schedule *models.TriggerSchedule) error
}

// Persistence aggregates the repositories behind a single swappable backend.
type Persistence interface {
	Definitions() DefinitionRepository
	Instances() InstanceRepository
	Timers() TimerRepository
	Schedules() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
