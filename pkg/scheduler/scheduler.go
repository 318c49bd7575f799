// Package scheduler drives everything time-based: durable step timers,
// absolute deadline sweeps and cron trigger schedules. It owns no workflow
// semantics; due work is handed to the engine.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/persistence"
)

const (
	defaultTimerInterval    = 5 * time.Second
	defaultScheduleInterval = 30 * time.Second
	defaultDeadlineInterval = time.Minute
)

// Orchestrator is the engine surface the scheduler drives.
type Orchestrator interface {
	OnTimerFired(ctx context.Context, timer *models.StepTimer) error
	OnDeadlineBreached(ctx context.Context, instanceID string, deadline *models.WorkflowDeadline) error
	StartWorkflow(ctx context.Context, workflowID, initiator string, data map[string]any, metadata models.InstanceMetadata) (*models.WorkflowInstance, error)
	GetDefinition(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error)
}

type Scheduler struct {
	persistence  persistence.Persistence
	orchestrator Orchestrator
	logger       *slog.Logger

	timerInterval    time.Duration
	scheduleInterval time.Duration
	deadlineInterval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

func NewScheduler(persistence persistence.Persistence, orchestrator Orchestrator, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence:      persistence,
		orchestrator:     orchestrator,
		logger:           logger.With("module", "scheduler"),
		timerInterval:    defaultTimerInterval,
		scheduleInterval: defaultScheduleInterval,
		deadlineInterval: defaultDeadlineInterval,
		done:             make(chan struct{}),
	}
}

// WithIntervals overrides the poll cadences; tests use short ones.
func (s *Scheduler) WithIntervals(timer, schedule, deadline time.Duration) *Scheduler {
	s.timerInterval = timer
	s.scheduleInterval = schedule
	s.deadlineInterval = deadline

	return s
}

// Start launches the three poll loops. They run until Stop or context
// cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.InfoContext(ctx, "Starting scheduler",
		"timer_interval", s.timerInterval,
		"schedule_interval", s.scheduleInterval,
		"deadline_interval", s.deadlineInterval)

	s.loop(ctx, s.timerInterval, s.processDueTimers)
	s.loop(ctx, s.scheduleInterval, s.processDueSchedules)
	s.loop(ctx, s.deadlineInterval, s.sweepDeadlines)
}

// Stop signals the loops and waits for them to drain.
func (s *Scheduler) Stop(ctx context.Context) {
	close(s.done)
	s.wg.Wait()
	s.logger.InfoContext(ctx, "Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				tick(ctx)
			}
		}
	}()
}

// processDueTimers claims every due timer and hands it to the engine. The
// claim removes the row, so a timer fires at most once even with several
// scheduler replicas polling the same store.
func (s *Scheduler) processDueTimers(ctx context.Context) {
	timers, err := s.persistence.Timers().ClaimDue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to claim due timers", "error", err)

		return
	}

	for _, timer := range timers {
		if err := s.orchestrator.OnTimerFired(ctx, timer); err != nil {
			s.logger.ErrorContext(ctx, "Failed to handle fired timer",
				"instance_id", timer.InstanceID,
				"step_id", timer.StepID,
				"error", err)
		}
	}
}

// processDueSchedules starts instances for due cron trigger schedules and
// advances their next due time.
func (s *Scheduler) processDueSchedules(ctx context.Context) {
	schedules, err := s.persistence.Schedules().Due(ctx, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list due schedules", "error", err)

		return
	}

	for _, schedule := range schedules {
		s.fireSchedule(ctx, schedule)
	}
}

func (s *Scheduler) fireSchedule(ctx context.Context, schedule *models.TriggerSchedule) {
	// Advance before starting so a failing start does not refire every tick.
	if err := schedule.UpdateNextDueAt(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to advance schedule", "schedule_id", schedule.ID, "error", err)

		return
	}

	if err := s.persistence.Schedules().Update(ctx, schedule); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist schedule", "schedule_id", schedule.ID, "error", err)

		return
	}

	instance, err := s.orchestrator.StartWorkflow(ctx, schedule.WorkflowID, "scheduler", s.initialData(ctx, schedule), models.InstanceMetadata{})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to start scheduled instance",
			"workflow_id", schedule.WorkflowID,
			"trigger_id", schedule.TriggerID,
			"error", err)

		return
	}

	s.logger.InfoContext(ctx, "Scheduled instance started",
		"workflow_id", schedule.WorkflowID,
		"instance_id", instance.ID,
		"next_due_at", schedule.NextDueAt)
}

// initialData looks up the trigger's configured initial data bag.
func (s *Scheduler) initialData(ctx context.Context, schedule *models.TriggerSchedule) map[string]any {
	def, err := s.orchestrator.GetDefinition(ctx, schedule.WorkflowID)
	if err != nil {
		return nil
	}

	for _, trigger := range def.Triggers {
		if trigger.ID == schedule.TriggerID {
			return trigger.InitialData
		}
	}

	return nil
}

// sweepDeadlines scans in-progress instances against the absolute deadlines
// of their definition and hands every unhandled breach to the engine.
func (s *Scheduler) sweepDeadlines(ctx context.Context) {
	instances, err := s.persistence.Instances().ListByStatus(ctx, models.InstanceStatusInProgress)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list instances for deadline sweep", "error", err)

		return
	}

	now := time.Now().UTC()

	for _, instance := range instances {
		def, err := s.orchestrator.GetDefinition(ctx, instance.WorkflowID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to load definition for deadline sweep",
				"workflow_id", instance.WorkflowID,
				"error", err)

			continue
		}

		for _, stepID := range instance.CurrentSteps {
			for _, deadline := range def.DeadlinesFor(stepID) {
				if deadline.At.After(now) || instance.DeadlineHandled(deadline.ID) {
					continue
				}

				if err := s.orchestrator.OnDeadlineBreached(ctx, instance.ID, deadline); err != nil {
					s.logger.ErrorContext(ctx, "Failed to handle deadline breach",
						"instance_id", instance.ID,
						"deadline_id", deadline.ID,
						"error", err)
				}
			}
		}
	}
}
