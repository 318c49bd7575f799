package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/okrun/caseflow/pkg/engine"
	"github.com/okrun/caseflow/pkg/mocks"
	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/notification"
	"github.com/okrun/caseflow/pkg/persistence/memory"
)

func newTestScheduler(t *testing.T) (*Scheduler, *engine.Engine, *memory.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	gateway := &mocks.MockGateway{}

	orchestrator := engine.NewEngine(store, bus, notification.NewLogDispatcher(logger), gateway, logger)
	scheduler := NewScheduler(store, orchestrator, logger)

	return scheduler, orchestrator, store
}

func timedDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:     "purchase-approval",
		Name:   "Purchase Approval",
		Active: true,
		Steps: []*models.WorkflowStep{
			{
				ID:        "approve",
				Name:      "Approve Purchase",
				Type:      models.StepTypeApproval,
				Assignee:  models.WorkflowAssignee{Type: models.AssigneeTypeRole, Value: "manager"},
				TimeLimit: 30,
			},
		},
		EscalationRules: []*models.EscalationRule{
			{ID: "esc-1", StepID: "approve", Condition: models.EscalationConditionTimeout, ThresholdMinutes: 30, EscalateTo: "director", Priority: "high"},
		},
	}
}

// rewindTimer makes an armed timer due immediately. Arm is an upsert keyed by
// (instance, step), so re-arming with a past fire time rewinds the countdown.
func rewindTimer(t *testing.T, store *memory.Persistence, instanceID, stepID string) {
	t.Helper()

	timer := &models.StepTimer{
		InstanceID: instanceID,
		StepID:     stepID,
		FireAt:     time.Now().Add(-time.Minute),
		Condition:  models.EscalationConditionTimeout,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.Timers().Arm(context.Background(), timer))
}

func TestProcessDueTimers_EscalatesOverdueStep(t *testing.T) {
	scheduler, orchestrator, store := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, orchestrator.RegisterDefinition(ctx, timedDefinition()))

	instance, err := orchestrator.StartWorkflow(ctx, "purchase-approval", "alice", nil, models.InstanceMetadata{})
	require.NoError(t, err)

	rewindTimer(t, store, instance.ID, "approve")
	scheduler.processDueTimers(ctx)

	stored, err := store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)

	execution := stored.LatestExecution("approve")
	assert.True(t, execution.Escalated)
	assert.Equal(t, "director", execution.EscalatedTo)
	assert.Equal(t, models.InstanceStatusInProgress, stored.Status)

	// An escalated step is still completable; the escalation stays on record.
	result, err := orchestrator.CompleteStep(ctx, instance.ID, "approve", "director", models.ActionApprove, nil, "late but approved")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, result.InstanceStatus)

	stored, err = store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.LatestExecution("approve").Status)
	assert.True(t, stored.LatestExecution("approve").Escalated)
}

func TestProcessDueTimers_CompletedStepNeverEscalates(t *testing.T) {
	scheduler, orchestrator, store := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, orchestrator.RegisterDefinition(ctx, timedDefinition()))

	instance, err := orchestrator.StartWorkflow(ctx, "purchase-approval", "alice", nil, models.InstanceMetadata{})
	require.NoError(t, err)

	_, err = orchestrator.CompleteStep(ctx, instance.ID, "approve", "bob", models.ActionApprove, nil, "")
	require.NoError(t, err)

	// Completion cancelled the timer row; the poll finds nothing.
	scheduler.processDueTimers(ctx)

	stored, err := store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.False(t, stored.LatestExecution("approve").Escalated)
}

func TestProcessDueTimers_TimerStepSelfCompletes(t *testing.T) {
	scheduler, orchestrator, store := newTestScheduler(t)
	ctx := context.Background()

	def := &models.WorkflowDefinition{
		ID:     "cooling-off",
		Name:   "Cooling Off Period",
		Active: true,
		Steps: []*models.WorkflowStep{
			{
				ID:        "wait",
				Name:      "Cooling Off",
				Type:      models.StepTypeTimer,
				TimeLimit: 60,
			},
			{
				ID:           "finalize",
				Name:         "Finalize",
				Type:         models.StepTypeApproval,
				Assignee:     models.WorkflowAssignee{Type: models.AssigneeTypeRole, Value: "clerk"},
				Dependencies: []string{"wait"},
			},
		},
	}
	require.NoError(t, orchestrator.RegisterDefinition(ctx, def))

	instance, err := orchestrator.StartWorkflow(ctx, "cooling-off", "system", nil, models.InstanceMetadata{})
	require.NoError(t, err)
	assert.Equal(t, []string{"wait"}, instance.CurrentSteps)

	rewindTimer(t, store, instance.ID, "wait")
	scheduler.processDueTimers(ctx)

	stored, err := store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionTimerExpired, stored.LatestExecution("wait").Action)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.LatestExecution("wait").Status)
	assert.Equal(t, []string{"finalize"}, stored.CurrentSteps)
}

func TestSweepDeadlines_CancelExpiresInstance(t *testing.T) {
	scheduler, orchestrator, store := newTestScheduler(t)
	ctx := context.Background()

	def := timedDefinition()
	def.Deadlines = []*models.WorkflowDeadline{
		{
			ID:     "dl-1",
			StepID: "approve",
			Kind:   models.DeadlineKindHard,
			At:     time.Now().Add(-time.Hour),
			Action: models.DeadlineActionCancel,
		},
	}
	require.NoError(t, orchestrator.RegisterDefinition(ctx, def))

	instance, err := orchestrator.StartWorkflow(ctx, "purchase-approval", "alice", nil, models.InstanceMetadata{})
	require.NoError(t, err)

	scheduler.sweepDeadlines(ctx)

	stored, err := store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusExpired, stored.Status)
	assert.Empty(t, stored.CurrentSteps)
	assert.Equal(t, models.ExecutionStatusSkipped, stored.LatestExecution("approve").Status)
}

func TestSweepDeadlines_AutoApproveCompletesStep(t *testing.T) {
	scheduler, orchestrator, store := newTestScheduler(t)
	ctx := context.Background()

	def := timedDefinition()
	def.Deadlines = []*models.WorkflowDeadline{
		{
			ID:     "dl-2",
			StepID: "approve",
			Kind:   models.DeadlineKindHard,
			At:     time.Now().Add(-time.Minute),
			Action: models.DeadlineActionAutoApprove,
		},
	}
	require.NoError(t, orchestrator.RegisterDefinition(ctx, def))

	instance, err := orchestrator.StartWorkflow(ctx, "purchase-approval", "alice", nil, models.InstanceMetadata{})
	require.NoError(t, err)

	scheduler.sweepDeadlines(ctx)

	stored, err := store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, stored.Status)
	assert.Equal(t, models.ActionAutoApprove, stored.LatestExecution("approve").Action)
}

func TestSweepDeadlines_SoftDeadlineOnlyNotifies(t *testing.T) {
	scheduler, orchestrator, store := newTestScheduler(t)
	ctx := context.Background()

	def := timedDefinition()
	def.Deadlines = []*models.WorkflowDeadline{
		{
			ID:     "dl-3",
			StepID: "approve",
			Kind:   models.DeadlineKindSoft,
			At:     time.Now().Add(-time.Minute),
			// A soft deadline never runs its action.
			Action: models.DeadlineActionCancel,
		},
	}
	require.NoError(t, orchestrator.RegisterDefinition(ctx, def))

	instance, err := orchestrator.StartWorkflow(ctx, "purchase-approval", "alice", nil, models.InstanceMetadata{})
	require.NoError(t, err)

	scheduler.sweepDeadlines(ctx)

	stored, err := store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, stored.Status)
	assert.True(t, stored.DeadlineHandled("dl-3"))

	// The next sweep does not re-fire the handled breach.
	scheduler.sweepDeadlines(ctx)

	stored, err = store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, stored.Status)
}

func TestProcessDueSchedules_StartsInstance(t *testing.T) {
	scheduler, orchestrator, store := newTestScheduler(t)
	ctx := context.Background()

	def := timedDefinition()
	def.Triggers = []*models.WorkflowTrigger{
		{
			ID:             "nightly",
			Type:           models.TriggerTypeSchedule,
			CronExpression: "0 2 * * *",
			InitialData:    map[string]any{"source": "nightly_batch"},
		},
	}
	require.NoError(t, orchestrator.RegisterDefinition(ctx, def))

	schedules, err := store.Schedules().Due(ctx, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, schedules, 1)

	// Rewind the precomputed due time to the past.
	schedule := schedules[0]
	schedule.NextDueAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Schedules().Update(ctx, schedule))

	scheduler.processDueSchedules(ctx)

	instances, err := store.Instances().List(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "scheduler", instances[0].Initiator)
	assert.Equal(t, "nightly_batch", instances[0].Data["source"])

	// The schedule advanced past now.
	schedules, err = store.Schedules().Due(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestSchedulerStartStop(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)
	scheduler.WithIntervals(10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond)

	ctx := context.Background()
	scheduler.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	scheduler.Stop(ctx)
}
