package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceStatusTransitions(t *testing.T) {
	assert.True(t, InstanceStatusPending.CanTransition(InstanceStatusInProgress))
	assert.True(t, InstanceStatusInProgress.CanTransition(InstanceStatusCompleted))
	assert.True(t, InstanceStatusInProgress.CanTransition(InstanceStatusCancelled))
	assert.True(t, InstanceStatusInProgress.CanTransition(InstanceStatusEscalated))
	assert.True(t, InstanceStatusInProgress.CanTransition(InstanceStatusExpired))
	assert.True(t, InstanceStatusEscalated.CanTransition(InstanceStatusCompleted))

	// no way back to pending
	assert.False(t, InstanceStatusInProgress.CanTransition(InstanceStatusPending))
	assert.False(t, InstanceStatusEscalated.CanTransition(InstanceStatusPending))

	// terminal states never move
	for _, terminal := range []InstanceStatus{InstanceStatusCompleted, InstanceStatusCancelled, InstanceStatusExpired} {
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.CanTransition(InstanceStatusInProgress))
		assert.False(t, terminal.CanTransition(InstanceStatusCompleted))
	}
}

func TestInstanceLatestExecution(t *testing.T) {
	now := time.Now().UTC()
	instance := &WorkflowInstance{
		StepHistory: []WorkflowStepExecution{
			{ID: "e1", StepID: "review", Status: ExecutionStatusRejected, StartedAt: now.Add(-2 * time.Hour)},
			{ID: "e2", StepID: "approve", Status: ExecutionStatusCompleted, StartedAt: now.Add(-time.Hour)},
			{ID: "e3", StepID: "review", Status: ExecutionStatusInProgress, StartedAt: now},
		},
	}

	latest := instance.LatestExecution("review")
	require.NotNil(t, latest)
	assert.Equal(t, "e3", latest.ID)

	assert.Nil(t, instance.LatestExecution("missing"))
}

func TestInstanceStepCompleted(t *testing.T) {
	instance := &WorkflowInstance{
		StepHistory: []WorkflowStepExecution{
			{StepID: "submit", Status: ExecutionStatusCompleted},
			{StepID: "review", Status: ExecutionStatusRejected},
			{StepID: "audit", Status: ExecutionStatusSkipped},
		},
	}

	assert.True(t, instance.StepCompleted("submit"))
	assert.False(t, instance.StepCompleted("review"))
	assert.False(t, instance.StepCompleted("audit"))
	assert.False(t, instance.StepCompleted("missing"))
}

func TestInstanceMergeData_LastWriterWins(t *testing.T) {
	instance := &WorkflowInstance{}

	instance.MergeData(map[string]any{"amount": 100, "owner": "alice"})
	instance.MergeData(map[string]any{"amount": 250})

	assert.Equal(t, 250, instance.Data["amount"])
	assert.Equal(t, "alice", instance.Data["owner"])
}

func TestInstanceCurrentSteps(t *testing.T) {
	instance := &WorkflowInstance{}

	instance.AddCurrentStep("a")
	instance.AddCurrentStep("b")
	instance.AddCurrentStep("a")
	assert.Equal(t, []string{"a", "b"}, instance.CurrentSteps)

	instance.RemoveCurrentStep("a")
	assert.Equal(t, []string{"b"}, instance.CurrentSteps)
}

func TestAssigneeCandidates(t *testing.T) {
	assignee := WorkflowAssignee{Type: AssigneeTypeRoundRobin, Value: "clerk-1, clerk-2 ,clerk-3"}

	assert.Equal(t, []string{"clerk-1", "clerk-2", "clerk-3"}, assignee.Candidates())
}

func TestStepAcceptsAction(t *testing.T) {
	step := &WorkflowStep{
		ID:   "approve",
		Name: "Approve",
		Type: StepTypeApproval,
		Actions: []WorkflowAction{
			{Name: ActionApprove},
			{Name: ActionReject},
		},
	}

	assert.True(t, step.AcceptsAction(ActionApprove))
	assert.False(t, step.AcceptsAction(ActionForward))
	// system generated actions bypass the declared list
	assert.True(t, step.AcceptsAction(ActionTimerExpired))

	open := &WorkflowStep{ID: "open", Name: "Open", Type: StepTypeReview}
	assert.True(t, open.AcceptsAction(ActionForward))
}

func TestTriggerSchedule(t *testing.T) {
	schedule, err := NewTriggerSchedule("s1", "wf1", "t1", "*/5 * * * *")
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	assert.False(t, schedule.NextDueAt.IsZero())
	assert.False(t, schedule.IsDue(time.Now().UTC()))
	assert.True(t, schedule.IsDue(schedule.NextDueAt.Add(time.Second)))

	_, err = NewTriggerSchedule("s2", "wf1", "t1", "bogus")
	assert.Error(t, err)
}
