package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/okrun/caseflow/pkg/events"
	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/notification"
)

// escalate runs the definition's escalation rule for (step, condition), if
// one exists. Escalation is advisory: it flags the execution, notifies the
// target and raises an audit event, but the step stays completable and
// nothing is reassigned. The instance lock must be held.
func (e *Engine) escalate(
	ctx context.Context,
	def *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	execution *models.WorkflowStepExecution,
	condition models.EscalationCondition,
) {
	rule := def.EscalationRuleFor(step.ID, condition)
	if rule == nil {
		e.logger.DebugContext(ctx, "No escalation rule for step",
			"instance_id", instance.ID,
			"step_id", step.ID,
			"condition", condition)

		return
	}

	execution.Escalated = true
	execution.EscalatedTo = rule.EscalateTo
	instance.UpdatedAt = time.Now().UTC()

	escalated := events.StepEscalated{
		BaseEvent:  events.NewBaseEvent(events.StepEscalatedEvent, instance.WorkflowID),
		StepID:     step.ID,
		Condition:  string(condition),
		EscalateTo: rule.EscalateTo,
		Priority:   rule.Priority,
	}
	escalated.InstanceID = instance.ID
	escalated.Severity = events.SeverityWarning
	e.publish(ctx, instance.ID, escalated)

	e.notify(ctx, notification.Request{
		Trigger:    notification.TriggerStepEscalated,
		Recipients: []string{rule.EscalateTo},
		Template:   "step_escalated",
		Data: map[string]any{
			"instance_id": instance.ID,
			"workflow_id": instance.WorkflowID,
			"step_id":     step.ID,
			"condition":   string(condition),
			"priority":    rule.Priority,
		},
	})

	e.logger.WarnContext(ctx, "Step escalated",
		"instance_id", instance.ID,
		"step_id", step.ID,
		"condition", condition,
		"escalate_to", rule.EscalateTo)
}

// OnTimerFired handles a claimed durable timer. Timer steps self-complete;
// for every other step type an expired countdown means a timeout escalation.
// A timer racing a just-finished completion is stale and dropped.
func (e *Engine) OnTimerFired(ctx context.Context, timer *models.StepTimer) error {
	lock := e.locks.forInstance(timer.InstanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err := e.persistence.Instances().GetByID(ctx, timer.InstanceID)
	if err != nil {
		return err
	}

	if instance.Status.Terminal() {
		return nil
	}

	execution := instance.LatestExecution(timer.StepID)
	if execution == nil || (execution.Status != models.ExecutionStatusInProgress && execution.Status != models.ExecutionStatusEscalated) {
		e.logger.DebugContext(ctx, "Dropping stale timer",
			"instance_id", timer.InstanceID,
			"step_id", timer.StepID)

		return nil
	}

	def, err := e.persistence.Definitions().GetByID(ctx, instance.WorkflowID)
	if err != nil {
		return err
	}

	step := def.StepByID(timer.StepID)
	if step == nil {
		return fmt.Errorf("%w: %s", ErrStepNotFound, timer.StepID)
	}

	if step.Type == models.StepTypeTimer {
		if _, err := e.completeStepLocked(ctx, def, instance, step.ID, "system", models.ActionTimerExpired, nil, "", 0); err != nil {
			return err
		}

		return e.persistence.Instances().Save(ctx, instance)
	}

	condition := timer.Condition
	if condition == "" {
		condition = models.EscalationConditionTimeout
	}

	e.escalate(ctx, def, instance, step, execution, condition)

	return e.persistence.Instances().Save(ctx, instance)
}

// OnDeadlineBreached handles one breached absolute deadline for an instance.
// Soft deadlines only notify; hard deadlines run the configured action. Each
// breach is acted on once.
func (e *Engine) OnDeadlineBreached(ctx context.Context, instanceID string, deadline *models.WorkflowDeadline) error {
	lock := e.locks.forInstance(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Status.Terminal() || instance.DeadlineHandled(deadline.ID) {
		return nil
	}

	if !slices.Contains(instance.CurrentSteps, deadline.StepID) {
		return nil
	}

	def, err := e.persistence.Definitions().GetByID(ctx, instance.WorkflowID)
	if err != nil {
		return err
	}

	step := def.StepByID(deadline.StepID)
	if step == nil {
		return fmt.Errorf("%w: %s", ErrStepNotFound, deadline.StepID)
	}

	instance.MarkDeadlineHandled(deadline.ID)
	instance.UpdatedAt = time.Now().UTC()

	breached := events.DeadlineBreached{
		BaseEvent:  events.NewBaseEvent(events.DeadlineBreachedEvent, instance.WorkflowID),
		StepID:     deadline.StepID,
		DeadlineID: deadline.ID,
		Kind:       string(deadline.Kind),
		Action:     string(deadline.Action),
	}
	breached.InstanceID = instanceID
	breached.Severity = events.SeverityCritical
	e.publish(ctx, instanceID, breached)

	e.logger.WarnContext(ctx, "Deadline breached",
		"instance_id", instanceID,
		"step_id", deadline.StepID,
		"deadline_id", deadline.ID,
		"kind", deadline.Kind,
		"action", deadline.Action)

	action := deadline.Action
	if deadline.Kind == models.DeadlineKindSoft {
		action = models.DeadlineActionNotify
	}

	switch action {
	case models.DeadlineActionNotify:
		e.notifyDeadline(ctx, instance, deadline)
	case models.DeadlineActionEscalate:
		// A deadline escalation is the one escalation that reassigns.
		execution := instance.LatestExecution(deadline.StepID)
		if execution != nil {
			execution.Escalated = true
			execution.EscalatedTo = deadline.EscalateTo
		}

		instance.AssignedTo = deadline.EscalateTo

		escalated := events.StepEscalated{
			BaseEvent:  events.NewBaseEvent(events.StepEscalatedEvent, instance.WorkflowID),
			StepID:     deadline.StepID,
			Condition:  "deadline",
			EscalateTo: deadline.EscalateTo,
			Reassigned: true,
		}
		escalated.InstanceID = instanceID
		escalated.Severity = events.SeverityCritical
		e.publish(ctx, instanceID, escalated)

		e.notify(ctx, notification.Request{
			Trigger:    notification.TriggerStepEscalated,
			Recipients: []string{deadline.EscalateTo},
			Template:   "deadline_escalated",
			Data: map[string]any{
				"instance_id": instanceID,
				"step_id":     deadline.StepID,
				"deadline_id": deadline.ID,
			},
		})
	case models.DeadlineActionAutoApprove:
		if _, err := e.completeStepLocked(ctx, def, instance, deadline.StepID, "system", models.ActionAutoApprove, nil, "", 0); err != nil {
			return err
		}
	case models.DeadlineActionCancel:
		return e.expireInstance(ctx, instance, deadline)
	}

	return e.persistence.Instances().Save(ctx, instance)
}

func (e *Engine) notifyDeadline(ctx context.Context, instance *models.WorkflowInstance, deadline *models.WorkflowDeadline) {
	recipient := deadline.ResponsibleParty
	if recipient == "" {
		recipient = instance.Initiator
	}

	e.notify(ctx, notification.Request{
		Trigger:    notification.TriggerDeadlineBreach,
		Recipients: []string{recipient},
		Template:   "deadline_breach",
		Data: map[string]any{
			"instance_id": instance.ID,
			"step_id":     deadline.StepID,
			"deadline_id": deadline.ID,
			"kind":        string(deadline.Kind),
		},
	})
}

// expireInstance terminates an instance whose hard deadline demands
// cancellation. The instance ends in status expired, distinct from a
// user-requested cancel.
func (e *Engine) expireInstance(ctx context.Context, instance *models.WorkflowInstance, deadline *models.WorkflowDeadline) error {
	if err := e.persistence.Timers().CancelAll(ctx, instance.ID); err != nil {
		return err
	}

	e.skipOpenExecutions(instance)
	instance.Status = models.InstanceStatusExpired
	instance.CurrentSteps = nil
	instance.UpdatedAt = time.Now().UTC()

	if err := e.persistence.Instances().Save(ctx, instance); err != nil {
		return err
	}

	if err := e.persistence.Definitions().RecordCompletion(ctx, instance.WorkflowID, false); err != nil {
		e.logger.WarnContext(ctx, "Failed to record completion counters", "workflow_id", instance.WorkflowID, "error", err)
	}

	expired := events.InstanceExpired{
		BaseEvent:  events.NewBaseEvent(events.InstanceExpiredEvent, instance.WorkflowID),
		StepID:     deadline.StepID,
		DeadlineID: deadline.ID,
	}
	expired.InstanceID = instance.ID
	expired.Severity = events.SeverityCritical
	e.publish(ctx, instance.ID, expired)

	e.notify(ctx, notification.Request{
		Trigger:    notification.TriggerInstanceClosed,
		Recipients: []string{instance.Initiator},
		Template:   "instance_expired",
		Data: map[string]any{
			"instance_id": instance.ID,
			"deadline_id": deadline.ID,
		},
	})

	return nil
}
