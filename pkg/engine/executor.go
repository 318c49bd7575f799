package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okrun/caseflow/pkg/events"
	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/notification"
	"github.com/okrun/caseflow/pkg/otelhelper"
)

// maxCascadeDepth bounds the chain of automatic steps entered from a single
// completion. The dependency graph is acyclic, but explicit next_step
// overrides can loop; a runaway chain of automatic steps is cut here.
const maxCascadeDepth = 64

var errCascadeTooDeep = fmt.Errorf("automatic step cascade exceeded %d levels", maxCascadeDepth)

// integrationAttempts is the retry budget surfaced on step failure events.
const integrationAttempts = 3

// StepResult reports what a completion caused.
type StepResult struct {
	InstanceID     string                `json:"instance_id"`
	StepID         string                `json:"step_id"`
	NextSteps      []string              `json:"next_steps"`
	InstanceStatus models.InstanceStatus `json:"instance_status"`
}

// CompleteStep records a caller's completion of an active step and advances
// the instance. The loser of a duplicate completion gets
// ErrStepAlreadyCompleted; the first completion stands untouched.
func (e *Engine) CompleteStep(
	ctx context.Context,
	instanceID, stepID, userID string,
	action models.ActionType,
	data map[string]any,
	comments string,
) (*StepResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.complete_step",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.StepIDKey, stepID),
		attribute.String(otelhelper.ActionKey, string(action)),
	)
	defer span.End()

	lock := e.locks.forInstance(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if instance.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInstanceTerminal, instanceID, instance.Status)
	}

	def, err := e.persistence.Definitions().GetByID(ctx, instance.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	nextSteps, err := e.completeStepLocked(ctx, def, instance, stepID, userID, action, data, comments, 0)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if err := e.persistence.Instances().Save(ctx, instance); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return &StepResult{
		InstanceID:     instanceID,
		StepID:         stepID,
		NextSteps:      nextSteps,
		InstanceStatus: instance.Status,
	}, nil
}

// completeStepLocked is the completion path shared by callers, automatic
// steps and the scheduler. The instance lock must be held.
func (e *Engine) completeStepLocked(
	ctx context.Context,
	def *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	stepID, userID string,
	action models.ActionType,
	data map[string]any,
	comments string,
	depth int,
) ([]string, error) {
	step := def.StepByID(stepID)
	if step == nil {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	}

	execution := instance.LatestExecution(stepID)
	if execution == nil {
		return nil, fmt.Errorf("%w: %s", ErrStepNotActive, stepID)
	}

	switch execution.Status {
	case models.ExecutionStatusInProgress, models.ExecutionStatusEscalated:
		// Completable. An escalated execution stays completable: the
		// escalation remains on record next to the completion.
	case models.ExecutionStatusCompleted:
		return nil, fmt.Errorf("%w: %s", ErrStepAlreadyCompleted, stepID)
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrStepNotActive, stepID, execution.Status)
	}

	if !step.AcceptsAction(action) {
		return nil, fmt.Errorf("%w: step %s does not accept %q", ErrActionNotAllowed, stepID, action)
	}

	// Required fields bind callers; engine-generated completions (auto
	// approve, timer expiry) carry no user data to check.
	if !action.SystemGenerated() {
		if err := checkRequiredFields(step, instance, data); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	execution.Action = action
	execution.CompletedBy = userID
	execution.Comments = comments
	execution.CompletedAt = &now
	execution.DurationMs = now.Sub(execution.StartedAt).Milliseconds()

	instance.MergeData(data)
	instance.RemoveCurrentStep(stepID)
	instance.UpdatedAt = now

	// A completed step's countdown is void; cancelling is idempotent.
	if err := e.persistence.Timers().Cancel(ctx, instance.ID, stepID); err != nil {
		return nil, err
	}

	if action == models.ActionReject {
		return e.finishRejected(ctx, def, instance, step, execution, depth)
	}

	execution.Status = models.ExecutionStatusCompleted
	execution.Outcome = string(action)

	nextSteps, err := e.advance(ctx, def, instance, step, execution, action, depth)
	if err != nil {
		return nil, err
	}

	completed := events.StepCompleted{
		BaseEvent:  events.NewBaseEvent(events.StepCompletedEvent, instance.WorkflowID),
		StepID:     stepID,
		Action:     string(action),
		Outcome:    execution.Outcome,
		NextSteps:  nextSteps,
		DurationMs: execution.DurationMs,
	}
	completed.InstanceID = instance.ID
	completed.ActorID = userID
	e.publish(ctx, instance.ID, completed)

	e.logger.InfoContext(ctx, "Step completed",
		"instance_id", instance.ID,
		"step_id", stepID,
		"action", action,
		"next_steps", nextSteps)

	if len(instance.CurrentSteps) == 0 && instance.Status == models.InstanceStatusInProgress {
		if err := e.completeInstance(ctx, def, instance); err != nil {
			return nil, err
		}
	}

	return nextSteps, nil
}

// finishRejected records a rejection. Rejection never satisfies a dependency,
// so dependents stay blocked; only an explicit next_step override on the
// reject action advances the instance.
func (e *Engine) finishRejected(
	ctx context.Context,
	def *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	execution *models.WorkflowStepExecution,
	depth int,
) ([]string, error) {
	execution.Status = models.ExecutionStatusRejected
	execution.Outcome = string(models.ActionReject)

	rejected := events.StepRejected{
		BaseEvent: events.NewBaseEvent(events.StepRejectedEvent, instance.WorkflowID),
		StepID:    step.ID,
		Action:    string(models.ActionReject),
		Comments:  execution.Comments,
	}
	rejected.InstanceID = instance.ID
	rejected.ActorID = execution.CompletedBy
	rejected.Severity = events.SeverityWarning
	e.publish(ctx, instance.ID, rejected)

	e.escalate(ctx, def, instance, step, execution, models.EscalationConditionRejection)

	var nextSteps []string

	if rejectAction, ok := step.ActionByName(models.ActionReject); ok && rejectAction.NextStep != nil {
		next := def.StepByID(*rejectAction.NextStep)
		if next == nil {
			return nil, fmt.Errorf("%w: %s", ErrStepNotFound, *rejectAction.NextStep)
		}

		if err := e.executeStep(ctx, def, instance, next, depth+1); err != nil {
			return nil, err
		}

		nextSteps = []string{next.ID}
	}

	if len(instance.CurrentSteps) == 0 && instance.Status == models.InstanceStatusInProgress {
		if err := e.completeInstance(ctx, def, instance); err != nil {
			return nil, err
		}
	}

	return nextSteps, nil
}

// advance resolves and enters the steps following a completion. An explicit
// next_step override on the matched action wins over dependency resolution;
// the override's conditions, evaluated against the merged data bag, gate it.
func (e *Engine) advance(
	ctx context.Context,
	def *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	execution *models.WorkflowStepExecution,
	action models.ActionType,
	depth int,
) ([]string, error) {
	if matched, ok := step.ActionByName(action); ok && matched.NextStep != nil {
		applies, err := models.EvaluateAll(matched.Conditions, instance.Data)
		if err != nil {
			return nil, err
		}

		if applies {
			next := def.StepByID(*matched.NextStep)
			if next == nil {
				return nil, fmt.Errorf("%w: %s", ErrStepNotFound, *matched.NextStep)
			}

			execution.NextStep = next.ID

			if err := e.executeStep(ctx, def, instance, next, depth+1); err != nil {
				return nil, err
			}

			return []string{next.ID}, nil
		}
	}

	ready := readySteps(def, instance, step.ID)
	nextSteps := make([]string, 0, len(ready))

	for _, next := range ready {
		if err := e.executeStep(ctx, def, instance, next, depth+1); err != nil {
			return nil, err
		}

		nextSteps = append(nextSteps, next.ID)
	}

	return nextSteps, nil
}

// executeStep enters a step: it appends an in-progress execution, arms the
// step's timer and dispatches on the step type. Automatic steps complete
// themselves within the same call. The instance lock must be held.
func (e *Engine) executeStep(
	ctx context.Context,
	def *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	depth int,
) error {
	if depth > maxCascadeDepth {
		return errCascadeTooDeep
	}

	now := time.Now().UTC()
	assignee := e.resolveAssignee(ctx, def.ID, step)

	instance.StepHistory = append(instance.StepHistory, models.WorkflowStepExecution{
		ID:        uuid.New().String(),
		StepID:    step.ID,
		Assignee:  assignee,
		Status:    models.ExecutionStatusInProgress,
		StartedAt: now,
	})
	instance.AddCurrentStep(step.ID)
	instance.UpdatedAt = now

	// The step's own time limit wins; a timeout escalation rule's threshold
	// covers steps that declare none. Timer steps stay on their own limit.
	limit := step.TimeLimit
	if limit <= 0 && step.Type != models.StepTypeTimer {
		if rule := def.EscalationRuleFor(step.ID, models.EscalationConditionTimeout); rule != nil && rule.ThresholdMinutes > 0 {
			limit = rule.ThresholdMinutes
		}
	}

	if limit > 0 {
		timer := &models.StepTimer{
			InstanceID: instance.ID,
			StepID:     step.ID,
			FireAt:     now.Add(time.Duration(limit) * time.Minute),
			Condition:  models.EscalationConditionTimeout,
			CreatedAt:  now,
		}
		if err := e.persistence.Timers().Arm(ctx, timer); err != nil {
			return err
		}
	}

	started := events.StepStarted{
		BaseEvent: events.NewBaseEvent(events.StepStartedEvent, instance.WorkflowID),
		StepID:    step.ID,
		StepType:  string(step.Type),
		Assignee:  assignee,
		TimeLimit: limit,
	}
	started.InstanceID = instance.ID
	e.publish(ctx, instance.ID, started)

	e.logger.InfoContext(ctx, "Step started",
		"instance_id", instance.ID,
		"step_id", step.ID,
		"step_type", step.Type,
		"assignee", assignee)

	// The crash line: the execution and its timer are durable before any
	// automatic work runs.
	if err := e.persistence.Instances().Save(ctx, instance); err != nil {
		return err
	}

	switch {
	case step.Type == models.StepTypeParallel:
		return e.runParallel(ctx, def, instance, step, depth)
	case step.Type == models.StepTypeSystemAction:
		return e.runSystemAction(ctx, def, instance, step, depth)
	case step.Type == models.StepTypeTimer:
		if step.TimeLimit <= 0 {
			_, err := e.completeStepLocked(ctx, def, instance, step.ID, "system", models.ActionTimerExpired, nil, "", depth+1)

			return err
		}

		// Armed above; the scheduler completes it when the timer fires.
		return nil
	case step.AutoAdvance:
		_, err := e.completeStepLocked(ctx, def, instance, step.ID, "system", models.ActionSystemComplete, nil, "", depth+1)

		return err
	default:
		e.notify(ctx, notification.Request{
			Trigger:    notification.TriggerStepAssigned,
			Recipients: []string{assignee},
			Template:   "step_assigned",
			Data: map[string]any{
				"instance_id": instance.ID,
				"workflow_id": instance.WorkflowID,
				"step_id":     step.ID,
				"step_name":   step.Name,
			},
		})

		return nil
	}
}

// runParallel fans out into the parallel step's children and completes the
// fan-out node itself.
func (e *Engine) runParallel(
	ctx context.Context,
	def *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	depth int,
) error {
	execution := instance.LatestExecution(step.ID)
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCompleted
	execution.Action = models.ActionSystemComplete
	execution.Outcome = "fanned_out"
	execution.CompletedBy = "system"
	execution.CompletedAt = &now
	execution.DurationMs = now.Sub(execution.StartedAt).Milliseconds()
	instance.RemoveCurrentStep(step.ID)

	if err := e.persistence.Timers().Cancel(ctx, instance.ID, step.ID); err != nil {
		return err
	}

	for _, childID := range step.ParallelSteps {
		child := def.StepByID(childID)
		if child == nil {
			return fmt.Errorf("%w: %s", ErrStepNotFound, childID)
		}

		if err := e.executeStep(ctx, def, instance, child, depth+1); err != nil {
			return err
		}
	}

	return nil
}

// runSystemAction calls the integration gateway and self-completes on
// success. Failure after the retry budget marks the execution escalated; the
// instance keeps running and the step stays completable by a human.
func (e *Engine) runSystemAction(
	ctx context.Context,
	def *models.WorkflowDefinition,
	instance *models.WorkflowInstance,
	step *models.WorkflowStep,
	depth int,
) error {
	service, operation, parameters := integrationTarget(step, instance)

	result, err := e.gateway.Call(ctx, service, operation, parameters)
	if err != nil {
		execution := instance.LatestExecution(step.ID)
		execution.Status = models.ExecutionStatusEscalated

		failed := events.StepFailed{
			BaseEvent: events.NewBaseEvent(events.StepFailedEvent, instance.WorkflowID),
			StepID:    step.ID,
			Service:   service,
			Error:     err.Error(),
			Attempts:  integrationAttempts,
		}
		failed.InstanceID = instance.ID
		failed.Severity = events.SeverityCritical
		e.publish(ctx, instance.ID, failed)

		e.logger.ErrorContext(ctx, "System action failed",
			"instance_id", instance.ID,
			"step_id", step.ID,
			"service", service,
			"error", err)

		e.escalate(ctx, def, instance, step, execution, models.EscalationConditionCustom)

		return nil
	}

	_, err = e.completeStepLocked(ctx, def, instance, step.ID, "system", models.ActionIntegrate, result, "", depth+1)

	return err
}

// integrationTarget resolves which external call a system step makes. The
// integrate action's parameters name the service and operation; absent that,
// the system assignee value is the service and the step id the operation.
func integrationTarget(step *models.WorkflowStep, instance *models.WorkflowInstance) (string, string, map[string]any) {
	service := step.Assignee.Value
	operation := step.ID
	parameters := map[string]any{
		"instance_id": instance.ID,
		"workflow_id": instance.WorkflowID,
		"data":        instance.Data,
	}

	if action, ok := step.ActionByName(models.ActionIntegrate); ok {
		if s, found := action.Parameters["service"].(string); found && s != "" {
			service = s
		}

		if op, found := action.Parameters["operation"].(string); found && op != "" {
			operation = op
		}

		for key, value := range action.Parameters {
			if key == "service" || key == "operation" {
				continue
			}

			parameters[key] = value
		}
	}

	return service, operation, parameters
}

// completeInstance closes an instance whose last active step finished.
func (e *Engine) completeInstance(ctx context.Context, def *models.WorkflowDefinition, instance *models.WorkflowInstance) error {
	now := time.Now().UTC()
	instance.Status = models.InstanceStatusCompleted
	instance.ActualCompletion = &now
	instance.UpdatedAt = now

	if err := e.persistence.Timers().CancelAll(ctx, instance.ID); err != nil {
		return err
	}

	success := true

	for idx := range instance.StepHistory {
		if instance.StepHistory[idx].Status == models.ExecutionStatusRejected {
			success = false

			break
		}
	}

	if err := e.persistence.Definitions().RecordCompletion(ctx, def.ID, success); err != nil {
		e.logger.WarnContext(ctx, "Failed to record completion counters", "workflow_id", def.ID, "error", err)
	}

	// The rolling rate comes from the store, which just folded this run in.
	successRate := def.Metadata.SuccessRate
	if updated, err := e.persistence.Definitions().GetByID(ctx, def.ID); err == nil {
		successRate = updated.Metadata.SuccessRate
	}

	completed := events.InstanceCompleted{
		BaseEvent:     events.NewBaseEvent(events.InstanceCompletedEvent, instance.WorkflowID),
		DurationMs:    now.Sub(instance.CreatedAt).Milliseconds(),
		StepsExecuted: len(instance.StepHistory),
		SuccessRate:   successRate,
	}
	completed.InstanceID = instance.ID
	e.publish(ctx, instance.ID, completed)

	e.notify(ctx, notification.Request{
		Trigger:    notification.TriggerInstanceClosed,
		Recipients: []string{instance.Initiator},
		Template:   "instance_closed",
		Data: map[string]any{
			"instance_id": instance.ID,
			"workflow_id": instance.WorkflowID,
			"success":     success,
		},
	})

	e.logger.InfoContext(ctx, "Workflow instance completed",
		"instance_id", instance.ID,
		"workflow_id", instance.WorkflowID,
		"duration_ms", completed.DurationMs,
		"success", success)

	return nil
}

// checkRequiredFields verifies every declared required field is present in
// the submitted data or already in the instance data bag.
func checkRequiredFields(step *models.WorkflowStep, instance *models.WorkflowInstance, data map[string]any) error {
	for _, field := range step.RequiredFields {
		if _, ok := data[field]; ok {
			continue
		}

		if _, ok := instance.Data[field]; ok {
			continue
		}

		return fmt.Errorf("%w: %s requires %q", ErrMissingRequiredFields, step.ID, field)
	}

	return nil
}
