// Package engine implements workflow orchestration: definition registration,
// instance lifecycle, step completion and escalation.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/okrun/caseflow/pkg/eventbus"
	"github.com/okrun/caseflow/pkg/events"
	"github.com/okrun/caseflow/pkg/integration"
	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/notification"
	"github.com/okrun/caseflow/pkg/otelhelper"
	"github.com/okrun/caseflow/pkg/persistence"
)

// Engine coordinates workflow instances against their immutable definitions.
// All mutations on one instance are serialized through a per-instance lock;
// reads are lock-free.
type Engine struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	notifier    notification.Dispatcher
	gateway     integration.Gateway
	validator   *validator.Validate
	tracer      trace.Tracer
	logger      *slog.Logger

	locks      *instanceLocks
	roundRobin sync.Map // workflowID/stepID -> *atomic.Uint64
}

func NewEngine(
	persistence persistence.Persistence,
	eventBus eventbus.EventPublisher,
	notifier notification.Dispatcher,
	gateway integration.Gateway,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		persistence: persistence,
		eventBus:    eventBus,
		notifier:    notifier,
		gateway:     gateway,
		validator:   validator.New(),
		tracer:      noop.NewTracerProvider().Tracer("caseflow.engine"),
		logger:      logger.With("module", "engine"),
		locks:       newInstanceLocks(),
	}
}

// WithTracer swaps the noop tracer for a real one.
func (e *Engine) WithTracer(tracer trace.Tracer) *Engine {
	e.tracer = tracer

	return e
}

// RegisterDefinition validates and stores a workflow definition. Registration
// is all-or-nothing: a definition failing any structural check is rejected
// wholesale and nothing is stored.
func (e *Engine) RegisterDefinition(ctx context.Context, def *models.WorkflowDefinition) error {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}

	if def.Version == 0 {
		def.Version = 1
	}

	if err := e.validator.Struct(def); err != nil {
		return fmt.Errorf("invalid definition: %w", err)
	}

	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid definition: %w", err)
	}

	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := e.persistence.Definitions().Save(ctx, def); err != nil {
		return err
	}

	if err := e.registerSchedules(ctx, def); err != nil {
		return err
	}

	event := events.DefinitionRegistered{
		BaseEvent: events.NewBaseEvent(events.DefinitionRegisteredEvent, def.ID),
		Name:      def.Name,
		Version:   def.Version,
		Category:  def.Category,
		StepCount: len(def.Steps),
	}
	e.publish(ctx, def.ID, event)

	e.logger.InfoContext(ctx, "Workflow definition registered",
		"workflow_id", def.ID,
		"name", def.Name,
		"steps", len(def.Steps))

	return nil
}

// RegisterDefinitionJSON checks a raw definition document against the JSON
// schema before unmarshalling and registering it.
func (e *Engine) RegisterDefinitionJSON(ctx context.Context, raw []byte) (*models.WorkflowDefinition, error) {
	if err := models.ValidateDefinitionDocument(raw); err != nil {
		return nil, err
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition document: %w", err)
	}

	if err := e.RegisterDefinition(ctx, &def); err != nil {
		return nil, err
	}

	return &def, nil
}

// registerSchedules materializes the definition's schedule triggers into
// durable schedule rows for the scheduler's cron poll.
func (e *Engine) registerSchedules(ctx context.Context, def *models.WorkflowDefinition) error {
	for _, trigger := range def.Triggers {
		if trigger.Type != models.TriggerTypeSchedule {
			continue
		}

		schedule, err := models.NewTriggerSchedule(uuid.New().String(), def.ID, trigger.ID, trigger.CronExpression)
		if err != nil {
			return fmt.Errorf("trigger %s: %w", trigger.ID, err)
		}

		if err := e.persistence.Schedules().Save(ctx, schedule); err != nil {
			return err
		}
	}

	return nil
}

// StartWorkflow creates and starts an instance of a registered definition,
// entering every entry step.
func (e *Engine) StartWorkflow(
	ctx context.Context,
	workflowID, initiator string,
	data map[string]any,
	metadata models.InstanceMetadata,
) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start_workflow",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.InitiatorKey, initiator),
	)
	defer span.End()

	def, err := e.persistence.Definitions().GetByID(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if !def.Active {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowInactive, workflowID)
	}

	entries := def.EntrySteps()
	if len(entries) == 0 {
		return nil, models.ErrNoEntryStep
	}

	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		ID:           uuid.New().String(),
		WorkflowID:   workflowID,
		Initiator:    initiator,
		Status:       models.InstanceStatusInProgress,
		CurrentSteps: make([]string, 0, len(entries)),
		StepHistory:  make([]models.WorkflowStepExecution, 0, len(def.Steps)),
		Data:         make(map[string]any, len(data)),
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	instance.MergeData(data)

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, instance.ID))

	lock := e.locks.forInstance(instance.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.persistence.Instances().Save(ctx, instance); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if err := e.persistence.Definitions().IncrementUsage(ctx, workflowID); err != nil {
		e.logger.WarnContext(ctx, "Failed to increment usage counter", "workflow_id", workflowID, "error", err)
	}

	entryIDs := make([]string, 0, len(entries))
	for _, step := range entries {
		entryIDs = append(entryIDs, step.ID)
	}

	started := events.InstanceStarted{
		BaseEvent:  events.NewBaseEvent(events.InstanceStartedEvent, workflowID),
		Initiator:  initiator,
		EntrySteps: entryIDs,
		Data:       instance.Data,
	}
	started.InstanceID = instance.ID
	started.ActorID = initiator
	e.publish(ctx, instance.ID, started)

	e.logger.InfoContext(ctx, "Workflow instance started",
		"workflow_id", workflowID,
		"instance_id", instance.ID,
		"initiator", initiator,
		"entry_steps", entryIDs)

	for _, step := range entries {
		if err := e.executeStep(ctx, def, instance, step, 0); err != nil {
			otelhelper.SetError(span, err)

			return nil, err
		}
	}

	if err := e.persistence.Instances().Save(ctx, instance); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return instance, nil
}

// GetInstance returns the instance with its full step history.
func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return e.persistence.Instances().GetByID(ctx, instanceID)
}

// ListDefinitions returns every registered definition.
func (e *Engine) ListDefinitions(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	return e.persistence.Definitions().List(ctx)
}

// GetDefinition returns a registered definition by id.
func (e *Engine) GetDefinition(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	return e.persistence.Definitions().GetByID(ctx, workflowID)
}

// ActiveInstances lists in-progress instances. With a non-empty userID only
// instances with an open execution assigned to that user (or instances
// reassigned to the user) are returned.
func (e *Engine) ActiveInstances(ctx context.Context, userID string) ([]*models.WorkflowInstance, error) {
	instances, err := e.persistence.Instances().ListByStatus(ctx, models.InstanceStatusInProgress)
	if err != nil {
		return nil, err
	}

	if userID == "" {
		return instances, nil
	}

	matched := make([]*models.WorkflowInstance, 0, len(instances))

	for _, instance := range instances {
		if e.assignedTo(instance, userID) {
			matched = append(matched, instance)
		}
	}

	return matched, nil
}

func (e *Engine) assignedTo(instance *models.WorkflowInstance, userID string) bool {
	if instance.AssignedTo == userID {
		return true
	}

	for idx := range instance.StepHistory {
		execution := &instance.StepHistory[idx]
		if execution.Status != models.ExecutionStatusInProgress && execution.Status != models.ExecutionStatusEscalated {
			continue
		}

		if execution.Assignee == userID || execution.Assignee == "user:"+userID || execution.EscalatedTo == userID {
			return true
		}
	}

	return false
}

// AddComment appends a free-form comment to an instance.
func (e *Engine) AddComment(
	ctx context.Context,
	instanceID, authorID, authorName, authorRole, content string,
	internal bool,
) (*models.Comment, error) {
	lock := e.locks.forInstance(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	comment := models.Comment{
		ID:         uuid.New().String(),
		AuthorID:   authorID,
		AuthorName: authorName,
		AuthorRole: authorRole,
		Content:    content,
		Internal:   internal,
		CreatedAt:  time.Now().UTC(),
	}

	instance.Comments = append(instance.Comments, comment)
	instance.UpdatedAt = comment.CreatedAt

	if err := e.persistence.Instances().Save(ctx, instance); err != nil {
		return nil, err
	}

	return &comment, nil
}

// CancelInstance terminates an instance: armed timers are cancelled, open
// executions are skipped and the status becomes cancelled.
func (e *Engine) CancelInstance(ctx context.Context, instanceID, cancelledBy, reason string) error {
	lock := e.locks.forInstance(instanceID)
	lock.Lock()
	defer lock.Unlock()

	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if !instance.Status.CanTransition(models.InstanceStatusCancelled) {
		return fmt.Errorf("%w: %s is %s", ErrInstanceTerminal, instanceID, instance.Status)
	}

	if err := e.persistence.Timers().CancelAll(ctx, instanceID); err != nil {
		return err
	}

	skipped := e.skipOpenExecutions(instance)
	instance.Status = models.InstanceStatusCancelled
	instance.CurrentSteps = nil
	instance.UpdatedAt = time.Now().UTC()

	if err := e.persistence.Instances().Save(ctx, instance); err != nil {
		return err
	}

	event := events.InstanceCancelled{
		BaseEvent:    events.NewBaseEvent(events.InstanceCancelledEvent, instance.WorkflowID),
		CancelledBy:  cancelledBy,
		Reason:       reason,
		SkippedSteps: skipped,
	}
	event.InstanceID = instanceID
	event.ActorID = cancelledBy
	e.publish(ctx, instanceID, event)

	e.logger.InfoContext(ctx, "Workflow instance cancelled",
		"instance_id", instanceID,
		"cancelled_by", cancelledBy,
		"skipped_steps", skipped)

	return nil
}

// skipOpenExecutions marks every open execution skipped and returns how many.
func (e *Engine) skipOpenExecutions(instance *models.WorkflowInstance) int {
	now := time.Now().UTC()
	skipped := 0

	for idx := range instance.StepHistory {
		execution := &instance.StepHistory[idx]
		if execution.Status != models.ExecutionStatusInProgress && execution.Status != models.ExecutionStatusEscalated {
			continue
		}

		execution.Status = models.ExecutionStatusSkipped
		execution.CompletedAt = &now
		execution.DurationMs = now.Sub(execution.StartedAt).Milliseconds()
		skipped++
	}

	return skipped
}

// publish emits an audit event. Audit emission is best-effort: a failing
// publish is logged and never fails the workflow operation it trails.
func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := e.eventBus.Publish(ctx, key, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish audit event",
			"event_type", event.GetType(),
			"key", key,
			"error", err)
	}
}

// notify enqueues a notification request. Like audit events, notification
// enqueueing is best-effort.
func (e *Engine) notify(ctx context.Context, request notification.Request) {
	if err := e.notifier.Enqueue(ctx, request); err != nil {
		e.logger.ErrorContext(ctx, "Failed to enqueue notification",
			"trigger", request.Trigger,
			"error", err)
	}
}
