// Package events defines the structured audit events emitted on every
// workflow state transition. The audit sink consumes these from the event
// bus; the engine only publishes.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const AuditTopic = "caseflow.audit" // Topic for workflow lifecycle audit events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Definition lifecycle events.
	DefinitionRegisteredEvent EventType = "definition.registered"

	// Instance lifecycle events.
	InstanceStartedEvent   EventType = "instance.started"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceCancelledEvent EventType = "instance.cancelled"
	InstanceExpiredEvent   EventType = "instance.expired"

	// Step lifecycle events.
	StepStartedEvent   EventType = "step.started"
	StepCompletedEvent EventType = "step.completed"
	StepRejectedEvent  EventType = "step.rejected"
	StepEscalatedEvent EventType = "step.escalated"
	StepFailedEvent    EventType = "step.failed"

	// Deadline events.
	DeadlineBreachedEvent EventType = "deadline.breached"
)

// Severity grades an audit event for the sink's filtering.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	InstanceID string         `json:"instance_id,omitempty"`
	Severity   Severity       `json:"severity"`
	ActorID    string         `json:"actor_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type DefinitionRegistered struct {
	BaseEvent

	Name      string `json:"name"`
	Version   int    `json:"version"`
	Category  string `json:"category"`
	StepCount int    `json:"step_count"`
}

func (e DefinitionRegistered) GetType() EventType {
	return DefinitionRegisteredEvent
}

type InstanceStarted struct {
	BaseEvent

	Initiator  string         `json:"initiator"`
	EntrySteps []string       `json:"entry_steps"`
	Data       map[string]any `json:"data,omitempty"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceCompleted struct {
	BaseEvent

	DurationMs    int64   `json:"duration_ms"`
	StepsExecuted int     `json:"steps_executed"`
	SuccessRate   float64 `json:"success_rate"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceCancelled struct {
	BaseEvent

	CancelledBy  string `json:"cancelled_by"`
	Reason       string `json:"reason"`
	SkippedSteps int    `json:"skipped_steps"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

type InstanceExpired struct {
	BaseEvent

	StepID     string `json:"step_id"`
	DeadlineID string `json:"deadline_id"`
}

func (e InstanceExpired) GetType() EventType {
	return InstanceExpiredEvent
}

type StepStarted struct {
	BaseEvent

	StepID    string `json:"step_id"`
	StepType  string `json:"step_type"`
	Assignee  string `json:"assignee"`
	TimeLimit int    `json:"time_limit"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepCompleted struct {
	BaseEvent

	StepID     string   `json:"step_id"`
	Action     string   `json:"action"`
	Outcome    string   `json:"outcome,omitempty"`
	NextSteps  []string `json:"next_steps,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepRejected struct {
	BaseEvent

	StepID   string `json:"step_id"`
	Action   string `json:"action"`
	Comments string `json:"comments,omitempty"`
}

func (e StepRejected) GetType() EventType {
	return StepRejectedEvent
}

type StepEscalated struct {
	BaseEvent

	StepID     string `json:"step_id"`
	Condition  string `json:"condition"`
	EscalateTo string `json:"escalate_to"`
	Priority   string `json:"priority"`
	Reassigned bool   `json:"reassigned"`
}

func (e StepEscalated) GetType() EventType {
	return StepEscalatedEvent
}

type StepFailed struct {
	BaseEvent

	StepID   string `json:"step_id"`
	Service  string `json:"service,omitempty"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type DeadlineBreached struct {
	BaseEvent

	StepID     string `json:"step_id"`
	DeadlineID string `json:"deadline_id"`
	Kind       string `json:"kind"`
	Action     string `json:"action"`
}

func (e DeadlineBreached) GetType() EventType {
	return DeadlineBreachedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Severity:   SeverityInfo,
		Metadata:   make(map[string]any),
	}
}
