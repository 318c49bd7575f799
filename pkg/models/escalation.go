package models

import "time"

// EscalationCondition names the situation a rule reacts to.
type EscalationCondition string

const (
	EscalationConditionTimeout   EscalationCondition = "timeout"
	EscalationConditionRejection EscalationCondition = "rejection"
	EscalationConditionNoAction  EscalationCondition = "no_action"
	EscalationConditionCustom    EscalationCondition = "custom"
)

// EscalationRule binds a step and a condition to an escalation target.
// Escalation is advisory: it notifies and is recorded on the execution, it
// does not by itself reassign or block the step.
type EscalationRule struct {
	ID               string              `json:"id"`
	StepID           string              `json:"step_id"           validate:"required"`
	Condition        EscalationCondition `json:"condition"         validate:"required,oneof=timeout rejection no_action custom"`
	ThresholdMinutes int                 `json:"threshold_minutes"` // arms the timeout countdown for steps without a time limit
	EscalateTo       string              `json:"escalate_to"       validate:"required"`
	Priority         string              `json:"priority"`
}

// DeadlineKind distinguishes hard deadlines (breach runs the configured
// action) from soft ones (breach only notifies).
type DeadlineKind string

const (
	DeadlineKindHard DeadlineKind = "hard"
	DeadlineKindSoft DeadlineKind = "soft"
)

// DeadlineAction is what the sweep does when a hard deadline is breached.
type DeadlineAction string

const (
	DeadlineActionNotify      DeadlineAction = "notify"
	DeadlineActionEscalate    DeadlineAction = "escalate"
	DeadlineActionAutoApprove DeadlineAction = "auto_approve"
	DeadlineActionCancel      DeadlineAction = "cancel"
)

// WorkflowDeadline is an absolute time bound on a step, distinct from the
// step's relative time limit.
type WorkflowDeadline struct {
	ID               string         `json:"id"`
	StepID           string         `json:"step_id"           validate:"required"`
	Kind             DeadlineKind   `json:"kind"              validate:"required,oneof=hard soft"`
	At               time.Time      `json:"at"                validate:"required"`
	ResponsibleParty string         `json:"responsible_party"`
	Action           DeadlineAction `json:"action"            validate:"required,oneof=notify escalate auto_approve cancel"`
	EscalateTo       string         `json:"escalate_to,omitempty"`
}

// StepTimer is a durable single-shot countdown keyed by (instance, step).
// Arming is a row insert, cancelling a row delete; a deleted timer can never
// fire.
type StepTimer struct {
	InstanceID string              `json:"instance_id" validate:"required"`
	StepID     string              `json:"step_id"     validate:"required"`
	FireAt     time.Time           `json:"fire_at"     validate:"required"`
	Condition  EscalationCondition `json:"condition"`
	CreatedAt  time.Time           `json:"created_at"`
}
