package models

import (
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerType classifies how an instance gets started.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeEvent    TriggerType = "event"
)

// WorkflowTrigger declares a way a definition's instances are started.
// Schedule triggers carry a cron expression; the scheduler materializes them
// into TriggerSchedule rows at registration time.
type WorkflowTrigger struct {
	ID             string         `json:"id"              validate:"required"`
	Type           TriggerType    `json:"type"            validate:"required,oneof=manual schedule event"`
	CronExpression string         `json:"cron_expression,omitempty"`
	EventType      string         `json:"event_type,omitempty"`
	InitialData    map[string]any `json:"initial_data,omitempty"`
}

// Validate checks trigger configuration, including the cron expression of
// schedule triggers.
func (t *WorkflowTrigger) Validate() error {
	if t.Type != TriggerTypeSchedule {
		return nil
	}

	if t.CronExpression == "" {
		return ErrInvalidTrigger
	}

	_, err := cronParser().Parse(t.CronExpression)

	return err
}

// TriggerSchedule is a durable schedule row with a precomputed next due time,
// so the scheduler can select due rows without evaluating every cron
// expression on each tick.
type TriggerSchedule struct {
	ID             string    `json:"id"              validate:"required"`
	WorkflowID     string    `json:"workflow_id"     validate:"required"`
	TriggerID      string    `json:"trigger_id"      validate:"required"`
	CronExpression string    `json:"cron_expression" validate:"required"`
	NextDueAt      time.Time `json:"next_due_at"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewTriggerSchedule creates a schedule row with its first due time computed.
func NewTriggerSchedule(id, workflowID, triggerID, cronExpression string) (*TriggerSchedule, error) {
	now := time.Now().UTC()
	schedule := &TriggerSchedule{
		ID:             id,
		WorkflowID:     workflowID,
		TriggerID:      triggerID,
		CronExpression: cronExpression,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := schedule.advance(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// IsDue reports whether the schedule should fire at the given time.
func (s *TriggerSchedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// UpdateNextDueAt recomputes the next due time from now.
func (s *TriggerSchedule) UpdateNextDueAt() error {
	return s.advance(time.Now().UTC())
}

func (s *TriggerSchedule) advance(reference time.Time) error {
	parsed, err := cronParser().Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = parsed.Next(reference)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// cronParser returns the standard 5-field cron parser.
func cronParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}
