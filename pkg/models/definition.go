// Package models defines the core domain models for approval workflow orchestration.
package models

import (
	"fmt"
	"time"
)

// WorkflowDefinition is the immutable template an instance executes against.
// It is validated once at registration and read-only afterwards, except for
// the metadata counters updated on instance start and completion.
type WorkflowDefinition struct {
	ID                string              `json:"id"                 validate:"required"`
	Name              string              `json:"name"               validate:"required,min=3"`
	Version           int                 `json:"version"`
	Category          string              `json:"category"`
	Active            bool                `json:"active"`
	Steps             []*WorkflowStep     `json:"steps"              validate:"required,min=1"`
	Triggers          []*WorkflowTrigger  `json:"triggers,omitempty"`
	EscalationRules   []*EscalationRule   `json:"escalation_rules,omitempty"`
	Deadlines         []*WorkflowDeadline `json:"deadlines,omitempty"`
	NotificationRules []*NotificationRule `json:"notification_rules,omitempty"`
	Metadata          DefinitionMetadata  `json:"metadata"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// DefinitionMetadata carries the rolling usage counters for a definition.
// UsageCount and the completion counters are updated with the definition
// store's atomic increment operations, never written directly.
type DefinitionMetadata struct {
	UsageCount     int64   `json:"usage_count"`
	CompletedCount int64   `json:"completed_count"`
	FailedCount    int64   `json:"failed_count"`
	SuccessRate    float64 `json:"success_rate"`
}

// NotificationRule binds a workflow event to a notification template.
type NotificationRule struct {
	ID         string   `json:"id"`
	Trigger    string   `json:"trigger"    validate:"required"`
	Recipients []string `json:"recipients"`
	Template   string   `json:"template"   validate:"required"`
	Channels   []string `json:"channels"`
	Timing     string   `json:"timing"`
}

// StepByID returns the step with the given id, or nil.
func (d *WorkflowDefinition) StepByID(stepID string) *WorkflowStep {
	for _, step := range d.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

// EntrySteps returns every step with no dependencies. A valid definition has
// at least one.
func (d *WorkflowDefinition) EntrySteps() []*WorkflowStep {
	entries := make([]*WorkflowStep, 0, 1)

	for _, step := range d.Steps {
		if len(step.Dependencies) == 0 {
			entries = append(entries, step)
		}
	}

	return entries
}

// EscalationRuleFor returns the first rule matching (stepID, condition), or nil.
func (d *WorkflowDefinition) EscalationRuleFor(stepID string, condition EscalationCondition) *EscalationRule {
	for _, rule := range d.EscalationRules {
		if rule.StepID == stepID && rule.Condition == condition {
			return rule
		}
	}

	return nil
}

// DeadlinesFor returns all deadlines configured for a step.
func (d *WorkflowDefinition) DeadlinesFor(stepID string) []*WorkflowDeadline {
	deadlines := make([]*WorkflowDeadline, 0)

	for _, deadline := range d.Deadlines {
		if deadline.StepID == stepID {
			deadlines = append(deadlines, deadline)
		}
	}

	return deadlines
}

// Validate checks the structural invariants of a definition: step ids are
// unique, every dependency and parallel reference points at an existing step,
// the dependency graph is acyclic, and at least one entry step exists.
// A definition failing any check is rejected wholesale.
func (d *WorkflowDefinition) Validate() error {
	if len(d.Steps) == 0 {
		return ErrNoSteps
	}

	stepIndex := make(map[string]*WorkflowStep, len(d.Steps))

	for _, step := range d.Steps {
		if step.ID == "" {
			return fmt.Errorf("%w: step %q", ErrInvalidStepID, step.Name)
		}

		if _, exists := stepIndex[step.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateStepID, step.ID)
		}

		stepIndex[step.ID] = step
	}

	for _, step := range d.Steps {
		for _, dep := range step.Dependencies {
			if _, exists := stepIndex[dep]; !exists {
				return fmt.Errorf("%w: step %s depends on unknown step %s", ErrUnknownStepReference, step.ID, dep)
			}
		}

		for _, child := range step.ParallelSteps {
			if _, exists := stepIndex[child]; !exists {
				return fmt.Errorf("%w: step %s fans out to unknown step %s", ErrUnknownStepReference, step.ID, child)
			}
		}
	}

	if err := d.detectCycles(stepIndex); err != nil {
		return err
	}

	if len(d.EntrySteps()) == 0 {
		return ErrNoEntryStep
	}

	for _, trigger := range d.Triggers {
		if err := trigger.Validate(); err != nil {
			return fmt.Errorf("trigger %s: %w", trigger.ID, err)
		}
	}

	return nil
}

// detectCycles walks the dependency graph depth-first. A step revisited while
// still on the recursion stack closes a cycle.
func (d *WorkflowDefinition) detectCycles(stepIndex map[string]*WorkflowStep) error {
	visited := make(map[string]bool, len(d.Steps))
	onStack := make(map[string]bool, len(d.Steps))

	var visit func(stepID string) error

	visit = func(stepID string) error {
		visited[stepID] = true
		onStack[stepID] = true

		for _, dep := range stepIndex[stepID].Dependencies {
			if onStack[dep] {
				return fmt.Errorf("%w: %s -> %s", ErrCyclicDependency, stepID, dep)
			}

			if !visited[dep] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		onStack[stepID] = false

		return nil
	}

	for _, step := range d.Steps {
		if !visited[step.ID] {
			if err := visit(step.ID); err != nil {
				return err
			}
		}
	}

	return nil
}
