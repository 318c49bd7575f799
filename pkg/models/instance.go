package models

import (
	"slices"
	"time"
)

// InstanceStatus is the lifecycle state of a workflow instance. Transitions
// are monotonic: an instance never returns to pending, and completed,
// cancelled and expired are terminal.
type InstanceStatus string

const (
	InstanceStatusPending    InstanceStatus = "pending"
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusCancelled  InstanceStatus = "cancelled"
	InstanceStatusEscalated  InstanceStatus = "escalated"
	InstanceStatusExpired    InstanceStatus = "expired"
)

// Terminal reports whether no further transition is allowed from the status.
func (s InstanceStatus) Terminal() bool {
	switch s {
	case InstanceStatusCompleted, InstanceStatusCancelled, InstanceStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving to next preserves monotonicity.
func (s InstanceStatus) CanTransition(next InstanceStatus) bool {
	if s == next {
		return false
	}

	switch s {
	case InstanceStatusPending:
		return next == InstanceStatusInProgress || next == InstanceStatusCancelled
	case InstanceStatusInProgress:
		return next != InstanceStatusPending
	case InstanceStatusEscalated:
		return next != InstanceStatusPending && next != InstanceStatusInProgress
	default:
		return false
	}
}

// ExecutionStatus is the state of one step execution.
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusInProgress ExecutionStatus = "in_progress"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusRejected   ExecutionStatus = "rejected"
	ExecutionStatusEscalated  ExecutionStatus = "escalated"
	ExecutionStatusSkipped    ExecutionStatus = "skipped"
)

// WorkflowStepExecution is one row in an instance's append-only step history.
type WorkflowStepExecution struct {
	ID          string          `json:"id"`
	StepID      string          `json:"step_id"`
	Assignee    string          `json:"assignee"`
	Status      ExecutionStatus `json:"status"`
	Action      ActionType      `json:"action,omitempty"`
	Outcome     string          `json:"outcome,omitempty"`
	CompletedBy string          `json:"completed_by,omitempty"`
	Comments    string          `json:"comments,omitempty"`
	NextStep    string          `json:"next_step,omitempty"`
	Escalated   bool            `json:"escalated"`
	EscalatedTo string          `json:"escalated_to,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// InstanceMetadata links an instance to the surrounding line of business.
type InstanceMetadata struct {
	ApplicationID       string     `json:"application_id,omitempty"`
	Department          string     `json:"department,omitempty"`
	Tags                []string   `json:"tags,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// Comment is a free-form note on an instance.
type Comment struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	AuthorRole string    `json:"author_role"`
	Content    string    `json:"content"`
	Internal   bool      `json:"internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// Attachment references a document attached to an instance.
type Attachment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// WorkflowInstance is one running or finished execution of a definition.
// Instances are retained for audit and never physically deleted.
type WorkflowInstance struct {
	ID                string                  `json:"id"`
	WorkflowID        string                  `json:"workflow_id"`
	Initiator         string                  `json:"initiator"`
	Status            InstanceStatus          `json:"status"`
	CurrentSteps      []string                `json:"current_steps"`
	StepHistory       []WorkflowStepExecution `json:"step_history"`
	Data              map[string]any          `json:"data"`
	Metadata          InstanceMetadata        `json:"metadata"`
	AssignedTo        string                  `json:"assigned_to,omitempty"`
	BreachedDeadlines []string                `json:"breached_deadlines,omitempty"`
	Comments          []Comment               `json:"comments,omitempty"`
	Attachments       []Attachment            `json:"attachments,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
	ActualCompletion  *time.Time              `json:"actual_completion,omitempty"`
}

// LatestExecution returns the most recent history entry for a step, or nil.
// History is append-only, so the last match is the current one.
func (i *WorkflowInstance) LatestExecution(stepID string) *WorkflowStepExecution {
	for idx := len(i.StepHistory) - 1; idx >= 0; idx-- {
		if i.StepHistory[idx].StepID == stepID {
			return &i.StepHistory[idx]
		}
	}

	return nil
}

// StepCompleted reports whether the step has at least one completed execution.
// Rejected and skipped executions do not satisfy a dependency.
func (i *WorkflowInstance) StepCompleted(stepID string) bool {
	for idx := range i.StepHistory {
		if i.StepHistory[idx].StepID == stepID && i.StepHistory[idx].Status == ExecutionStatusCompleted {
			return true
		}
	}

	return false
}

// StepEntered reports whether the step appears anywhere in the history.
func (i *WorkflowInstance) StepEntered(stepID string) bool {
	for idx := range i.StepHistory {
		if i.StepHistory[idx].StepID == stepID {
			return true
		}
	}

	return false
}

// MergeData folds step output into the instance data bag. Later writes win on
// key collision; this is a shallow last-writer-wins merge, not a deep one.
func (i *WorkflowInstance) MergeData(data map[string]any) {
	if len(data) == 0 {
		return
	}

	if i.Data == nil {
		i.Data = make(map[string]any, len(data))
	}

	for key, value := range data {
		i.Data[key] = value
	}
}

// DeadlineHandled reports whether a breach of the deadline was already acted
// on, so the periodic sweep does not re-fire the same breach.
func (i *WorkflowInstance) DeadlineHandled(deadlineID string) bool {
	return slices.Contains(i.BreachedDeadlines, deadlineID)
}

// MarkDeadlineHandled records a deadline breach as acted on.
func (i *WorkflowInstance) MarkDeadlineHandled(deadlineID string) {
	if !i.DeadlineHandled(deadlineID) {
		i.BreachedDeadlines = append(i.BreachedDeadlines, deadlineID)
	}
}

// AddCurrentStep records a step as active, keeping the set free of duplicates.
func (i *WorkflowInstance) AddCurrentStep(stepID string) {
	if !slices.Contains(i.CurrentSteps, stepID) {
		i.CurrentSteps = append(i.CurrentSteps, stepID)
	}
}

// RemoveCurrentStep drops a step from the active set.
func (i *WorkflowInstance) RemoveCurrentStep(stepID string) {
	i.CurrentSteps = slices.DeleteFunc(i.CurrentSteps, func(id string) bool {
		return id == stepID
	})
}
