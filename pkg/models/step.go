package models

import "strings"

// StepType classifies how a step advances: manual steps wait for an external
// completion call, automatic steps complete themselves.
type StepType string

const (
	StepTypeApproval     StepType = "approval"
	StepTypeReview       StepType = "review"
	StepTypeDataEntry    StepType = "data_entry"
	StepTypeSystemAction StepType = "system_action"
	StepTypeParallel     StepType = "parallel"
	StepTypeDecision     StepType = "decision"
	StepTypeTimer        StepType = "timer"
)

// IsAutomatic reports whether a step of this type self-completes without an
// external completion call.
func (t StepType) IsAutomatic() bool {
	switch t {
	case StepTypeSystemAction, StepTypeParallel, StepTypeTimer:
		return true
	default:
		return false
	}
}

// AssigneeType describes how an assignee value resolves to a concrete actor.
type AssigneeType string

const (
	AssigneeTypeUser         AssigneeType = "user"
	AssigneeTypeRole         AssigneeType = "role"
	AssigneeTypeDepartment   AssigneeType = "department"
	AssigneeTypeSystem       AssigneeType = "system"
	AssigneeTypeRoundRobin   AssigneeType = "round_robin"
	AssigneeTypeLoadBalanced AssigneeType = "load_balanced"
)

// WorkflowAssignee is the polymorphic target of a step. For round_robin and
// load_balanced the Value carries a comma separated candidate list.
type WorkflowAssignee struct {
	Type  AssigneeType `json:"type"  validate:"required,oneof=user role department system round_robin load_balanced"`
	Value string       `json:"value" validate:"required"`
}

// Candidates splits the assignee value into its candidate list.
func (a WorkflowAssignee) Candidates() []string {
	parts := strings.Split(a.Value, ",")
	candidates := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			candidates = append(candidates, trimmed)
		}
	}

	return candidates
}

// WorkflowStep is a node in the definition's dependency graph.
type WorkflowStep struct {
	ID             string           `json:"id"              validate:"required"`
	Name           string           `json:"name"            validate:"required"`
	Type           StepType         `json:"type"            validate:"required,oneof=approval review data_entry system_action parallel decision timer"`
	Assignee       WorkflowAssignee `json:"assignee"`
	Dependencies   []string         `json:"dependencies"`
	ParallelSteps  []string         `json:"parallel_steps,omitempty"`
	Actions        []WorkflowAction `json:"actions,omitempty"`
	TimeLimit      int              `json:"time_limit"` // minutes; <=0 disables the timer
	AutoAdvance    bool             `json:"auto_advance"`
	RequiredFields []string         `json:"required_fields,omitempty"`
	OptionalFields []string         `json:"optional_fields,omitempty"`
}

// ActionByName returns the action the step accepts under the given name.
func (s *WorkflowStep) ActionByName(name ActionType) (WorkflowAction, bool) {
	for _, action := range s.Actions {
		if action.Name == name {
			return action, true
		}
	}

	return WorkflowAction{}, false
}

// AcceptsAction reports whether the step declares the named action. Steps
// with an empty action list accept any action; system generated actions are
// always accepted.
func (s *WorkflowStep) AcceptsAction(name ActionType) bool {
	if len(s.Actions) == 0 || name.SystemGenerated() {
		return true
	}

	_, ok := s.ActionByName(name)

	return ok
}

// ActionType names a transition a step accepts.
type ActionType string

const (
	ActionApprove     ActionType = "approve"
	ActionReject      ActionType = "reject"
	ActionRequestInfo ActionType = "request_info"
	ActionForward     ActionType = "forward"
	ActionEscalate    ActionType = "escalate"
	ActionNotify      ActionType = "notify"
	ActionIntegrate   ActionType = "integrate"
	ActionCalculate   ActionType = "calculate"

	// Actions produced by the engine itself rather than a caller.
	ActionSystemComplete ActionType = "system_complete"
	ActionTimerExpired   ActionType = "timer_expired"
	ActionAutoApprove    ActionType = "auto_approve"
)

// SystemGenerated reports whether the action is produced by the engine
// rather than an external caller.
func (a ActionType) SystemGenerated() bool {
	switch a {
	case ActionSystemComplete, ActionTimerExpired, ActionAutoApprove:
		return true
	default:
		return false
	}
}

// WorkflowAction is a named transition with optional parameters, branch
// conditions and an explicit next-step override.
type WorkflowAction struct {
	Name       ActionType          `json:"name"                 validate:"required"`
	Parameters map[string]any      `json:"parameters,omitempty"`
	Conditions []WorkflowCondition `json:"conditions,omitempty"`
	NextStep   *string             `json:"next_step,omitempty"`
}
