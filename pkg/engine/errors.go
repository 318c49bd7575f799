package engine

import "errors"

var (
	// ErrWorkflowInactive indicates an instance start against a definition
	// that is registered but switched off.
	ErrWorkflowInactive = errors.New("workflow definition is inactive")

	// ErrStepNotFound indicates the step id does not exist in the
	// instance's definition.
	ErrStepNotFound = errors.New("step not found in workflow definition")

	// ErrStepNotActive indicates a completion call for a step that has no
	// in-progress execution on the instance.
	ErrStepNotActive = errors.New("step is not active")

	// ErrStepAlreadyCompleted is returned to the loser of a duplicate
	// completion race. The first completion stands.
	ErrStepAlreadyCompleted = errors.New("step already completed")

	// ErrActionNotAllowed indicates the step does not declare the
	// requested action.
	ErrActionNotAllowed = errors.New("action not allowed for step")

	// ErrMissingRequiredFields indicates the completion omitted data the
	// step declares as required.
	ErrMissingRequiredFields = errors.New("missing required fields")

	// ErrInstanceTerminal indicates a mutation on an instance already in a
	// terminal state.
	ErrInstanceTerminal = errors.New("instance is in a terminal state")
)

func IsStepNotActive(err error) bool {
	return errors.Is(err, ErrStepNotActive)
}

func IsStepAlreadyCompleted(err error) bool {
	return errors.Is(err, ErrStepAlreadyCompleted)
}

func IsActionNotAllowed(err error) bool {
	return errors.Is(err, ErrActionNotAllowed)
}
