package models

import "errors"

// Definition validation errors. A definition failing validation is rejected
// wholesale at registration, nothing is stored.
var (
	ErrNoSteps              = errors.New("definition has no steps")
	ErrInvalidStepID        = errors.New("step id is empty")
	ErrDuplicateStepID      = errors.New("duplicate step id")
	ErrUnknownStepReference = errors.New("unknown step reference")
	ErrCyclicDependency     = errors.New("cyclic step dependency")
	ErrNoEntryStep          = errors.New("definition has no entry step")
	ErrInvalidTrigger       = errors.New("invalid trigger configuration")
	ErrInvalidCondition     = errors.New("invalid condition")
)
