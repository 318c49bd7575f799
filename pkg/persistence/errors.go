// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates no definition exists for the given id.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrDefinitionAlreadyExists indicates a definition with the same id is
	// already registered. Definitions are immutable and cannot be replaced.
	ErrDefinitionAlreadyExists = errors.New("workflow definition already exists")

	// ErrInstanceNotFound indicates no instance exists for the given id.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrScheduleNotFound indicates no trigger schedule exists for the given id.
	ErrScheduleNotFound = errors.New("trigger schedule not found")
)

// StoreError wraps persistence errors with operation context.
type StoreError struct {
	Op  string // Operation being performed (e.g., "Save", "GetByID")
	ID  string // Entity id if applicable
	Err error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a persistence error with context.
func NewStoreError(op, id string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Err: err}
}

// IsDefinitionNotFound checks if an error indicates a missing definition.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsInstanceNotFound checks if an error indicates a missing instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsDefinitionAlreadyExists checks if an error indicates a duplicate registration.
func IsDefinitionAlreadyExists(err error) bool {
	return errors.Is(err, ErrDefinitionAlreadyExists)
}
