// Package memory provides in-memory persistence for tests and development.
package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okrun/caseflow/pkg/persistence"
)

// Persistence implements persistence.Persistence with in-process maps. Every
// repository guards its map with its own mutex, and values are deep-copied on
// the way in and out so callers never share memory with the store.
type Persistence struct {
	definitions *DefinitionRepository
	instances   *InstanceRepository
	timers      *TimerRepository
	schedules   *ScheduleRepository
}

// NewPersistence creates an empty in-memory persistence backend.
func NewPersistence() *Persistence {
	return &Persistence{
		definitions: NewDefinitionRepository(),
		instances:   NewInstanceRepository(),
		timers:      NewTimerRepository(),
		schedules:   NewScheduleRepository(),
	}
}

func (p *Persistence) Definitions() persistence.DefinitionRepository {
	return p.definitions
}

func (p *Persistence) Instances() persistence.InstanceRepository {
	return p.instances
}

func (p *Persistence) Timers() persistence.TimerRepository {
	return p.timers
}

func (p *Persistence) Schedules() persistence.ScheduleRepository {
	return p.schedules
}

// HealthCheck always succeeds for the in-memory backend.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory backend.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// clone deep-copies a value through its JSON representation.
func clone[T any](value *T) (*T, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("clone marshal: %w", err)
	}

	copied := new(T)
	if err := json.Unmarshal(payload, copied); err != nil {
		return nil, fmt.Errorf("clone unmarshal: %w", err)
	}

	return copied, nil
}
