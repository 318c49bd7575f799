package memory

import (
	"context"
	"sync"
	"time"

	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/persistence"
)

// DefinitionRepository stores workflow definitions in memory. Reads are
// unsynchronized against each other; the metadata counters mutate only under
// the repository lock.
type DefinitionRepository struct {
	mu          sync.RWMutex
	definitions map[string]*models.WorkflowDefinition
}

func NewDefinitionRepository() *DefinitionRepository {
	return &DefinitionRepository{
		definitions: make(map[string]*models.WorkflowDefinition),
	}
}

func (r *DefinitionRepository) Save(_ context.Context, def *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.ID]; exists {
		return persistence.NewStoreError("Save", def.ID, persistence.ErrDefinitionAlreadyExists)
	}

	stored, err := clone(def)
	if err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.definitions[def.ID] = stored

	return nil
}

func (r *DefinitionRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.definitions[id]
	if !exists {
		return nil, persistence.NewStoreError("GetByID", id, persistence.ErrDefinitionNotFound)
	}

	return clone(def)
}

func (r *DefinitionRepository) List(_ context.Context) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definitions := make([]*models.WorkflowDefinition, 0, len(r.definitions))

	for _, def := range r.definitions {
		copied, err := clone(def)
		if err != nil {
			return nil, persistence.NewStoreError("List", def.ID, err)
		}

		definitions = append(definitions, copied)
	}

	return definitions, nil
}

func (r *DefinitionRepository) IncrementUsage(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, exists := r.definitions[id]
	if !exists {
		return persistence.NewStoreError("IncrementUsage", id, persistence.ErrDefinitionNotFound)
	}

	def.Metadata.UsageCount++
	def.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *DefinitionRepository) RecordCompletion(_ context.Context, id string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, exists := r.definitions[id]
	if !exists {
		return persistence.NewStoreError("RecordCompletion", id, persistence.ErrDefinitionNotFound)
	}

	if success {
		def.Metadata.CompletedCount++
	} else {
		def.Metadata.FailedCount++
	}

	total := def.Metadata.CompletedCount + def.Metadata.FailedCount
	if total > 0 {
		def.Metadata.SuccessRate = float64(def.Metadata.CompletedCount) / float64(total)
	}

	def.UpdatedAt = time.Now().UTC()

	return nil
}
