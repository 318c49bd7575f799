package memory

import (
	"context"
	"sync"
	"time"

	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/persistence"
)

// InstanceRepository stores workflow instances in memory.
type InstanceRepository struct {
	mu        sync.RWMutex
	instances map[string]*models.WorkflowInstance
}

func NewInstanceRepository() *InstanceRepository {
	return &InstanceRepository{
		instances: make(map[string]*models.WorkflowInstance),
	}
}

func (r *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	stored, err := clone(instance)
	if err != nil {
		return persistence.NewStoreError("Save", instance.ID, err)
	}

	stored.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.instances[instance.ID] = stored

	return nil
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, exists := r.instances[id]
	if !exists {
		return nil, persistence.NewStoreError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	return clone(instance)
}

func (r *InstanceRepository) List(_ context.Context) ([]*models.WorkflowInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]*models.WorkflowInstance, 0, len(r.instances))

	for _, instance := range r.instances {
		copied, err := clone(instance)
		if err != nil {
			return nil, persistence.NewStoreError("List", instance.ID, err)
		}

		instances = append(instances, copied)
	}

	return instances, nil
}

func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowInstance, 0, len(all))

	for _, instance := range all {
		if instance.Status == status {
			filtered = append(filtered, instance)
		}
	}

	return filtered, nil
}
