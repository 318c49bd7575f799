package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/persistence"
)

// InstanceRepository stores workflow instances as JSONB documents keyed by
// id, with the status denormalized into a column for the scheduler's sweep
// queries.
type InstanceRepository struct {
	db *sql.DB
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	document, err := json.Marshal(instance)
	if err != nil {
		return persistence.NewStoreError("Save", instance.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_instances (id, workflow_id, status, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			document = EXCLUDED.document,
			updated_at = NOW()
	`, instance.ID, instance.WorkflowID, string(instance.Status), document, instance.CreatedAt)
	if err != nil {
		return persistence.NewStoreError("Save", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	var document []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT document FROM workflow_instances WHERE id = $1
	`, id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	return unmarshalInstance(document)
}

func (r *InstanceRepository) List(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return r.query(ctx, `SELECT document FROM workflow_instances ORDER BY created_at`)
}

func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	return r.query(ctx, `
		SELECT document FROM workflow_instances
		WHERE status = $1
		ORDER BY created_at
	`, string(status))
}

func (r *InstanceRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}
	defer rows.Close()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, persistence.NewStoreError("List", "", err)
		}

		instance, err := unmarshalInstance(document)
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	return instances, nil
}

func unmarshalInstance(document []byte) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance
	if err := json.Unmarshal(document, &instance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance document: %w", err)
	}

	return &instance, nil
}
