package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/persistence"
)

// DefinitionRepository stores workflow definitions as JSONB documents with
// the metadata counters as columns, so counter updates are single atomic
// UPDATE statements.
type DefinitionRepository struct {
	db *sql.DB
}

func (r *DefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	document, err := json.Marshal(def)
	if err != nil {
		return persistence.NewStoreError("Save", def.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_definitions (id, document, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
	`, def.ID, document)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return persistence.NewStoreError("Save", def.ID, persistence.ErrDefinitionAlreadyExists)
		}

		return persistence.NewStoreError("Save", def.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT document, usage_count, completed_count, failed_count, created_at, updated_at
		FROM workflow_definitions
		WHERE id = $1
	`, id)

	def, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", id, err)
	}

	return def, nil
}

func (r *DefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT document, usage_count, completed_count, failed_count, created_at, updated_at
		FROM workflow_definitions
		ORDER BY created_at
	`)
	if err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}
	defer rows.Close()

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, persistence.NewStoreError("List", "", err)
		}

		definitions = append(definitions, def)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "", err)
	}

	return definitions, nil
}

func (r *DefinitionRepository) IncrementUsage(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_definitions
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return persistence.NewStoreError("IncrementUsage", id, err)
	}

	return requireRow(result, "IncrementUsage", id)
}

func (r *DefinitionRepository) RecordCompletion(ctx context.Context, id string, success bool) error {
	column := "failed_count"
	if success {
		column = "completed_count"
	}

	result, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE workflow_definitions
		SET %s = %s + 1, updated_at = NOW()
		WHERE id = $1
	`, column, column), id)
	if err != nil {
		return persistence.NewStoreError("RecordCompletion", id, err)
	}

	return requireRow(result, "RecordCompletion", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		document                                []byte
		usageCount, completedCount, failedCount int64
		createdAt, updatedAt                    time.Time
	)

	if err := row.Scan(&document, &usageCount, &completedCount, &failedCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(document, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition document: %w", err)
	}

	// counter columns are authoritative over the stored document
	def.Metadata.UsageCount = usageCount
	def.Metadata.CompletedCount = completedCount
	def.Metadata.FailedCount = failedCount

	if total := completedCount + failedCount; total > 0 {
		def.Metadata.SuccessRate = float64(completedCount) / float64(total)
	}

	def.CreatedAt = createdAt
	def.UpdatedAt = updatedAt

	return &def, nil
}

func requireRow(result sql.Result, op, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError(op, id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError(op, id, persistence.ErrDefinitionNotFound)
	}

	return nil
}
