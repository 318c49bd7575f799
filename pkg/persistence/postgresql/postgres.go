// Package postgresql provides PostgreSQL persistence for workflow
// definitions, instances, timers and trigger schedules.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/okrun/caseflow/pkg/persistence"
	"github.com/okrun/caseflow/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL. Complex
// document structures live in JSONB columns; the counters queried or updated
// concurrently (definition metadata, timer due times) are real columns so the
// database can update and index them atomically.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	definitions *DefinitionRepository
	instances   *InstanceRepository
	timers      *TimerRepository
	schedules   *ScheduleRepository
}

// NewPersistence connects, runs migrations and returns a ready backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		definitions: &DefinitionRepository{db: database},
		instances:   &InstanceRepository{db: database},
		timers:      &TimerRepository{db: database},
		schedules:   &ScheduleRepository{db: database},
	}, nil
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

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db == nil {
		return nil
	}

	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
