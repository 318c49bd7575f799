// Package cmd provides shared wiring helpers for the caseflow binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/okrun/caseflow/pkg/persistence"
	"github.com/okrun/caseflow/pkg/persistence/memory"
	"github.com/okrun/caseflow/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme.
// "memory://" keeps everything in-process for development; postgres URLs get
// the durable backend with migrations applied.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case databaseURL == "" || strings.HasPrefix(databaseURL, "memory://"):
		logger.WarnContext(ctx, "Using in-memory persistence, state is lost on restart")

		return memory.NewPersistence()
	case strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgres persistence: %w", err))
		}

		return store
	default:
		panic("unsupported database URL: " + databaseURL)
	}
}
