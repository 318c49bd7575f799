package cmd

import (
	"fmt"
	"log/slog"

	"github.com/okrun/caseflow/pkg/notification"
)

// NewDispatcher builds the notification dispatcher. With a redis URL the
// engine enqueues onto the delivery service's stream; without one requests
// are only logged.
func NewDispatcher(redisURL string, logger *slog.Logger) notification.Dispatcher {
	if redisURL == "" {
		logger.Warn("No redis URL configured, notifications are logged only")

		return notification.NewLogDispatcher(logger)
	}

	dispatcher, err := notification.NewRedisDispatcher(redisURL, logger)
	if err != nil {
		panic(fmt.Errorf("failed to create redis notification dispatcher: %w", err))
	}

	return dispatcher
}
