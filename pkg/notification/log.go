package notification

import (
	"context"
	"log/slog"
)

// LogDispatcher writes notification requests to the log instead of a queue.
// Used in development and tests.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Enqueue(ctx context.Context, request Request) error {
	d.logger.InfoContext(ctx, "Notification requested",
		"trigger", request.Trigger,
		"recipients", request.Recipients,
		"template", request.Template,
		"channels", request.Channels)

	return nil
}

func (d *LogDispatcher) Close(_ context.Context) error {
	return nil
}
