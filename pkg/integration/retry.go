package integration

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 2 * time.Second
)

// RetryingGateway wraps a Gateway with bounded exponential backoff. Unknown
// services are not retried; transient call failures are retried up to the
// attempt limit before the error is surfaced for escalation.
type RetryingGateway struct {
	inner           Gateway
	maxAttempts     uint64
	initialInterval time.Duration
	logger          *slog.Logger
}

func NewRetryingGateway(inner Gateway, logger *slog.Logger) *RetryingGateway {
	return &RetryingGateway{
		inner:           inner,
		maxAttempts:     defaultMaxAttempts,
		initialInterval: defaultInitialInterval,
		logger:          logger,
	}
}

// WithAttempts overrides the retry budget; tests use a short interval.
func (g *RetryingGateway) WithAttempts(maxAttempts uint64, initialInterval time.Duration) *RetryingGateway {
	g.maxAttempts = maxAttempts
	g.initialInterval = initialInterval

	return g
}

func (g *RetryingGateway) Call(ctx context.Context, service, operation string, parameters map[string]any) (map[string]any, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.initialInterval

	var attempt int

	operationFn := func() (map[string]any, error) {
		attempt++

		result, err := g.inner.Call(ctx, service, operation, parameters)
		if err != nil {
			if errors.Is(err, ErrUnknownService) {
				return nil, backoff.Permanent(err)
			}

			g.logger.WarnContext(ctx, "Integration call failed, retrying",
				"service", service,
				"operation", operation,
				"attempt", attempt,
				"error", err)

			return nil, err
		}

		return result, nil
	}

	return backoff.RetryWithData(
		operationFn,
		backoff.WithContext(backoff.WithMaxRetries(policy, g.maxAttempts-1), ctx),
	)
}
