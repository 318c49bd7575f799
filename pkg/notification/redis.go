package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Stream is the redis stream the delivery service consumes from.
const Stream = "caseflow:notifications"

// maxStreamLength caps the stream so an absent consumer cannot grow it
// unboundedly; XAddArgs trims approximately.
const maxStreamLength = 100_000

// RedisDispatcher enqueues notification requests onto a redis stream.
type RedisDispatcher struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisDispatcher(redisURL string, logger *slog.Logger) (*RedisDispatcher, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return &RedisDispatcher{
		client: redis.NewClient(options),
		logger: logger,
	}, nil
}

func (d *RedisDispatcher) Enqueue(ctx context.Context, request Request) error {
	if request.ID == "" {
		request.ID = uuid.New().String()
	}

	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal notification request: %w", err)
	}

	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream,
		MaxLen: maxStreamLength,
		Approx: true,
		Values: map[string]any{
			"id":      request.ID,
			"trigger": request.Trigger,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	d.logger.DebugContext(ctx, "Notification enqueued",
		"notification_id", request.ID,
		"trigger", request.Trigger,
		"recipients", len(request.Recipients))

	return nil
}

func (d *RedisDispatcher) Close(_ context.Context) error {
	return d.client.Close()
}
