// Package notification provides the engine's outbound contract with the
// external notification delivery service. The engine only enqueues requests;
// delivery, batching and channel selection happen downstream.
package notification

import (
	"context"
	"time"
)

// Request describes one notification the engine wants delivered.
type Request struct {
	ID         string         `json:"id"`
	Trigger    string         `json:"trigger"`
	Recipients []string       `json:"recipients"`
	Template   string         `json:"template"`
	Channels   []string       `json:"channels"`
	Timing     string         `json:"timing"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Common triggers the engine enqueues notifications for.
const (
	TriggerStepAssigned   = "step_assigned"
	TriggerStepEscalated  = "step_escalated"
	TriggerDeadlineBreach = "deadline_breach"
	TriggerInstanceClosed = "instance_closed"
)

// Dispatcher enqueues notification requests for the external delivery
// service. Implementations must not block on delivery.
type Dispatcher interface {
	Enqueue(ctx context.Context, request Request) error
	Close(ctx context.Context) error
}
