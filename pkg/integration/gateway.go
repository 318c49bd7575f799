// Package integration provides the gateway to external line-of-business
// systems invoked by system_action steps.
package integration

import (
	"context"
	"errors"
)

// ErrUnknownService indicates no endpoint is configured for the requested
// service name.
var ErrUnknownService = errors.New("unknown integration service")

// ErrCallFailed indicates the external system returned a failure. The engine
// treats this as a step failure eligible for retry and escalation, never as
// a fatal crash.
var ErrCallFailed = errors.New("integration call failed")

// Gateway invokes an operation on an external system and returns its
// response data.
type Gateway interface {
	Call(ctx context.Context, service, operation string, parameters map[string]any) (map[string]any, error)
}
