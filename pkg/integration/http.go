package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultCallTimeout = 30 * time.Second

// HTTPGateway calls external systems over HTTP. Each service name maps to a
// base URL; operations POST to {base}/{operation} with the parameters as a
// JSON body.
type HTTPGateway struct {
	endpoints map[string]string
	client    *http.Client
	logger    *slog.Logger
}

func NewHTTPGateway(endpoints map[string]string, logger *slog.Logger) *HTTPGateway {
	return &HTTPGateway{
		endpoints: endpoints,
		client:    &http.Client{Timeout: defaultCallTimeout},
		logger:    logger,
	}
}

func (g *HTTPGateway) Call(ctx context.Context, service, operation string, parameters map[string]any) (map[string]any, error) {
	base, exists := g.endpoints[service]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	body, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal call parameters: %w", err)
	}

	url := base + "/" + operation

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")

	g.logger.DebugContext(ctx, "Calling integration service",
		"service", service,
		"operation", operation)

	response, err := g.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrCallFailed, service, operation, err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s.%s returned status %d", ErrCallFailed, service, operation, response.StatusCode)
	}

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	result := make(map[string]any)

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return result, nil
}
