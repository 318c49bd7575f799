package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of integration.Gateway interface.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Call(ctx context.Context, service, operation string, parameters map[string]any) (map[string]any, error) {
	args := m.Called(ctx, service, operation, parameters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}
