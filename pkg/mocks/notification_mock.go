package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/okrun/caseflow/pkg/notification"
)

// MockDispatcher is a mock implementation of notification.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Enqueue(ctx context.Context, request notification.Request) error {
	args := m.Called(ctx, request)

	return args.Error(0)
}

func (m *MockDispatcher) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
