package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/imagehub/internal/boundaries/out"
)

// MockDaemonClient is a mock implementation of out.DaemonClient.
type MockDaemonClient struct {
	mock.Mock
}

func (m *MockDaemonClient) TagImage(ctx context.Context, sourceRef, targetRef string) error {
	args := m.Called(ctx, sourceRef, targetRef)
	return args.Error(0)
}

func (m *MockDaemonClient) PushImage(ctx context.Context, imageRef string) error {
	args := m.Called(ctx, imageRef)
	return args.Error(0)
}

func (m *MockDaemonClient) PullImage(ctx context.Context, imageRef string) error {
	args := m.Called(ctx, imageRef)
	return args.Error(0)
}

func (m *MockDaemonClient) RemoveImage(ctx context.Context, imageRef string) error {
	args := m.Called(ctx, imageRef)
	return args.Error(0)
}

func (m *MockDaemonClient) ListImages(ctx context.Context, reference string) ([]out.ImageFacts, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]out.ImageFacts), args.Error(1)
}

func (m *MockDaemonClient) InspectImage(ctx context.Context, imageRef string) (*out.ImageDetail, error) {
	args := m.Called(ctx, imageRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*out.ImageDetail), args.Error(1)
}
