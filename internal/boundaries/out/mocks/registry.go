package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRegistryClient is a mock implementation of out.RegistryClient.
type MockRegistryClient struct {
	mock.Mock
}

func (m *MockRegistryClient) ListRepositories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRegistryClient) ListTags(ctx context.Context, name string) ([]string, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRegistryClient) GetDigest(ctx context.Context, name, tag string) (string, error) {
	args := m.Called(ctx, name, tag)
	return args.String(0), args.Error(1)
}

func (m *MockRegistryClient) DeleteImage(ctx context.Context, name, digest string) error {
	args := m.Called(ctx, name, digest)
	return args.Error(0)
}

func (m *MockRegistryClient) Host() string {
	args := m.Called()
	return args.String(0)
}
