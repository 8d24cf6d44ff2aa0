package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/imagehub/internal/domain"
)

// MockCatalogService is a mock implementation of in.CatalogService.
type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) GetByID(ctx context.Context, id string) (*domain.CatalogEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CatalogEntry), args.Error(1)
}

func (m *MockCatalogService) ListByName(ctx context.Context, name string) ([]*domain.CatalogEntry, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CatalogEntry), args.Error(1)
}

func (m *MockCatalogService) Invalidate(ctx context.Context, id, name string) {
	m.Called(ctx, id, name)
}

func (m *MockCatalogService) HasExist(ctx context.Context, fullName string) (bool, error) {
	args := m.Called(ctx, fullName)
	return args.Bool(0), args.Error(1)
}

func (m *MockCatalogService) ListCatalog(ctx context.Context) ([]*domain.CatalogEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CatalogEntry), args.Error(1)
}

func (m *MockCatalogService) ListRemoteRepositories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCatalogService) ListRemoteTags(ctx context.Context, name string) ([]string, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCatalogService) Sync(ctx context.Context) (domain.SyncReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.SyncReport), args.Error(1)
}

func (m *MockCatalogService) PushToHub(ctx context.Context, localImageID, userID string) (*domain.CatalogEntry, error) {
	args := m.Called(ctx, localImageID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CatalogEntry), args.Error(1)
}

func (m *MockCatalogService) PullFromHub(ctx context.Context, catalogID string) (*domain.LocalImage, error) {
	args := m.Called(ctx, catalogID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LocalImage), args.Error(1)
}

func (m *MockCatalogService) DeleteFromHub(ctx context.Context, catalogID string) error {
	args := m.Called(ctx, catalogID)
	return args.Error(0)
}
