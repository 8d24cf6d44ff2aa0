// Package in defines input ports (interfaces) for use cases.
package in

import (
	"context"

	"github.com/bnema/imagehub/internal/domain"
)

// CatalogService defines the hub catalog operations.
// Every error returned is a *domain.Error carrying a taxonomy code.
type CatalogService interface {
	// Cached reads
	GetByID(ctx context.Context, id string) (*domain.CatalogEntry, error)
	ListByName(ctx context.Context, name string) ([]*domain.CatalogEntry, error)
	Invalidate(ctx context.Context, id, name string)

	// Direct store reads
	HasExist(ctx context.Context, fullName string) (bool, error)
	ListCatalog(ctx context.Context) ([]*domain.CatalogEntry, error)

	// Remote listing
	ListRemoteRepositories(ctx context.Context) ([]string, error)
	ListRemoteTags(ctx context.Context, name string) ([]string, error)

	// Reconciliation
	Sync(ctx context.Context) (domain.SyncReport, error)

	// Lifecycle
	PushToHub(ctx context.Context, localImageID, userID string) (*domain.CatalogEntry, error)
	PullFromHub(ctx context.Context, catalogID string) (*domain.LocalImage, error)
	DeleteFromHub(ctx context.Context, catalogID string) error
}
