package out

import (
	"context"

	"github.com/bnema/imagehub/internal/domain"
)

// CatalogStore is the durable record of registry images.
// Lookups return (nil, nil) when nothing matches.
type CatalogStore interface {
	GetByID(ctx context.Context, id string) (*domain.CatalogEntry, error)
	ListByName(ctx context.Context, name string) ([]*domain.CatalogEntry, error)
	// ListAll returns every entry in insertion order.
	ListAll(ctx context.Context) ([]*domain.CatalogEntry, error)
	ExistsByFullName(ctx context.Context, fullName string) (bool, error)
	Insert(ctx context.Context, entry *domain.CatalogEntry) error
	UpdateDigest(ctx context.Context, id, digest string) error
	Delete(ctx context.Context, id string) error
}

// LocalImageStore tracks images present on the local daemon.
type LocalImageStore interface {
	GetByID(ctx context.Context, id string) (*domain.LocalImage, error)
	GetByFullName(ctx context.Context, fullName string) (*domain.LocalImage, error)
	Insert(ctx context.Context, image *domain.LocalImage) error
}

// Stores groups the repositories bound to one unit of work.
type Stores struct {
	Catalog     CatalogStore
	LocalImages LocalImageStore
}

// UnitOfWork runs fn inside one failure-atomic scope: when fn returns an error
// every write made through the given stores is reverted.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
