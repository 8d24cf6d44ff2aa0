// Package images implements the hub image catalog use case: cached catalog reads,
// reconciliation against the registry, and push/pull/delete workflows.
package images

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/google/uuid"

	"github.com/bnema/imagehub/internal/boundaries/in"
	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

var _ in.CatalogService = (*Service)(nil)

// Dependencies are the driven adapters the service works through.
type Dependencies struct {
	Catalog     out.CatalogStore
	LocalImages out.LocalImageStore
	UnitOfWork  out.UnitOfWork
	Registry    out.RegistryClient
	Daemon      out.DaemonClient
	Cache       out.Cache
	// SyncLocker is optional; when set, Sync also excludes other processes.
	SyncLocker out.SyncLocker
	// Metrics is optional.
	Metrics out.MetricsRecorder
}

// Options tune service behavior.
type Options struct {
	// BackfillDigests makes Sync resolve the digest of matched entries that have none.
	BackfillDigests bool
}

// Service implements in.CatalogService.
type Service struct {
	catalog     out.CatalogStore
	localImages out.LocalImageStore
	uow         out.UnitOfWork
	registry    out.RegistryClient
	daemon      out.DaemonClient
	cache       *cacheAside
	syncLocker  out.SyncLocker
	metrics     out.MetricsRecorder
	opts        Options

	// gate is held exclusively by Sync and shared by push/pull/delete.
	gate   sync.RWMutex
	coords keyedMutex

	newID func() string
	now   func() time.Time
}

// NewService creates a new images service.
func NewService(deps Dependencies, opts Options) *Service {
	cache := deps.Cache
	if cache == nil {
		cache = nopCache{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Service{
		catalog:     deps.Catalog,
		localImages: deps.LocalImages,
		uow:         deps.UnitOfWork,
		registry:    deps.Registry,
		daemon:      deps.Daemon,
		cache:       newCacheAside(cache, deps.Catalog, metrics),
		syncLocker:  deps.SyncLocker,
		metrics:     metrics,
		opts:        opts,
		coords:      keyedMutex{locks: make(map[string]*refMutex)},
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// GetByID returns a catalog entry through the cache.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.CatalogEntry, error) {
	const op = "GetByID"
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  op,
		zerowrap.FieldEntityID: id,
	})

	entry, err := s.cache.getByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodePersistenceError, err)
	}
	if entry == nil {
		return nil, s.fail(ctx, op, domain.CodeNotFound, domain.ErrNotFound)
	}
	return entry, nil
}

// ListByName returns every catalog entry of one repository name through the cache.
func (s *Service) ListByName(ctx context.Context, name string) ([]*domain.CatalogEntry, error) {
	const op = "ListByName"
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: op,
		"name":                name,
	})

	entries, err := s.cache.listByName(ctx, name)
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodePersistenceError, err)
	}
	return entries, nil
}

// Invalidate drops the cached copies for id and name. Blank values are skipped.
func (s *Service) Invalidate(ctx context.Context, id, name string) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Invalidate",
	})
	s.cache.invalidate(ctx, id, name)
}

// HasExist reports whether an entry with exactly fullName is in the store, bypassing the cache.
func (s *Service) HasExist(ctx context.Context, fullName string) (bool, error) {
	const op = "HasExist"
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: op,
		"full_name":           fullName,
	})

	exists, err := s.catalog.ExistsByFullName(ctx, fullName)
	if err != nil {
		return false, s.fail(ctx, op, domain.CodePersistenceError, err)
	}
	return exists, nil
}

// ListCatalog returns the whole catalog from the store.
func (s *Service) ListCatalog(ctx context.Context) ([]*domain.CatalogEntry, error) {
	const op = "ListCatalog"
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: op,
	})

	entries, err := s.catalog.ListAll(ctx)
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodePersistenceError, err)
	}
	return entries, nil
}

// ListRemoteRepositories lists repository names on the registry.
func (s *Service) ListRemoteRepositories(ctx context.Context) ([]string, error) {
	const op = "ListRemoteRepositories"
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: op,
	})

	repos, err := s.registry.ListRepositories(ctx)
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodeNetworkError, err)
	}
	return repos, nil
}

// ListRemoteTags lists the tags of one registry repository.
func (s *Service) ListRemoteTags(ctx context.Context, name string) ([]string, error) {
	const op = "ListRemoteTags"
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: op,
		"name":                name,
	})

	tags, err := s.registry.ListTags(ctx, name)
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodeNetworkError, err)
	}
	return tags, nil
}

// newEntry builds a catalog entry with a fresh id for coord. The digest is
// resolved best-effort and left empty when the registry cannot answer.
func (s *Service) newEntry(ctx context.Context, coord domain.Coordinate) *domain.CatalogEntry {
	entry := coord.Entry()
	entry.ID = s.newID()

	digest, err := s.registry.GetDigest(ctx, coord.Name, coord.Tag)
	if err != nil {
		zerowrap.FromCtx(ctx).Warn().Err(err).
			Str("full_name", entry.FullName).
			Msg("digest lookup failed, storing entry without digest")
		return entry
	}
	entry.Digest = digest
	return entry
}

// fail logs err once at the operation boundary and wraps it with its taxonomy code.
func (s *Service) fail(ctx context.Context, op string, code domain.Code, err error) error {
	log := zerowrap.FromCtx(ctx)
	if code < domain.CodeNetworkError {
		log.Warn().Err(err).Int("code", int(code)).Msg("operation rejected")
	} else {
		log.Error().Err(err).Int("code", int(code)).Msg("operation failed")
	}
	s.metrics.RecordOperation(ctx, op, code)
	return domain.NewError(code, op, err)
}

func (s *Service) succeed(ctx context.Context, op string) {
	s.metrics.RecordOperation(ctx, op, domain.CodeSuccess)
}

type nopMetrics struct{}

func (nopMetrics) RecordSync(context.Context, domain.SyncReport, domain.Code) {}
func (nopMetrics) RecordOperation(context.Context, string, domain.Code) {}
func (nopMetrics) RecordCacheLookup(context.Context, bool) {}
