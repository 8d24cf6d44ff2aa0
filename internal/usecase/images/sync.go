package images

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/zerowrap"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

// Sync reconciles the catalog with the registry listing: remote tags with no
// catalog row are inserted, catalog rows with no remote tag are deleted. The whole
// pass is one unit of work; a registry or store failure reverts every change.
func (s *Service) Sync(ctx context.Context) (domain.SyncReport, error) {
	const op = "Sync"
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: op,
		"registry":            s.registry.Host(),
	})
	log := zerowrap.FromCtx(ctx)

	s.gate.Lock()
	defer s.gate.Unlock()

	if s.syncLocker != nil {
		release, err := s.syncLocker.Acquire(ctx)
		if err != nil {
			return domain.SyncReport{}, s.failSync(ctx, domain.CodePersistenceError, fmt.Errorf("acquire sync lock: %w", err))
		}
		defer func() {
			if err := release(); err != nil {
				log.Warn().Err(err).Msg("failed to release sync lock")
			}
		}()
	}

	var (
		report  domain.SyncReport
		touched []*domain.CatalogEntry
	)
	err := s.uow.WithinTx(ctx, func(ctx context.Context, stores out.Stores) error {
		report, touched = domain.SyncReport{}, nil

		entries, err := stores.Catalog.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		index := newCoordinateIndex(entries)

		repos, err := s.registry.ListRepositories(ctx)
		if err != nil {
			return fmt.Errorf("list repositories: %w", err)
		}

		for _, name := range repos {
			tags, err := s.registry.ListTags(ctx, name)
			if err != nil {
				return fmt.Errorf("list tags of %s: %w", name, err)
			}

			for _, tag := range tags {
				fullName := domain.FullName(s.registry.Host(), name, tag)

				if matched, ok := index.claim(fullName); ok {
					if s.opts.BackfillDigests && matched.Digest == "" {
						if s.backfillDigest(ctx, stores.Catalog, matched) {
							touched = append(touched, matched)
						}
					}
					continue
				}

				coord, err := domain.ParseCoordinate(fullName)
				if err != nil {
					log.Warn().Err(err).Str("full_name", fullName).Msg("skipping unparseable remote image")
					report.Errored++
					continue
				}
				entry := s.newEntry(ctx, coord)
				if err := stores.Catalog.Insert(ctx, entry); err != nil {
					return fmt.Errorf("insert %s: %w", fullName, err)
				}
				report.Added++
				touched = append(touched, entry)
			}
		}

		for _, stale := range index.unseen() {
			if err := stores.Catalog.Delete(ctx, stale.ID); err != nil {
				return fmt.Errorf("delete %s: %w", stale.FullName, err)
			}
			report.Deleted++
			touched = append(touched, stale)
		}

		return nil
	})
	if err != nil {
		code := domain.CodePersistenceError
		if errors.Is(err, domain.ErrNetwork) {
			code = domain.CodeNetworkError
		}
		return domain.SyncReport{}, s.failSync(ctx, code, err)
	}

	for _, entry := range touched {
		s.cache.invalidate(ctx, entry.ID, entry.Name)
	}

	log.Info().
		Int("added", report.Added).
		Int("deleted", report.Deleted).
		Int("errored", report.Errored).
		Msg("catalog synchronized")
	s.metrics.RecordSync(ctx, report, domain.CodeSuccess)
	return report, nil
}

func (s *Service) failSync(ctx context.Context, code domain.Code, err error) error {
	s.metrics.RecordSync(ctx, domain.SyncReport{}, code)
	return s.fail(ctx, "Sync", code, err)
}

// backfillDigest resolves a missing digest for an entry the registry still lists.
// It reports whether the entry was updated.
func (s *Service) backfillDigest(ctx context.Context, catalog out.CatalogStore, entry *domain.CatalogEntry) bool {
	log := zerowrap.FromCtx(ctx)

	digest, err := s.registry.GetDigest(ctx, entry.Name, entry.Tag)
	if err != nil || digest == "" {
		log.Debug().Err(err).Str("full_name", entry.FullName).Msg("digest still unavailable")
		return false
	}
	if err := catalog.UpdateDigest(ctx, entry.ID, digest); err != nil {
		log.Warn().Err(err).Str("full_name", entry.FullName).Msg("failed to store backfilled digest")
		return false
	}
	entry.Digest = digest
	return true
}

// coordinateIndex matches remote coordinates against catalog rows. Rows sharing a
// full name are claimed in catalog order, exactly as a linear scan over unseen rows would.
type coordinateIndex struct {
	entries []*domain.CatalogEntry
	seen    []bool
	byName  map[string][]int
}

func newCoordinateIndex(entries []*domain.CatalogEntry) *coordinateIndex {
	idx := &coordinateIndex{
		entries: entries,
		seen:    make([]bool, len(entries)),
		byName:  make(map[string][]int, len(entries)),
	}
	for i, e := range entries {
		idx.byName[e.FullName] = append(idx.byName[e.FullName], i)
	}
	return idx
}

// claim marks the first unseen row named fullName as seen.
func (x *coordinateIndex) claim(fullName string) (*domain.CatalogEntry, bool) {
	for _, i := range x.byName[fullName] {
		if x.seen[i] {
			continue
		}
		x.seen[i] = true
		return x.entries[i], true
	}
	return nil, false
}

// unseen returns the rows no remote tag claimed, in catalog order.
func (x *coordinateIndex) unseen() []*domain.CatalogEntry {
	var stale []*domain.CatalogEntry
	for i, e := range x.entries {
		if !x.seen[i] {
			stale = append(stale, e)
		}
	}
	return stale
}
