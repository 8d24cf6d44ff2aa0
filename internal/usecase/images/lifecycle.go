package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bnema/zerowrap"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

// PushToHub publishes a user-owned local image to the registry under
// <registry>/<userID>/<name>:<tag> and records it in the catalog.
//
// The daemon tag, push and untag run before the catalog insert, which is the only
// step the unit of work can revert. A failure after the push leaves the registry
// ahead of the catalog until the next Sync picks the image up.
func (s *Service) PushToHub(ctx context.Context, localImageID, userID string) (*domain.CatalogEntry, error) {
	const op = "PushToHub"
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  op,
		zerowrap.FieldEntityID: localImageID,
		"user_id":              userID,
	})

	s.gate.RLock()
	defer s.gate.RUnlock()

	img, err := s.localImages.GetByID(ctx, localImageID)
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodePersistenceError, err)
	}
	if img == nil {
		return nil, s.fail(ctx, op, domain.CodeImageNotFound, domain.ErrImageNotFound)
	}
	if img.Type != domain.ImageTypeUserOwned {
		return nil, s.fail(ctx, op, domain.CodePublicImageUploadRejected, domain.ErrPublicImageUpload)
	}
	if img.UserID != userID {
		return nil, s.fail(ctx, op, domain.CodePermissionDenied, domain.ErrPermissionDenied)
	}

	coord, err := domain.ParseCoordinate(domain.FullName(s.registry.Host(), userID+"/"+img.Name, img.Tag))
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodePushError, fmt.Errorf("build push target: %w", err))
	}
	target := coord.String()
	ctx = zerowrap.CtxWithField(ctx, "target", target)

	unlock := s.coords.Lock(target)
	defer unlock()

	exists, err := s.catalog.ExistsByFullName(ctx, target)
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodePersistenceError, err)
	}
	if exists {
		return nil, s.fail(ctx, op, domain.CodeAlreadyExists, domain.ErrAlreadyExists)
	}

	if err := s.daemon.TagImage(ctx, img.FullName, target); err != nil {
		return nil, s.fail(ctx, op, domain.CodePushError, fmt.Errorf("tag image: %w", err))
	}
	if err := s.daemon.PushImage(ctx, target); err != nil {
		return nil, s.fail(ctx, op, domain.CodePushError, fmt.Errorf("push image: %w", err))
	}
	if err := s.daemon.RemoveImage(ctx, target); err != nil {
		return nil, s.fail(ctx, op, domain.CodePushError, fmt.Errorf("remove push tag: %w", err))
	}

	entry := s.newEntry(ctx, coord)

	err = s.uow.WithinTx(ctx, func(ctx context.Context, stores out.Stores) error {
		return stores.Catalog.Insert(ctx, entry)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, s.fail(ctx, op, domain.CodeAlreadyExists, err)
		}
		return nil, s.fail(ctx, op, domain.CodePushError, fmt.Errorf("record pushed image: %w", err))
	}

	s.cache.invalidate(ctx, entry.ID, entry.Name)

	zerowrap.FromCtx(ctx).Info().
		Str("id", entry.ID).
		Str("digest", entry.Digest).
		Msg("image pushed to hub")
	s.succeed(ctx, op)
	return entry, nil
}

// PullFromHub pulls a catalog image onto the local daemon and records it as a
// public local image. Daemon metadata is collected best-effort.
func (s *Service) PullFromHub(ctx context.Context, catalogID string) (*domain.LocalImage, error) {
	const op = "PullFromHub"
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  op,
		zerowrap.FieldEntityID: catalogID,
	})

	s.gate.RLock()
	defer s.gate.RUnlock()

	entry, err := s.cache.getByID(ctx, catalogID)
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodePersistenceError, err)
	}
	if entry == nil {
		return nil, s.fail(ctx, op, domain.CodeNotFound, domain.ErrNotFound)
	}
	ctx = zerowrap.CtxWithField(ctx, "full_name", entry.FullName)

	unlock := s.coords.Lock(entry.FullName)
	defer unlock()

	existing, err := s.localImages.GetByFullName(ctx, entry.FullName)
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodePersistenceError, err)
	}
	if existing != nil {
		return nil, s.fail(ctx, op, domain.CodeLocalImageExists, domain.ErrLocalImageExists)
	}

	if err := s.daemon.PullImage(ctx, entry.FullName); err != nil {
		return nil, s.fail(ctx, op, domain.CodePullError, fmt.Errorf("pull image: %w", err))
	}

	img := s.localImageFrom(ctx, entry)

	err = s.uow.WithinTx(ctx, func(ctx context.Context, stores out.Stores) error {
		return stores.LocalImages.Insert(ctx, img)
	})
	if err != nil {
		return nil, s.fail(ctx, op, domain.CodePullError, fmt.Errorf("record pulled image: %w", err))
	}

	s.cache.invalidate(ctx, entry.ID, entry.Name)

	zerowrap.FromCtx(ctx).Info().Str("image_id", img.ImageID).Msg("image pulled from hub")
	s.succeed(ctx, op)
	return img, nil
}

// DeleteFromHub removes a catalog image from the registry and from the catalog.
// Entries stored without a digest cannot be addressed on the registry and are
// rejected with an integrity error.
func (s *Service) DeleteFromHub(ctx context.Context, catalogID string) error {
	const op = "DeleteFromHub"
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  op,
		zerowrap.FieldEntityID: catalogID,
	})

	s.gate.RLock()
	defer s.gate.RUnlock()

	entry, err := s.cache.getByID(ctx, catalogID)
	if err != nil {
		return s.fail(ctx, op, domain.CodePersistenceError, err)
	}
	if entry == nil {
		return s.fail(ctx, op, domain.CodeNotFound, domain.ErrNotFound)
	}
	if !entry.Deletable() {
		zerowrap.FromCtx(ctx).Error().
			Str("name", entry.Name).
			Str("digest", entry.Digest).
			Msg("hub image record is incomplete")
		return s.fail(ctx, op, domain.CodeIntegrityError, domain.ErrIncompleteEntry)
	}

	unlock := s.coords.Lock(entry.FullName)
	defer unlock()

	err = s.uow.WithinTx(ctx, func(ctx context.Context, stores out.Stores) error {
		if err := s.registry.DeleteImage(ctx, entry.Name, entry.Digest); err != nil {
			return fmt.Errorf("delete from registry: %w", err)
		}
		if err := stores.Catalog.Delete(ctx, entry.ID); err != nil {
			return fmt.Errorf("delete catalog entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, op, domain.CodeDeleteError, err)
	}

	s.cache.invalidate(ctx, entry.ID, entry.Name)

	zerowrap.FromCtx(ctx).Info().Str("full_name", entry.FullName).Msg("image deleted from hub")
	s.succeed(ctx, op)
	return nil
}

// localImageFrom builds the local record for a pulled catalog entry and enriches
// it with what the daemon reports. Enrichment failures leave fields empty.
func (s *Service) localImageFrom(ctx context.Context, entry *domain.CatalogEntry) *domain.LocalImage {
	log := zerowrap.FromCtx(ctx)

	img := &domain.LocalImage{
		ID:       s.newID(),
		FullName: entry.FullName,
		Name:     entry.Name,
		Tag:      entry.Tag,
		Repo:     entry.Repo,
		Type:     domain.ImageTypePublicPulled,
	}

	facts, err := s.daemon.ListImages(ctx, entry.FullName)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("cannot list pulled image")
	case len(facts) > 0:
		f := facts[0]
		img.ImageID = domain.StripDigestScheme(f.ID)
		img.Size = f.Size
		img.VirtualSize = f.VirtualSize
		img.Labels = f.Labels
		img.ParentID = f.ParentID
		created := s.now()
		if !f.Created.IsZero() {
			created = f.Created
		}
		img.CreateDate = &created
	}

	detail, err := s.daemon.InspectImage(ctx, entry.FullName)
	if err != nil {
		log.Warn().Err(err).Msg("cannot inspect pulled image")
		return img
	}
	if len(detail.Cmd) > 0 {
		cmd, err := json.Marshal(detail.Cmd)
		if err != nil {
			log.Warn().Err(err).Msg("cannot encode image command")
			return img
		}
		img.Cmd = string(cmd)
	}
	if img.ImageID == "" && detail.ID != "" {
		img.ImageID = domain.StripDigestScheme(detail.ID)
	}

	return img
}
