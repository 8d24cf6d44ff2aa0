package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

const localImageColumns = `id, full_name, name, tag, repo, type, user_id, image_id, size,
	virtual_size, labels, parent_id, cmd, create_date`

// LocalImageRepository stores local daemon images in the sys_image table.
type LocalImageRepository struct {
	q querier
}

var _ out.LocalImageStore = (*LocalImageRepository)(nil)

func (r *LocalImageRepository) GetByID(ctx context.Context, id string) (*domain.LocalImage, error) {
	return r.get(ctx, `SELECT `+localImageColumns+` FROM sys_image WHERE id = ?`, id)
}

func (r *LocalImageRepository) GetByFullName(ctx context.Context, fullName string) (*domain.LocalImage, error) {
	return r.get(ctx, `SELECT `+localImageColumns+` FROM sys_image WHERE full_name = ? ORDER BY rowid LIMIT 1`, fullName)
}

func (r *LocalImageRepository) Insert(ctx context.Context, img *domain.LocalImage) error {
	labels := ""
	if len(img.Labels) > 0 {
		data, err := json.Marshal(img.Labels)
		if err != nil {
			return fmt.Errorf("encode labels: %w", err)
		}
		labels = string(data)
	}

	var created sql.NullString
	if img.CreateDate != nil {
		created = sql.NullString{String: img.CreateDate.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO sys_image (`+localImageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.FullName, img.Name, img.Tag, img.Repo, int(img.Type), img.UserID, img.ImageID,
		img.Size, img.VirtualSize, labels, img.ParentID, img.Cmd, created)
	if err != nil {
		return persistence("insert local image", err)
	}
	return nil
}

func (r *LocalImageRepository) get(ctx context.Context, query string, args ...any) (*domain.LocalImage, error) {
	var (
		img     domain.LocalImage
		typ     int
		labels  string
		created sql.NullString
	)
	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&img.ID, &img.FullName, &img.Name, &img.Tag, &img.Repo, &typ, &img.UserID, &img.ImageID,
		&img.Size, &img.VirtualSize, &labels, &img.ParentID, &img.Cmd, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence("get local image", err)
	}
	img.Type = domain.ImageType(typ)

	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &img.Labels); err != nil {
			return nil, fmt.Errorf("decode labels of %s: %w: %v", img.ID, domain.ErrPersistence, err)
		}
	}
	if created.Valid {
		t, err := time.Parse(time.RFC3339Nano, created.String)
		if err != nil {
			return nil, fmt.Errorf("decode create date of %s: %w: %v", img.ID, domain.ErrPersistence, err)
		}
		img.CreateDate = &t
	}
	return &img, nil
}
