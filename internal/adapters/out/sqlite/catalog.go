package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

const catalogColumns = `id, full_name, repo, name, tag, digest, user_id`

// CatalogRepository stores catalog entries in the repository_image table.
type CatalogRepository struct {
	q querier
}

var _ out.CatalogStore = (*CatalogRepository)(nil)

func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*domain.CatalogEntry, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+catalogColumns+` FROM repository_image WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence("get catalog entry", err)
	}
	return entry, nil
}

func (r *CatalogRepository) ListByName(ctx context.Context, name string) ([]*domain.CatalogEntry, error) {
	return r.list(ctx, `SELECT `+catalogColumns+` FROM repository_image WHERE name = ? ORDER BY rowid`, name)
}

func (r *CatalogRepository) ListAll(ctx context.Context) ([]*domain.CatalogEntry, error) {
	return r.list(ctx, `SELECT `+catalogColumns+` FROM repository_image ORDER BY rowid`)
}

func (r *CatalogRepository) ExistsByFullName(ctx context.Context, fullName string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM repository_image WHERE full_name = ?`, fullName).Scan(&n)
	if err != nil {
		return false, persistence("check catalog entry", err)
	}
	return n > 0, nil
}

func (r *CatalogRepository) Insert(ctx context.Context, e *domain.CatalogEntry) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO repository_image (`+catalogColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.FullName, e.Repo, e.Name, e.Tag, e.Digest, e.UserID)
	if err != nil {
		return persistence("insert catalog entry", err)
	}
	return nil
}

func (r *CatalogRepository) UpdateDigest(ctx context.Context, id, digest string) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE repository_image SET digest = ? WHERE id = ?`, digest, id); err != nil {
		return persistence("update catalog digest", err)
	}
	return nil
}

func (r *CatalogRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM repository_image WHERE id = ?`, id); err != nil {
		return persistence("delete catalog entry", err)
	}
	return nil
}

func (r *CatalogRepository) list(ctx context.Context, query string, args ...any) ([]*domain.CatalogEntry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("list catalog entries", err)
	}
	defer rows.Close()

	var entries []*domain.CatalogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, persistence("scan catalog entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list catalog entries", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*domain.CatalogEntry, error) {
	var e domain.CatalogEntry
	if err := s.Scan(&e.ID, &e.FullName, &e.Repo, &e.Name, &e.Tag, &e.Digest, &e.UserID); err != nil {
		return nil, err
	}
	return &e, nil
}
