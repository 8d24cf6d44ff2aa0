// Package sqlite implements the catalog and local image stores on an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/zerowrap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS repository_image (
	id        TEXT PRIMARY KEY,
	full_name TEXT NOT NULL UNIQUE,
	repo      TEXT NOT NULL,
	name      TEXT NOT NULL,
	tag       TEXT NOT NULL,
	digest    TEXT NOT NULL DEFAULT '',
	user_id   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_repository_image_name ON repository_image(name);

CREATE TABLE IF NOT EXISTS sys_image (
	id           TEXT PRIMARY KEY,
	full_name    TEXT NOT NULL,
	name         TEXT NOT NULL,
	tag          TEXT NOT NULL,
	repo         TEXT NOT NULL DEFAULT '',
	type         INTEGER NOT NULL,
	user_id      TEXT NOT NULL DEFAULT '',
	image_id     TEXT NOT NULL DEFAULT '',
	size         INTEGER NOT NULL DEFAULT 0,
	virtual_size INTEGER NOT NULL DEFAULT 0,
	labels       TEXT NOT NULL DEFAULT '',
	parent_id    TEXT NOT NULL DEFAULT '',
	cmd          TEXT NOT NULL DEFAULT '',
	create_date  TEXT
);
CREATE INDEX IF NOT EXISTS idx_sys_image_full_name ON sys_image(full_name);
`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB owns the connection and hands out stores bound to it.
type DB struct {
	conn *sql.DB
}

var _ out.UnitOfWork = (*DB)(nil)

// Open creates the database file and its directory when missing and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "sqlite",
		zerowrap.FieldAction:  "Open",
		zerowrap.FieldPath:    path,
	})
	log := zerowrap.FromCtx(ctx)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer keeps transactions serialized inside the process.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Debug().Msg("database ready")
	return &DB{conn: conn}, nil
}

// Close releases the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Catalog returns a catalog store outside any transaction.
func (db *DB) Catalog() out.CatalogStore {
	return &CatalogRepository{q: db.conn}
}

// LocalImages returns a local image store outside any transaction.
func (db *DB) LocalImages() out.LocalImageStore {
	return &LocalImageRepository{q: db.conn}
}

// WithinTx runs fn in a transaction that commits when fn returns nil.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, stores out.Stores) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return persistence("begin transaction", err)
	}

	stores := out.Stores{
		Catalog:     &CatalogRepository{q: tx},
		LocalImages: &LocalImageRepository{q: tx},
	}
	if err := fn(ctx, stores); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zerowrap.FromCtx(ctx).Error().Err(rbErr).
				Str(zerowrap.FieldAdapter, "sqlite").
				Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return persistence("commit transaction", err)
	}
	return nil
}

// persistence wraps a driver error so callers can classify it.
func persistence(action string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%s: %w: %v", action, domain.ErrAlreadyExists, err)
	}
	return fmt.Errorf("%s: %w: %v", action, domain.ErrPersistence, err)
}
