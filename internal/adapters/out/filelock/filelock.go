// Package filelock serializes catalog synchronization across processes sharing
// one database with an advisory lock file.
package filelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/gofrs/flock"

	"github.com/bnema/imagehub/internal/boundaries/out"
)

const defaultRetryDelay = 100 * time.Millisecond

// Locker implements out.SyncLocker.
type Locker struct {
	path       string
	retryDelay time.Duration
}

var _ out.SyncLocker = (*Locker)(nil)

// New returns a locker on path. The file is created on first use.
func New(path string) *Locker {
	return &Locker{path: path, retryDelay: defaultRetryDelay}
}

// Acquire blocks until the lock is held or ctx is done.
func (l *Locker) Acquire(ctx context.Context) (func() error, error) {
	log := zerowrap.FromCtx(zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "filelock",
		zerowrap.FieldPath:    l.path,
	}))

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock := flock.New(l.path)
	locked, err := lock.TryLockContext(ctx, l.retryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: not acquired", l.path)
	}

	log.Debug().Msg("sync lock acquired")
	return func() error {
		if err := lock.Unlock(); err != nil {
			return fmt.Errorf("unlock %s: %w", l.path, err)
		}
		log.Debug().Msg("sync lock released")
		return nil
	}, nil
}
