package out

import "context"

// Cache is a best-effort key/value bucket. Keys are scoped to the bucket the adapter
// was configured with. Get returns domain.ErrCacheMiss when the key is absent.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// SyncLocker serializes reconciliation passes across processes.
type SyncLocker interface {
	// Acquire blocks until the lock is held or ctx is done.
	Acquire(ctx context.Context) (release func() error, err error)
}
