package images

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/bnema/zerowrap"
	"golang.org/x/sync/singleflight"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

const (
	idKeyPrefix   = "ID:"
	nameKeyPrefix = "NAME:"
)

func idKey(id string) string { return idKeyPrefix + id }
func nameKey(name string) string { return nameKeyPrefix + name }

// cacheAside serves catalog reads from a best-effort cache in front of the store.
// Cache failures are logged and treated as misses; they never change a result.
//
// A store load only writes its result back when no invalidation ran since the
// load started, so a reader racing a mutation cannot re-cache the old row.
type cacheAside struct {
	cache   out.Cache
	store   out.CatalogStore
	metrics out.MetricsRecorder
	group   singleflight.Group

	mu    sync.Mutex
	epoch uint64
}

func newCacheAside(cache out.Cache, store out.CatalogStore, metrics out.MetricsRecorder) *cacheAside {
	return &cacheAside{cache: cache, store: store, metrics: metrics}
}

// getByID returns (nil, nil) when the store has no such entry.
func (c *cacheAside) getByID(ctx context.Context, id string) (*domain.CatalogEntry, error) {
	key := idKey(id)

	var cached domain.CatalogEntry
	if c.read(ctx, key, &cached) {
		return &cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		start := c.currentEpoch()
		entry, err := c.store.GetByID(ctx, id)
		if err != nil || entry == nil {
			return entry, err
		}
		c.write(ctx, key, entry, start)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	entry, _ := v.(*domain.CatalogEntry)
	if entry == nil {
		return nil, nil
	}
	clone := *entry
	return &clone, nil
}

func (c *cacheAside) listByName(ctx context.Context, name string) ([]*domain.CatalogEntry, error) {
	key := nameKey(name)

	var cached []*domain.CatalogEntry
	if c.read(ctx, key, &cached) {
		return cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		start := c.currentEpoch()
		entries, err := c.store.ListByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []*domain.CatalogEntry{}
		}
		c.write(ctx, key, entries, start)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}

	shared, _ := v.([]*domain.CatalogEntry)
	entries := make([]*domain.CatalogEntry, 0, len(shared))
	for _, e := range shared {
		clone := *e
		entries = append(entries, &clone)
	}
	return entries, nil
}

// invalidate deletes the id and name keys; blank arguments are skipped.
func (c *cacheAside) invalidate(ctx context.Context, id, name string) {
	var keys []string
	if id != "" {
		keys = append(keys, idKey(id))
	}
	if name != "" {
		keys = append(keys, nameKey(name))
	}
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()

	if err := c.cache.Delete(ctx, keys...); err != nil {
		zerowrap.FromCtx(ctx).Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

func (c *cacheAside) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// read reports whether key was found and decoded into dst.
func (c *cacheAside) read(ctx context.Context, key string, dst any) bool {
	data, err := c.cache.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrCacheMiss):
		c.metrics.RecordCacheLookup(ctx, false)
		return false
	case err != nil:
		zerowrap.FromCtx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed, falling back to store")
		c.metrics.RecordCacheLookup(ctx, false)
		return false
	case len(data) == 0:
		c.metrics.RecordCacheLookup(ctx, false)
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		zerowrap.FromCtx(ctx).Warn().Err(err).Str("key", key).Msg("cached value is corrupt, falling back to store")
		c.metrics.RecordCacheLookup(ctx, false)
		return false
	}
	c.metrics.RecordCacheLookup(ctx, true)
	return true
}

// write stores value under key unless an invalidation ran after start.
func (c *cacheAside) write(ctx context.Context, key string, value any, start uint64) {
	log := zerowrap.FromCtx(ctx)

	data, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cannot encode value for cache")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != start {
		log.Debug().Str("key", key).Msg("skipping cache write, invalidated during load")
		return
	}
	if err := c.cache.Set(ctx, key, data); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, error) { return nil, domain.ErrCacheMiss }
func (nopCache) Set(context.Context, string, []byte) error { return nil }
func (nopCache) Delete(context.Context, ...string) error { return nil }
