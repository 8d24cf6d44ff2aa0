package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

// MemcacheConfig defines how a Memcached cache is constructed.
type MemcacheConfig struct {
	Servers      []string
	Timeout      time.Duration
	MaxIdleConns int
	Bucket       string
}

// Memcached is a cache shared between processes through a fixed memcached server list.
type Memcached struct {
	client *memcache.Client
	bucket string
}

var _ out.Cache = (*Memcached)(nil)

// NewMemcached does not dial; the first request connects.
func NewMemcached(config MemcacheConfig) (*Memcached, error) {
	if len(config.Servers) == 0 {
		return nil, cacheErr("configure memcached", errors.New("no servers"))
	}

	var servers memcache.ServerList
	if err := servers.SetServers(config.Servers...); err != nil {
		return nil, cacheErr("configure memcached", err)
	}
	client := memcache.NewFromSelector(&servers)
	client.Timeout = config.Timeout
	client.MaxIdleConns = config.MaxIdleConns

	return &Memcached{client: client, bucket: config.Bucket}, nil
}

func (m *Memcached) key(key string) string {
	return memcacheKey(bucketKey(m.bucket, key))
}

func (m *Memcached) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, cacheErr("get", err)
	}
	item, err := m.client.Get(m.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, cacheErr("get", err)
	}
	return item.Value, nil
}

// Set stores value without expiry; entries leave the cache through Delete or eviction.
func (m *Memcached) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return cacheErr("set", err)
	}
	if err := m.client.Set(&memcache.Item{Key: m.key(key), Value: value}); err != nil {
		return cacheErr("set", err)
	}
	return nil
}

// Delete removes every key. Keys already absent are not an error.
func (m *Memcached) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return cacheErr("delete", err)
	}
	var errs []error
	for _, key := range keys {
		err := m.client.Delete(m.key(key))
		if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		adapterLogger(ctx, "memcached", "Delete").Debug().
			Strs("keys", keys).
			Int("failures", len(errs)).
			Msg("delete failed")
		return cacheErr("delete", errors.Join(errs...))
	}
	return nil
}
