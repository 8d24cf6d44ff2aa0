package cache

import (
	"context"

	"github.com/starskey-io/starskey"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

// Starskey is an embedded LSM-backed cache living in a local directory.
type Starskey struct {
	db     *starskey.Starskey
	bucket string
}

var _ out.Cache = (*Starskey)(nil)

// NewStarskey opens (or creates) the cache directory.
func NewStarskey(ctx context.Context, dir, bucket string) (*Starskey, error) {
	db, err := starskey.Open(&starskey.Config{
		Permission:        0755,
		Directory:         dir,
		FlushThreshold:    4 * 1024 * 1024,
		MaxLevel:          3,
		SizeFactor:        10,
		BloomFilter:       true,
		SuRF:              false,
		Logging:           false,
		Compression:       true,
		CompressionOption: starskey.SnappyCompression,
	})
	if err != nil {
		return nil, cacheErr("open starskey", err)
	}

	adapterLogger(ctx, "starskey", "Open").Debug().
		Str("dir", dir).
		Str("bucket", bucket).
		Msg("cache opened")
	return &Starskey{db: db, bucket: bucket}, nil
}

func (s *Starskey) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, cacheErr("get", err)
	}
	value, err := s.db.Get([]byte(bucketKey(s.bucket, key)))
	if err != nil {
		return nil, cacheErr("get", err)
	}
	if value == nil {
		return nil, domain.ErrCacheMiss
	}
	return value, nil
}

func (s *Starskey) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return cacheErr("set", err)
	}
	if err := s.db.Put([]byte(bucketKey(s.bucket, key)), value); err != nil {
		return cacheErr("set", err)
	}
	return nil
}

// Delete removes every key; it stops at the first failure.
func (s *Starskey) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return cacheErr("delete", err)
	}
	for _, key := range keys {
		if err := s.db.Delete([]byte(bucketKey(s.bucket, key))); err != nil {
			return cacheErr("delete "+key, err)
		}
	}
	return nil
}

// Close flushes and closes the store.
func (s *Starskey) Close() error {
	if err := s.db.Close(); err != nil {
		return cacheErr("close starskey", err)
	}
	return nil
}
