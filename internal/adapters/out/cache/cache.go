// Package cache provides the key/value backends behind the catalog read cache.
// Every backend scopes keys to one bucket and reports misses as domain.ErrCacheMiss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bnema/zerowrap"

	"github.com/bnema/imagehub/internal/domain"
)

// bucketKey joins the bucket and the caller's key.
func bucketKey(bucket, key string) string {
	return bucket + "|" + key
}

func cacheErr(action string, err error) error {
	return fmt.Errorf("%s: %w: %v", action, domain.ErrCache, err)
}

func adapterLogger(ctx context.Context, backend, action string) zerowrap.Logger {
	return zerowrap.FromCtx(zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: backend,
		zerowrap.FieldAction:  action,
	}))
}

// memcacheKey returns key unchanged when memcached accepts it, otherwise a
// digest of it. Memcached rejects keys over 250 bytes or with spaces and control characters.
func memcacheKey(key string) string {
	if len(key) <= 250 && !strings.ContainsFunc(key, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return "sha256:" + hex.EncodeToString(sum[:])
}
