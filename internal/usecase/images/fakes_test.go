package images

import (
	"context"
	"errors"
	"sync"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/domain"
)

var errStoreDown = errors.New("store unreachable")

// fakeDB holds catalog and local image rows and reverts them when a unit of work fails.
type fakeDB struct {
	mu          sync.Mutex
	entries     []*domain.CatalogEntry
	localImages []*domain.LocalImage

	// down makes every store call fail.
	down bool
	// deleteErr fails catalog deletes.
	deleteErr error
}

func newFakeDB(entries ...*domain.CatalogEntry) *fakeDB {
	return &fakeDB{entries: entries}
}

func (db *fakeDB) catalog() *fakeCatalog { return &fakeCatalog{db: db} }
func (db *fakeDB) localImageStore() *fakeLocalImages { return &fakeLocalImages{db: db} }

func (db *fakeDB) WithinTx(ctx context.Context, fn func(ctx context.Context, stores out.Stores) error) error {
	db.mu.Lock()
	entries := append([]*domain.CatalogEntry(nil), db.entries...)
	locals := append([]*domain.LocalImage(nil), db.localImages...)
	db.mu.Unlock()

	err := fn(ctx, out.Stores{Catalog: db.catalog(), LocalImages: db.localImageStore()})
	if err != nil {
		db.mu.Lock()
		db.entries, db.localImages = entries, locals
		db.mu.Unlock()
	}
	return err
}

func (db *fakeDB) fullNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := make([]string, 0, len(db.entries))
	for _, e := range db.entries {
		names = append(names, e.FullName)
	}
	return names
}

type fakeCatalog struct {
	db *fakeDB
}

func (c *fakeCatalog) GetByID(_ context.Context, id string) (*domain.CatalogEntry, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.db.down {
		return nil, errStoreDown
	}
	for _, e := range c.db.entries {
		if e.ID == id {
			clone := *e
			return &clone, nil
		}
	}
	return nil, nil
}

func (c *fakeCatalog) ListByName(_ context.Context, name string) ([]*domain.CatalogEntry, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.db.down {
		return nil, errStoreDown
	}
	var result []*domain.CatalogEntry
	for _, e := range c.db.entries {
		if e.Name == name {
			clone := *e
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (c *fakeCatalog) ListAll(_ context.Context) ([]*domain.CatalogEntry, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.db.down {
		return nil, errStoreDown
	}
	result := make([]*domain.CatalogEntry, 0, len(c.db.entries))
	for _, e := range c.db.entries {
		clone := *e
		result = append(result, &clone)
	}
	return result, nil
}

func (c *fakeCatalog) ExistsByFullName(_ context.Context, fullName string) (bool, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.db.down {
		return false, errStoreDown
	}
	for _, e := range c.db.entries {
		if e.FullName == fullName {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCatalog) Insert(_ context.Context, entry *domain.CatalogEntry) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.db.down {
		return errStoreDown
	}
	clone := *entry
	c.db.entries = append(c.db.entries, &clone)
	return nil
}

func (c *fakeCatalog) UpdateDigest(_ context.Context, id, digest string) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.db.down {
		return errStoreDown
	}
	for i, e := range c.db.entries {
		if e.ID == id {
			clone := *e
			clone.Digest = digest
			c.db.entries[i] = &clone
		}
	}
	return nil
}

func (c *fakeCatalog) Delete(_ context.Context, id string) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.db.down {
		return errStoreDown
	}
	if c.db.deleteErr != nil {
		return c.db.deleteErr
	}
	kept := c.db.entries[:0:0]
	for _, e := range c.db.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	c.db.entries = kept
	return nil
}

type fakeLocalImages struct {
	db *fakeDB
}

func (l *fakeLocalImages) GetByID(_ context.Context, id string) (*domain.LocalImage, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if l.db.down {
		return nil, errStoreDown
	}
	for _, img := range l.db.localImages {
		if img.ID == id {
			clone := *img
			return &clone, nil
		}
	}
	return nil, nil
}

func (l *fakeLocalImages) GetByFullName(_ context.Context, fullName string) (*domain.LocalImage, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if l.db.down {
		return nil, errStoreDown
	}
	for _, img := range l.db.localImages {
		if img.FullName == fullName {
			clone := *img
			return &clone, nil
		}
	}
	return nil, nil
}

func (l *fakeLocalImages) Insert(_ context.Context, image *domain.LocalImage) error {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if l.db.down {
		return errStoreDown
	}
	clone := *image
	l.db.localImages = append(l.db.localImages, &clone)
	return nil
}

// fakeCache is an in-memory bucket with switchable failures.
type fakeCache struct {
	mu        sync.Mutex
	data      map[string][]byte
	getErr    error
	setErr    error
	deleteErr error
	sets      int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// fakeSyncLocker counts acquisitions.
type fakeSyncLocker struct {
	acquired int
	released int
	err      error
}

func (l *fakeSyncLocker) Acquire(context.Context) (func() error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() error {
		l.released++
		return nil
	}, nil
}

// racingCatalog runs onLoad after every single-entry and by-name read, while
// the result is still on its way back to the caller.
type racingCatalog struct {
	*fakeCatalog
	onLoad func()
}

func (c *racingCatalog) GetByID(ctx context.Context, id string) (*domain.CatalogEntry, error) {
	entry, err := c.fakeCatalog.GetByID(ctx, id)
	c.onLoad()
	return entry, err
}

func (c *racingCatalog) ListByName(ctx context.Context, name string) ([]*domain.CatalogEntry, error) {
	entries, err := c.fakeCatalog.ListByName(ctx, name)
	c.onLoad()
	return entries, err
}
