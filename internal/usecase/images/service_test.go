package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/imagehub/internal/boundaries/out"
	"github.com/bnema/imagehub/internal/boundaries/out/mocks"
	"github.com/bnema/imagehub/internal/domain"
)

const testHost = "hub.local:5000"

type testEnv struct {
	db       *fakeDB
	cache    *fakeCache
	registry *mocks.MockRegistryClient
	daemon   *mocks.MockDaemonClient
	svc      *Service
}

func newTestEnv(t *testing.T, entries ...*domain.CatalogEntry) *testEnv {
	t.Helper()

	env := &testEnv{
		db:       newFakeDB(entries...),
		cache:    newFakeCache(),
		registry: &mocks.MockRegistryClient{},
		daemon:   &mocks.MockDaemonClient{},
	}
	env.registry.On("Host").Return(testHost).Maybe()

	env.svc = NewService(Dependencies{
		Catalog:     env.db.catalog(),
		LocalImages: env.db.localImageStore(),
		UnitOfWork:  env.db,
		Registry:    env.registry,
		Daemon:      env.daemon,
		Cache:       env.cache,
	}, Options{})

	var (
		mu  sync.Mutex
		seq int
	)
	env.svc.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	env.svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	t.Cleanup(func() {
		env.registry.AssertExpectations(t)
		env.daemon.AssertExpectations(t)
	})
	return env
}

func catalogEntry(id, name, tag, digest string) *domain.CatalogEntry {
	coord, err := domain.ParseCoordinate(domain.FullName(testHost, name, tag))
	if err != nil {
		panic(err)
	}
	e := coord.Entry()
	e.ID = id
	e.Digest = digest
	return e
}

func networkErr(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrNetwork, msg)
}

func TestService_Sync(t *testing.T) {
	t.Run("inserts new tags and deletes stale rows", func(t *testing.T) {
		env := newTestEnv(t,
			catalogEntry("a", "alice/app", "1.0", "sha256:aaa"),
			catalogEntry("b", "alice/app", "2.0", "sha256:bbb"),
		)
		env.registry.On("ListRepositories", mock.Anything).Return([]string{"alice/app"}, nil)
		env.registry.On("ListTags", mock.Anything, "alice/app").Return([]string{"1.0", "3.0"}, nil)
		env.registry.On("GetDigest", mock.Anything, "alice/app", "3.0").Return("sha256:ccc", nil)

		report, err := env.svc.Sync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.SyncReport{Added: 1, Deleted: 1}, report)
		assert.ElementsMatch(t, []string{
			testHost + "/alice/app:1.0",
			testHost + "/alice/app:3.0",
		}, env.db.fullNames())

		added, err := env.db.catalog().ListByName(context.Background(), "alice/app")
		require.NoError(t, err)
		for _, e := range added {
			if e.Tag == "3.0" {
				assert.Equal(t, "sha256:ccc", e.Digest)
				assert.Equal(t, "alice", e.UserID)
				assert.Equal(t, testHost, e.Repo)
			}
		}
	})

	t.Run("unchanged registry is a no-op", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.registry.On("ListRepositories", mock.Anything).Return([]string{"alice/app"}, nil)
		env.registry.On("ListTags", mock.Anything, "alice/app").Return([]string{"1.0"}, nil)

		report, err := env.svc.Sync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.SyncReport{}, report)
		assert.Equal(t, []string{testHost + "/alice/app:1.0"}, env.db.fullNames())
	})

	t.Run("unparseable remote names are counted and skipped", func(t *testing.T) {
		env := newTestEnv(t)
		env.registry.On("ListRepositories", mock.Anything).Return([]string{"busybox", "bob/tool"}, nil)
		env.registry.On("ListTags", mock.Anything, "busybox").Return([]string{"latest"}, nil)
		env.registry.On("ListTags", mock.Anything, "bob/tool").Return([]string{"v1"}, nil)
		env.registry.On("GetDigest", mock.Anything, "bob/tool", "v1").Return("", networkErr("timeout"))

		report, err := env.svc.Sync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.SyncReport{Added: 1, Errored: 1}, report)

		entries, err := env.db.catalog().ListAll(context.Background())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Empty(t, entries[0].Digest, "digest failure keeps the entry without digest")
	})

	t.Run("duplicate rows are matched once", func(t *testing.T) {
		env := newTestEnv(t,
			catalogEntry("first", "alice/app", "1.0", "sha256:aaa"),
			catalogEntry("second", "alice/app", "1.0", "sha256:aaa"),
		)
		env.registry.On("ListRepositories", mock.Anything).Return([]string{"alice/app"}, nil)
		env.registry.On("ListTags", mock.Anything, "alice/app").Return([]string{"1.0"}, nil)

		report, err := env.svc.Sync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.SyncReport{Deleted: 1}, report)
		entry, err := env.db.catalog().GetByID(context.Background(), "first")
		require.NoError(t, err)
		assert.NotNil(t, entry)
	})

	t.Run("registry failure reverts staged changes", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.registry.On("ListRepositories", mock.Anything).Return([]string{"alice/app", "bob/tool"}, nil)
		env.registry.On("ListTags", mock.Anything, "alice/app").Return([]string{"2.0"}, nil)
		env.registry.On("GetDigest", mock.Anything, "alice/app", "2.0").Return("sha256:bbb", nil)
		env.registry.On("ListTags", mock.Anything, "bob/tool").Return(nil, networkErr("connection reset"))

		report, err := env.svc.Sync(context.Background())

		require.Error(t, err)
		assert.Equal(t, domain.CodeNetworkError, domain.CodeOf(err))
		assert.Equal(t, domain.SyncReport{}, report)
		assert.Equal(t, []string{testHost + "/alice/app:1.0"}, env.db.fullNames())
	})

	t.Run("store failure is a persistence error", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.down = true

		_, err := env.svc.Sync(context.Background())

		require.Error(t, err)
		assert.Equal(t, domain.CodePersistenceError, domain.CodeOf(err))
	})

	t.Run("invalidates cache keys of changed entries", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.cache.data[idKey("a")] = []byte(`{"id":"a"}`)
		env.cache.data[nameKey("alice/app")] = []byte(`[]`)
		env.registry.On("ListRepositories", mock.Anything).Return([]string{}, nil)

		report, err := env.svc.Sync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.SyncReport{Deleted: 1}, report)
		assert.False(t, env.cache.has(idKey("a")))
		assert.False(t, env.cache.has(nameKey("alice/app")))
	})

	t.Run("invalidates cache keys of inserted entries", func(t *testing.T) {
		env := newTestEnv(t)
		env.cache.data[idKey("id-1")] = []byte(`{"id":"id-1"}`)
		env.cache.data[nameKey("alice/app")] = []byte(`[]`)
		env.registry.On("ListRepositories", mock.Anything).Return([]string{"alice/app"}, nil)
		env.registry.On("ListTags", mock.Anything, "alice/app").Return([]string{"1.0"}, nil)
		env.registry.On("GetDigest", mock.Anything, "alice/app", "1.0").Return("sha256:aaa", nil)

		report, err := env.svc.Sync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.SyncReport{Added: 1}, report)
		assert.False(t, env.cache.has(idKey("id-1")))
		assert.False(t, env.cache.has(nameKey("alice/app")))

		list, err := env.svc.ListByName(context.Background(), "alice/app")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "id-1", list[0].ID)
	})

	t.Run("backfills missing digests when enabled", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", ""))
		env.svc.opts.BackfillDigests = true
		env.registry.On("ListRepositories", mock.Anything).Return([]string{"alice/app"}, nil)
		env.registry.On("ListTags", mock.Anything, "alice/app").Return([]string{"1.0"}, nil)
		env.registry.On("GetDigest", mock.Anything, "alice/app", "1.0").Return("sha256:aaa", nil)

		report, err := env.svc.Sync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.SyncReport{}, report)
		entry, err := env.db.catalog().GetByID(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, "sha256:aaa", entry.Digest)
	})

	t.Run("holds the cross-process lock", func(t *testing.T) {
		env := newTestEnv(t)
		locker := &fakeSyncLocker{}
		env.svc.syncLocker = locker
		env.registry.On("ListRepositories", mock.Anything).Return([]string{}, nil)

		_, err := env.svc.Sync(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, locker.acquired)
		assert.Equal(t, 1, locker.released)
	})

	t.Run("lock failure aborts before touching the store", func(t *testing.T) {
		env := newTestEnv(t)
		env.svc.syncLocker = &fakeSyncLocker{err: errors.New("locked elsewhere")}

		_, err := env.svc.Sync(context.Background())

		require.Error(t, err)
		assert.Equal(t, domain.CodePersistenceError, domain.CodeOf(err))
	})
}

func userImage(id, userID string) *domain.LocalImage {
	return &domain.LocalImage{
		ID:       id,
		FullName: "app:1.0",
		Name:     "app",
		Tag:      "1.0",
		Type:     domain.ImageTypeUserOwned,
		UserID:   userID,
	}
}

func TestService_PushToHub(t *testing.T) {
	target := testHost + "/alice/app:1.0"

	t.Run("pushes and records the image", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.localImages = []*domain.LocalImage{userImage("local-1", "alice")}
		env.cache.data[nameKey("alice/app")] = []byte(`[]`)
		env.daemon.On("TagImage", mock.Anything, "app:1.0", target).Return(nil)
		env.daemon.On("PushImage", mock.Anything, target).Return(nil)
		env.daemon.On("RemoveImage", mock.Anything, target).Return(nil)
		env.registry.On("GetDigest", mock.Anything, "alice/app", "1.0").Return("sha256:abc", nil)

		entry, err := env.svc.PushToHub(context.Background(), "local-1", "alice")

		require.NoError(t, err)
		assert.Equal(t, target, entry.FullName)
		assert.Equal(t, "alice/app", entry.Name)
		assert.Equal(t, "alice", entry.UserID)
		assert.Equal(t, "sha256:abc", entry.Digest)
		assert.Equal(t, []string{target}, env.db.fullNames())
		assert.False(t, env.cache.has(nameKey("alice/app")))
	})

	t.Run("unknown local image", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.PushToHub(context.Background(), "missing", "alice")

		assert.Equal(t, domain.CodeImageNotFound, domain.CodeOf(err))
	})

	t.Run("public images are rejected", func(t *testing.T) {
		env := newTestEnv(t)
		img := userImage("local-1", "alice")
		img.Type = domain.ImageTypePublicPulled
		env.db.localImages = []*domain.LocalImage{img}

		_, err := env.svc.PushToHub(context.Background(), "local-1", "alice")

		assert.Equal(t, domain.CodePublicImageUploadRejected, domain.CodeOf(err))
		assert.Empty(t, env.db.fullNames())
	})

	t.Run("another user's image is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.localImages = []*domain.LocalImage{userImage("local-1", "alice")}

		_, err := env.svc.PushToHub(context.Background(), "local-1", "mallory")

		assert.Equal(t, domain.CodePermissionDenied, domain.CodeOf(err))
	})

	t.Run("existing target is rejected before the daemon runs", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.db.localImages = []*domain.LocalImage{userImage("local-1", "alice")}

		_, err := env.svc.PushToHub(context.Background(), "local-1", "alice")

		assert.Equal(t, domain.CodeAlreadyExists, domain.CodeOf(err))
		env.daemon.AssertNotCalled(t, "TagImage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("blank target segments are rejected before the daemon runs", func(t *testing.T) {
		tests := []struct {
			name   string
			userID string
			tag    string
		}{
			{name: "blank tag", userID: "alice", tag: ""},
			{name: "blank user", userID: "", tag: "1.0"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				env := newTestEnv(t)
				img := userImage("local-1", tt.userID)
				img.Tag = tt.tag
				env.db.localImages = []*domain.LocalImage{img}

				_, err := env.svc.PushToHub(context.Background(), "local-1", tt.userID)

				assert.Equal(t, domain.CodePushError, domain.CodeOf(err))
				assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)
				env.daemon.AssertNotCalled(t, "TagImage", mock.Anything, mock.Anything, mock.Anything)
				assert.Empty(t, env.db.fullNames())
			})
		}
	})

	t.Run("daemon push failure leaves the catalog untouched", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.localImages = []*domain.LocalImage{userImage("local-1", "alice")}
		env.daemon.On("TagImage", mock.Anything, "app:1.0", target).Return(nil)
		env.daemon.On("PushImage", mock.Anything, target).Return(networkErr("denied"))

		_, err := env.svc.PushToHub(context.Background(), "local-1", "alice")

		assert.Equal(t, domain.CodePushError, domain.CodeOf(err))
		assert.Empty(t, env.db.fullNames())
	})
}

func TestService_PullFromHub(t *testing.T) {
	fullName := testHost + "/alice/app:1.0"

	t.Run("pulls and records metadata", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		created := time.Date(2023, 12, 24, 8, 0, 0, 0, time.UTC)
		env.daemon.On("PullImage", mock.Anything, fullName).Return(nil)
		env.daemon.On("ListImages", mock.Anything, fullName).Return([]out.ImageFacts{{
			ID:          "sha256:deadbeef",
			Size:        1024,
			VirtualSize: 2048,
			Labels:      map[string]string{"maintainer": "alice"},
			ParentID:    "sha256:parent",
			Created:     created,
		}}, nil)
		env.daemon.On("InspectImage", mock.Anything, fullName).Return(&out.ImageDetail{
			ID:  "sha256:deadbeef",
			Cmd: []string{"/bin/app", "--serve"},
		}, nil)

		img, err := env.svc.PullFromHub(context.Background(), "a")

		require.NoError(t, err)
		assert.Equal(t, domain.ImageTypePublicPulled, img.Type)
		assert.Equal(t, fullName, img.FullName)
		assert.Equal(t, "deadbeef", img.ImageID)
		assert.Equal(t, int64(1024), img.Size)
		assert.Equal(t, "sha256:parent", img.ParentID)
		require.NotNil(t, img.CreateDate)
		assert.True(t, created.Equal(*img.CreateDate))

		var cmd []string
		require.NoError(t, json.Unmarshal([]byte(img.Cmd), &cmd))
		assert.Equal(t, []string{"/bin/app", "--serve"}, cmd)

		stored, err := env.db.localImageStore().GetByFullName(context.Background(), fullName)
		require.NoError(t, err)
		assert.NotNil(t, stored)
	})

	t.Run("invalidates cache keys of the pulled entry", func(t *testing.T) {
		entry := catalogEntry("a", "alice/app", "1.0", "sha256:aaa")
		env := newTestEnv(t, entry)
		cached, err := json.Marshal(entry)
		require.NoError(t, err)
		env.cache.data[idKey("a")] = cached
		env.cache.data[nameKey("alice/app")] = []byte(`[]`)
		env.daemon.On("PullImage", mock.Anything, fullName).Return(nil)
		env.daemon.On("ListImages", mock.Anything, fullName).Return(nil, nil)
		env.daemon.On("InspectImage", mock.Anything, fullName).Return(&out.ImageDetail{ID: "sha256:deadbeef"}, nil)

		_, err = env.svc.PullFromHub(context.Background(), "a")

		require.NoError(t, err)
		assert.False(t, env.cache.has(idKey("a")))
		assert.False(t, env.cache.has(nameKey("alice/app")))
	})

	t.Run("enrichment failure still records the image", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.daemon.On("PullImage", mock.Anything, fullName).Return(nil)
		env.daemon.On("ListImages", mock.Anything, fullName).Return(nil, networkErr("daemon gone"))
		env.daemon.On("InspectImage", mock.Anything, fullName).Return(nil, networkErr("daemon gone"))

		img, err := env.svc.PullFromHub(context.Background(), "a")

		require.NoError(t, err)
		assert.Empty(t, img.ImageID)
		assert.Nil(t, img.CreateDate)
		assert.Len(t, env.db.localImages, 1)
	})

	t.Run("existing local image is rejected", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.db.localImages = []*domain.LocalImage{{ID: "l", FullName: fullName, Type: domain.ImageTypePublicPulled}}

		_, err := env.svc.PullFromHub(context.Background(), "a")

		assert.Equal(t, domain.CodeLocalImageExists, domain.CodeOf(err))
		env.daemon.AssertNotCalled(t, "PullImage", mock.Anything, mock.Anything)
	})

	t.Run("unknown catalog id", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.PullFromHub(context.Background(), "missing")

		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	})

	t.Run("daemon failure", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.daemon.On("PullImage", mock.Anything, fullName).Return(networkErr("manifest unknown"))

		_, err := env.svc.PullFromHub(context.Background(), "a")

		assert.Equal(t, domain.CodePullError, domain.CodeOf(err))
		assert.Empty(t, env.db.localImages)
	})
}

func TestService_DeleteFromHub(t *testing.T) {
	t.Run("deletes from registry and catalog", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.registry.On("DeleteImage", mock.Anything, "alice/app", "sha256:aaa").Return(nil)

		// Warm the cache so invalidation is observable.
		_, err := env.svc.GetByID(context.Background(), "a")
		require.NoError(t, err)
		require.True(t, env.cache.has(idKey("a")))

		err = env.svc.DeleteFromHub(context.Background(), "a")

		require.NoError(t, err)
		assert.Empty(t, env.db.fullNames())
		assert.False(t, env.cache.has(idKey("a")))

		_, err = env.svc.GetByID(context.Background(), "a")
		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	})

	t.Run("entry without digest is an integrity error", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", ""))

		err := env.svc.DeleteFromHub(context.Background(), "a")

		assert.Equal(t, domain.CodeIntegrityError, domain.CodeOf(err))
		assert.ErrorIs(t, err, domain.ErrIncompleteEntry)
		env.registry.AssertNotCalled(t, "DeleteImage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("registry failure keeps the entry", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.registry.On("DeleteImage", mock.Anything, "alice/app", "sha256:aaa").Return(networkErr("unavailable"))

		err := env.svc.DeleteFromHub(context.Background(), "a")

		assert.Equal(t, domain.CodeDeleteError, domain.CodeOf(err))
		assert.Len(t, env.db.fullNames(), 1)
	})

	t.Run("store failure after registry delete is reported", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.db.deleteErr = domain.ErrPersistence
		env.registry.On("DeleteImage", mock.Anything, "alice/app", "sha256:aaa").Return(nil)

		err := env.svc.DeleteFromHub(context.Background(), "a")

		assert.Equal(t, domain.CodeDeleteError, domain.CodeOf(err))
		assert.Len(t, env.db.fullNames(), 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.svc.DeleteFromHub(context.Background(), "missing")

		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	})
}

func TestService_CachedReads(t *testing.T) {
	t.Run("served from cache while the store is down", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))

		first, err := env.svc.GetByID(context.Background(), "a")
		require.NoError(t, err)
		list, err := env.svc.ListByName(context.Background(), "alice/app")
		require.NoError(t, err)
		require.Len(t, list, 1)

		env.db.down = true

		second, err := env.svc.GetByID(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, first, second)

		cached, err := env.svc.ListByName(context.Background(), "alice/app")
		require.NoError(t, err)
		assert.Equal(t, list, cached)
	})

	t.Run("cache failures fall back to the store", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.cache.getErr = fmt.Errorf("%w: connection refused", domain.ErrCache)
		env.cache.setErr = fmt.Errorf("%w: connection refused", domain.ErrCache)

		entry, err := env.svc.GetByID(context.Background(), "a")

		require.NoError(t, err)
		assert.Equal(t, "sha256:aaa", entry.Digest)
		assert.Equal(t, 1, env.cache.sets)
	})

	t.Run("corrupt cache value is ignored", func(t *testing.T) {
		env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		env.cache.data[idKey("a")] = []byte("{not json")

		entry, err := env.svc.GetByID(context.Background(), "a")

		require.NoError(t, err)
		assert.Equal(t, "a", entry.ID)
	})

	t.Run("empty name list is cached", func(t *testing.T) {
		env := newTestEnv(t)

		list, err := env.svc.ListByName(context.Background(), "nobody/none")

		require.NoError(t, err)
		assert.Empty(t, list)
		assert.True(t, env.cache.has(nameKey("nobody/none")))
	})

	t.Run("store failure without cache", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.down = true

		_, err := env.svc.GetByID(context.Background(), "a")

		assert.Equal(t, domain.CodePersistenceError, domain.CodeOf(err))
	})

	t.Run("invalidation during a load skips the write-back", func(t *testing.T) {
		ctx := context.Background()
		db := newFakeDB(catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
		cache := newFakeCache()
		store := &racingCatalog{fakeCatalog: db.catalog()}
		aside := newCacheAside(cache, store, nopMetrics{})
		store.onLoad = func() { aside.invalidate(ctx, "a", "alice/app") }

		entry, err := aside.getByID(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a", entry.ID)
		list, err := aside.listByName(ctx, "alice/app")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		assert.False(t, cache.has(idKey("a")))
		assert.False(t, cache.has(nameKey("alice/app")))
		assert.Zero(t, cache.sets)

		store.onLoad = func() {}
		_, err = aside.getByID(ctx, "a")
		require.NoError(t, err)
		assert.True(t, cache.has(idKey("a")))
	})

	t.Run("invalidate skips blank keys", func(t *testing.T) {
		env := newTestEnv(t)
		env.cache.data[idKey("a")] = []byte(`{}`)
		env.cache.data[nameKey("alice/app")] = []byte(`[]`)

		env.svc.Invalidate(context.Background(), "", "alice/app")

		assert.True(t, env.cache.has(idKey("a")))
		assert.False(t, env.cache.has(nameKey("alice/app")))
	})
}

func TestService_DirectQueries(t *testing.T) {
	env := newTestEnv(t, catalogEntry("a", "alice/app", "1.0", "sha256:aaa"))
	env.registry.On("ListRepositories", mock.Anything).Return([]string{"alice/app"}, nil)
	env.registry.On("ListTags", mock.Anything, "alice/app").Return(nil, networkErr("timeout"))

	exists, err := env.svc.HasExist(context.Background(), testHost+"/alice/app:1.0")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = env.svc.HasExist(context.Background(), testHost+"/alice/app:2.0")
	require.NoError(t, err)
	assert.False(t, exists)

	all, err := env.svc.ListCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	repos, err := env.svc.ListRemoteRepositories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice/app"}, repos)

	_, err = env.svc.ListRemoteTags(context.Background(), "alice/app")
	assert.Equal(t, domain.CodeNetworkError, domain.CodeOf(err))
}

func TestKeyedMutex(t *testing.T) {
	km := keyedMutex{locks: make(map[string]*refMutex)}

	unlock := km.Lock("a")
	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		release := km.Lock("a")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same key acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	// Other keys are independent.
	km.Lock("b")()

	unlock()
	<-acquired
	<-done

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
