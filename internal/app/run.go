// Package app provides the application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bnema/zerowrap"

	// Adapters - Output
	"github.com/bnema/imagehub/internal/adapters/out/cache"
	"github.com/bnema/imagehub/internal/adapters/out/docker"
	"github.com/bnema/imagehub/internal/adapters/out/filelock"
	"github.com/bnema/imagehub/internal/adapters/out/registry"
	"github.com/bnema/imagehub/internal/adapters/out/sqlite"
	"github.com/bnema/imagehub/internal/adapters/out/telemetry"

	// Boundaries
	"github.com/bnema/imagehub/internal/boundaries/in"
	"github.com/bnema/imagehub/internal/boundaries/out"

	// Use cases
	"github.com/bnema/imagehub/internal/usecase/images"
)

// App is the wired application. Close releases every adapter it opened.
type App struct {
	Config  Config
	Service in.CatalogService

	runtime *docker.Runtime
	closers []func(context.Context) error
}

// New opens every adapter named by cfg and wires the catalog service.
// The logger travels in ctx.
func New(ctx context.Context, cfg Config, version string) (*App, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:     "app",
		zerowrap.FieldComponent: "wiring",
	})
	log := zerowrap.FromCtx(ctx)
	a := &App{Config: cfg}

	fail := func(err error) (*App, error) {
		if cerr := a.Close(ctx); cerr != nil {
			log.Warn().Err(cerr).Msg("cleanup after failed startup")
		}
		return nil, err
	}

	mp, shutdownMetrics, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, "imagehub", version)
	if err != nil {
		return fail(log.WrapErr(err, "failed to init telemetry"))
	}
	a.closers = append(a.closers, shutdownMetrics)

	metrics, err := telemetry.NewMetrics(mp)
	if err != nil {
		return fail(log.WrapErr(err, "failed to create metrics"))
	}

	db, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fail(log.WrapErr(err, "failed to open database"))
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })

	kv, err := a.createCache(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	reg, err := registry.NewClient(registry.Config{
		URL:             cfg.Registry.URL,
		Insecure:        cfg.Registry.Insecure,
		Username:        cfg.Registry.Username,
		Password:        cfg.Registry.Password,
		Timeout:         cfg.Registry.Timeout,
		MaxRetries:      cfg.Registry.MaxRetries,
		RetryMaxElapsed: cfg.Registry.RetryMaxElapsed,
	})
	if err != nil {
		return fail(log.WrapErr(err, "failed to create registry client"))
	}

	runtime, err := docker.NewRuntime(docker.Config{
		Host:     cfg.Daemon.Host,
		Timeout:  cfg.Daemon.Timeout,
		Username: cfg.Registry.Username,
		Password: cfg.Registry.Password,
	})
	if err != nil {
		return fail(err)
	}
	a.runtime = runtime
	a.closers = append(a.closers, func(context.Context) error { return runtime.Close() })

	a.Service = images.NewService(images.Dependencies{
		Catalog:     db.Catalog(),
		LocalImages: db.LocalImages(),
		UnitOfWork:  db,
		Registry:    reg,
		Daemon:      runtime,
		Cache:       kv,
		SyncLocker:  filelock.New(filepath.Join(filepath.Dir(cfg.Database.Path), "sync.lock")),
		Metrics:     metrics,
	}, images.Options{BackfillDigests: cfg.Sync.BackfillDigests})

	log.Debug().
		Str("registry", reg.Host()).
		Str("database", cfg.Database.Path).
		Str("cache", cfg.Cache.Backend).
		Msg("application wired")
	return a, nil
}

// createCache returns nil for the none backend; the service then reads the store directly.
func (a *App) createCache(ctx context.Context, cfg Config) (out.Cache, error) {
	switch cfg.Cache.Backend {
	case CacheNone:
		return nil, nil
	case CacheMemcached:
		c, err := cache.NewMemcached(cache.MemcacheConfig{
			Servers: cfg.Cache.Memcached.Servers,
			Timeout: cfg.Cache.Memcached.Timeout,
			Bucket:  cfg.Cache.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create memcached cache: %w", err)
		}
		return c, nil
	default:
		c, err := cache.NewStarskey(ctx, cfg.Cache.Dir, cfg.Cache.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
		return c, nil
	}
}

// Close releases adapters in reverse opening order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve runs Sync immediately and then every sync.interval until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	interval := a.Config.Sync.Interval
	if interval <= 0 {
		return errors.New("sync.interval must be positive to serve")
	}
	ctx = zerowrap.CtxWithField(ctx, "interval", interval.String())
	log := zerowrap.FromCtx(ctx)

	if a.runtime != nil {
		if err := a.runtime.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("docker daemon not reachable, push and pull will fail")
		}
	}

	return serveLoop(ctx, interval, func(ctx context.Context) {
		report, err := a.Service.Sync(ctx)
		if err != nil {
			// Already logged with its code by the service.
			return
		}
		log.Debug().
			Int("add", report.Added).
			Int("delete", report.Deleted).
			Int("error", report.Errored).
			Msg("scheduled sync done")
	})
}

func serveLoop(ctx context.Context, interval time.Duration, tick func(context.Context)) error {
	log := zerowrap.FromCtx(ctx)
	log.Info().Msg("serving periodic sync")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("periodic sync stopped")
			return nil
		case <-ticker.C:
			tick(ctx)
		}
	}
}
