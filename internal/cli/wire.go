package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/modelrouter/internal/api"
	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/backend/learn"
	"github.com/seantiz/modelrouter/internal/config"
	"github.com/seantiz/modelrouter/internal/jobs"
	"github.com/seantiz/modelrouter/internal/model"
	"github.com/seantiz/modelrouter/internal/router"
	"github.com/seantiz/modelrouter/internal/store"
)

const janitorInterval = time.Minute

// builtins are the learners every App registers.
var builtins = []string{model.BackendLinear, model.BackendMLP, model.BackendKNN}

// App owns every long-lived dependency of the service. Close releases them.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Store      *store.SQLiteStore
	Registry   *backend.Registry
	Router     *router.Router
	Dispatcher *router.Dispatcher
	Jobs       *jobs.Manager

	closers []func() error
}

// NewApp opens the store, builds the built-in learners (restoring any
// persisted artifacts) and wires the router, the job manager and its table.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app := &App{Config: cfg, Logger: logger, Store: db}
	app.closers = append(app.closers, db.Close)

	if err := app.buildBackends(ctx); err != nil {
		app.Close()
		return nil, err
	}

	roles := router.DefaultRoles()
	app.Router, err = router.NewRouter(roles, app.Registry.IDs(), router.DefaultWeights(roles), app.Registry.Catalog(), logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("build router: %w", err)
	}
	app.Dispatcher = router.NewDispatcher(app.Registry, logger)

	table, err := app.openTable(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Jobs = jobs.NewManager(table, app.Registry, db, jobs.Config{
		Retention:     cfg.JobRetention,
		MaxConcurrent: cfg.MaxConcurrentJobs,
		SubmitRate:    cfg.SubmitRate,
		SubmitBurst:   cfg.SubmitBurst,
	}, logger)
	return app, nil
}

func (a *App) buildBackends(ctx context.Context) error {
	data := learn.Synthetic(a.Config.DatasetSamples, a.Config.DatasetSeed)
	a.Registry = backend.NewRegistry(backend.DefaultCatalog())

	models := make(map[string]*learn.Model, len(builtins))
	for _, id := range builtins {
		m, err := learn.New(id, data, a.Store)
		if err != nil {
			return fmt.Errorf("build %s: %w", id, err)
		}
		models[id] = m
		a.Registry.Register(id, m)
	}

	artifacts, err := a.Store.ListArtifacts(ctx)
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}
	for _, art := range artifacts {
		m, ok := models[art.Backend]
		if !ok {
			a.Logger.Warn("ignoring artifact for unknown backend", "backend", art.Backend)
			continue
		}
		if err := m.Restore(*art); err != nil {
			a.Logger.Warn("artifact not restored", "backend", art.Backend, "error", err)
			continue
		}
		a.Logger.Info("model restored", "backend", art.Backend, "trained_at", art.TrainedAt)
	}
	return nil
}

// openTable returns the Redis job table when a URL is configured and an
// in-memory table with a background janitor otherwise.
func (a *App) openTable(ctx context.Context) (jobs.Table, error) {
	if a.Config.RedisURL != "" {
		t, err := jobs.OpenRedisTable(ctx, a.Config.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, t.Close)
		a.Logger.Info("job table", "kind", "redis")
		return t, nil
	}

	t := jobs.NewMemoryTable()
	janitorCtx, cancel := context.WithCancel(context.Background())
	go t.RunJanitor(janitorCtx, janitorInterval, a.Logger)
	a.closers = append(a.closers, func() error { cancel(); return nil })
	a.Logger.Info("job table", "kind", "memory")
	return t, nil
}

// Server builds the HTTP server over the app's dependencies.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Config.ListenAddr, api.Deps{
		Store:        a.Store,
		Registry:     a.Registry,
		Router:       a.Router,
		Dispatcher:   a.Dispatcher,
		Jobs:         a.Jobs,
		ProbeTimeout: a.Config.ProbeTimeout,
	}, a.Logger)
}

// Close waits for in-flight jobs and releases resources in reverse order of
// acquisition.
func (a *App) Close() error {
	if a.Jobs != nil {
		a.Jobs.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
