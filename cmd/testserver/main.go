// testserver starts a modelrouter API server with deterministic stub
// backends, for exercising clients without training real models.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/modelrouter/internal/api"
	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/backend/backendtest"
	"github.com/seantiz/modelrouter/internal/jobs"
	"github.com/seantiz/modelrouter/internal/model"
	"github.com/seantiz/modelrouter/internal/router"
	"github.com/seantiz/modelrouter/internal/store"
)

const janitorInterval = time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := ":8080"
	if v := os.Getenv("MODELROUTER_LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	st, err := newStack(addr, jobs.Config{MaxConcurrent: 2}, janitorInterval, logger)
	if err != nil {
		return err
	}
	defer st.close()

	logger.Info("testserver: starting", "addr", addr)
	err = st.srv.Run()
	// Running jobs record into the store, so they finish before it closes.
	st.mgr.Wait()
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// stack is the stub-backed server and everything it owns.
type stack struct {
	srv   *api.Server
	mgr   *jobs.Manager
	table *jobs.MemoryTable
	close func()
}

func newStack(addr string, cfg jobs.Config, sweepEvery time.Duration, logger *slog.Logger) (*stack, error) {
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	reg := backend.NewRegistry(backend.DefaultCatalog())
	// mlp and linear start trained; knn must be trained through the API.
	reg.Register(model.BackendMLP, backendtest.NewTrained(212500))
	reg.Register(model.BackendLinear, backendtest.NewTrained(198000))
	reg.Register(model.BackendKNN, &backendtest.Stub{
		Value:     205000,
		Steps:     10,
		StepDelay: 200 * time.Millisecond,
	})

	roles := router.DefaultRoles()
	rt, err := router.NewRouter(roles, reg.IDs(), router.DefaultWeights(roles), reg.Catalog(), logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build router: %w", err)
	}

	table := jobs.NewMemoryTable()
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go table.RunJanitor(janitorCtx, sweepEvery, logger)

	mgr := jobs.NewManager(table, reg, db, cfg, logger)
	srv := api.NewServer(addr, api.Deps{
		Store:      db,
		Registry:   reg,
		Router:     rt,
		Dispatcher: router.NewDispatcher(reg, logger),
		Jobs:       mgr,
	}, logger)

	return &stack{
		srv:   srv,
		mgr:   mgr,
		table: table,
		close: func() {
			stopJanitor()
			if err := db.Close(); err != nil {
				logger.Warn("close database", "error", err)
			}
		},
	}, nil
}
