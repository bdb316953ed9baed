package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/jobs"
	"github.com/seantiz/modelrouter/internal/router"
	"github.com/seantiz/modelrouter/internal/store"
)

const (
	shutdownTimeout     = 10 * time.Second
	readHeaderTimeout   = 10 * time.Second
	writeTimeout        = 30 * time.Second
	defaultProbeTimeout = 5 * time.Second
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Store      store.Store
	Registry   *backend.Registry
	Router     *router.Router
	Dispatcher *router.Dispatcher
	Jobs       *jobs.Manager
	// ProbeTimeout bounds the job manager health probe.
	ProbeTimeout time.Duration
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router       *chi.Mux
	store        store.Store
	registry     *backend.Registry
	routing      *router.Router
	dispatcher   *router.Dispatcher
	jobs         *jobs.Manager
	probeTimeout time.Duration
	logger       *slog.Logger
	addr         string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, d Deps, logger *slog.Logger) *Server {
	srv := &Server{
		router:       chi.NewRouter(),
		store:        d.Store,
		registry:     d.Registry,
		routing:      d.Router,
		dispatcher:   d.Dispatcher,
		jobs:         d.Jobs,
		probeTimeout: d.ProbeTimeout,
		logger:       logger,
		addr:         addr,
	}
	if srv.probeTimeout <= 0 {
		srv.probeTimeout = defaultProbeTimeout
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/backends", s.handleListBackends)
		r.Get("/backends/characteristics", s.handleCharacteristics)

		r.Post("/route", s.handleRoute)
		r.Post("/predict", s.handlePredict)
		r.Post("/predict/compare", s.handleCompare)

		r.Post("/train/{backend}", s.handleTrain)
		r.Post("/train/{backend}/async", s.handleTrainAsync)

		r.Get("/jobs/health", s.handleJobsHealth)
		r.Get("/jobs/{id}", s.handleJobStatus)
		r.Get("/jobs/{id}/result", s.handleJobResult)
		r.Get("/jobs/{id}/events", s.handleJobEvents)

		r.Get("/runs", s.handleListRuns)
		r.Get("/stats", s.handleGetStats)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
