package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/TanviPoddar/CodeGenie/internal/assist"
	"github.com/TanviPoddar/CodeGenie/internal/backend"
	"github.com/TanviPoddar/CodeGenie/internal/pipeline"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 90 * time.Second
)

// Server wraps the chi router and application dependencies.
type Server struct {
	router    *chi.Mux
	pipeline  *pipeline.Orchestrator
	registry  *backend.Registry
	assistant *assist.Assistant
	logger    *zap.SugaredLogger
	addr      string

	// defaultBackend serves executions that do not name a backend.
	defaultBackend string
}

// NewServer creates and configures a new HTTP server. defaultBackend names
// the execution backend used when a request names none. assistant may be
// nil, in which case the assist endpoints answer 503.
func NewServer(addr string, p *pipeline.Orchestrator, reg *backend.Registry, defaultBackend string, assistant *assist.Assistant, logger *zap.SugaredLogger) *Server {
	srv := &Server{
		router:         chi.NewRouter(),
		pipeline:       p,
		registry:       reg,
		assistant:      assistant,
		logger:         logger,
		addr:           addr,
		defaultBackend: defaultBackend,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
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

	s.router.Get("/v1/languages", s.handleListLanguages)
	s.router.Get("/v1/backends", s.handleListBackends)
	s.router.Get("/v1/stats", s.handleGetStats)
	s.router.Post("/v1/executions", s.handleExecute)

	s.router.Route("/v1/builds", func(r chi.Router) {
		r.Post("/", s.handleStartBuild)
		r.Get("/", s.handleListBuilds)
		r.Get("/{id}", s.handleGetBuild)
		r.Get("/{id}/events", s.handleStreamEvents)
		r.Get("/{id}/ws", s.handleWebSocket)
	})

	s.router.Route("/v1/assist", func(r chi.Router) {
		r.Post("/tests", s.handleGenerateTests)
		r.Post("/debug", s.handleDebugCode)
		r.Post("/generate", s.handleGenerateCode)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP until ctx is canceled, then drains open requests.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Infow("shutting down http server")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Infow("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
