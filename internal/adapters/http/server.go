// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/charttiler/internal/adapters/metrics"
	"github.com/jobrunner/charttiler/internal/application"
	"github.com/jobrunner/charttiler/internal/config"
	"github.com/jobrunner/charttiler/internal/ports/input"
)

// SyncTrigger starts a chart mirror sync on request.
type SyncTrigger interface {
	TriggerSync(ctx context.Context) (application.SyncResult, error)
	RetryAfter() time.Duration
}

// Services are the application services the server exposes.
type Services struct {
	Tiles    input.TileService
	Registry input.ChartRegistry
	Health   input.HealthChecker
	Sync     SyncTrigger        // nil without a chart mirror
	Metrics  *metrics.Collector // nil disables /metrics
	Version  string
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server   *http.Server
	router   *mux.Router
	tiles    input.TileService
	registry input.ChartRegistry
	health   input.HealthChecker
	sync     SyncTrigger
	metrics  *metrics.Collector
	logger   *slog.Logger
	config   config.ServerConfig
	cors     *originPolicy // nil without allowed origins
	openAPI  func() ([]byte, error)

	metricsPath string
}

// NewServer creates a new HTTP server.
func NewServer(cfg config.ServerConfig, svc Services, metricsPath string, logger *slog.Logger) *Server {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	s := &Server{
		tiles:       svc.Tiles,
		registry:    svc.Registry,
		health:      svc.Health,
		sync:        svc.Sync,
		metrics:     svc.Metrics,
		logger:      logger,
		config:      cfg,
		metricsPath: metricsPath,
	}
	s.openAPI = sync.OnceValues(func() ([]byte, error) {
		return openAPIDocument(svc.Version)
	})

	if cfg.CORS.Enabled() {
		s.cors = newOriginPolicy(cfg.CORS.AllowedOrigins)
	}
	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Handle(s.metricsPath, metrics.Handler()).Methods(http.MethodGet)
	}

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()
	// Without its own handler a subrouter reports a method mismatch as 404.
	api.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	// Tile endpoints
	api.HandleFunc("/tiles", s.handleTiles).Methods(http.MethodGet)
	api.HandleFunc("/tiles/data", s.handleTileData).Methods(http.MethodGet)
	api.HandleFunc("/tiles/{z:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}.mvt", s.handleVectorTile).Methods(http.MethodGet)
	api.HandleFunc("/tiles/{id}/settings", s.handleTileSettings).Methods(http.MethodPut)

	// Chart endpoints
	api.HandleFunc("/charts", s.handleListCharts).Methods(http.MethodGet)
	api.HandleFunc("/charts/info", s.handleChartInfo).Methods(http.MethodGet)
	api.HandleFunc("/charts/enabled", s.handleEnableAllCharts).Methods(http.MethodPut)
	api.HandleFunc("/charts/{name}/enabled", s.handleEnableChart).Methods(http.MethodPut)

	// Chart directory endpoints
	api.HandleFunc("/directories", s.handleListDirectories).Methods(http.MethodGet)
	api.HandleFunc("/directories", s.handleLoadDirectory).Methods(http.MethodPost)
	api.HandleFunc("/directories", s.handleUnloadDirectory).Methods(http.MethodDelete)

	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	// Sync endpoint (only if sync service is configured)
	if s.sync != nil {
		api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	}

	// OpenAPI spec
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	// Chart viewer (if enabled)
	if s.config.ViewerEnabled {
		r.HandleFunc("/", s.handleViewer).Methods(http.MethodGet)
	}

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router behind the CORS policy, if one is configured.
func (s *Server) Handler() http.Handler {
	if s.cors == nil {
		return s.router
	}
	return s.cors.wrap(s.router)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// StartTLS starts the HTTPS server with certificates from tlsConfig.
func (s *Server) StartTLS(tlsConfig *tls.Config) error {
	s.logger.Info("starting HTTPS server", "address", s.config.Address())
	s.server.TLSConfig = tlsConfig
	return s.server.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers reach the client through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
