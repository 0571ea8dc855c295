package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sajjad-MoBe/walstore/internal/shared"
	"github.com/sajjad-MoBe/walstore/internal/tracing"
)

// KeyValueStore is the store surface the HTTP API serves
type KeyValueStore interface {
	Put(ctx context.Context, txnID, key string, value json.RawMessage) (uint64, error)
	Delete(ctx context.Context, txnID, key string) (uint64, bool, error)
	Get(key string) (json.RawMessage, bool)
	Keys() []string
	Len() int
}

// LogInfo describes the write-ahead log behind the store
type LogInfo interface {
	Path() string
	LastSequence() uint64
	Err() error
}

// Option configures a Server
type Option func(*Server)

func WithLogger(l *shared.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry registers request metrics with reg and serves gatherer's
// contents on /metrics.
func WithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.registerer = reg
		s.gatherer = gatherer
	}
}

func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	store      KeyValueStore
	log        LogInfo
	logger     *shared.Logger
	metrics    *Metrics
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	tracer     *tracing.Tracer
	health     *HealthManager
	httpServer *http.Server
}

// NewServer creates a new API server instance
func NewServer(store KeyValueStore, log LogInfo, opts ...Option) *Server {
	s := &Server{
		router: mux.NewRouter(),
		store:  store,
		log:    log,
		logger: shared.DefaultLogger,
		health: NewHealthManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields(map[string]interface{}{"component": "http"})
	s.metrics = NewMetrics(s.registerer)
	s.health.RegisterChecker("wal", NewLogHealthChecker(log))
	s.health.RegisterChecker("store", NewStoreHealthChecker(store))
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.LoggingMiddleware, s.RecoveryMiddleware, s.metrics.MetricsMiddleware)
	if s.tracer != nil {
		s.router.Use(s.tracer.Middleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/keys", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/keys/{key}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/keys/{key}", s.handlePut).Methods(http.MethodPut)
	api.HandleFunc("/keys/{key}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/wal", s.handleWAL).Methods(http.MethodGet)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Handler returns the router with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP server listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
