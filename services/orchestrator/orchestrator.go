// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the DimBridge HTTP service.
//
// This package contains the Service type that wires every component of the
// server together: the dataset catalog and cache, the optional dataset
// watcher, the result store, the predicate engine configuration, telemetry
// and the gin router.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12210, DataDir: "./datasets"}
//	svc, err := orchestrator.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/AleutianAI/DimBridge/pkg/telemetry"
	"github.com/AleutianAI/DimBridge/services/dataset"
	"github.com/AleutianAI/DimBridge/services/orchestrator/handlers"
	"github.com/AleutianAI/DimBridge/services/orchestrator/middleware"
	"github.com/AleutianAI/DimBridge/services/orchestrator/observability"
	"github.com/AleutianAI/DimBridge/services/orchestrator/routes"
	"github.com/AleutianAI/DimBridge/services/predicate_engine"
	"github.com/AleutianAI/DimBridge/services/resultstore"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the DimBridge service.
//
// # Description
//
// Service abstracts the server lifecycle so that commands and tests can
// drive it without knowing how components are wired.
//
// # Thread Safety
//
// Run blocks and should only be called once per instance. Router is safe to
// call at any time after New returns.
type Service interface {
	// Run starts the HTTP server and blocks until ctx is cancelled or the
	// server fails.
	//
	// # Description
	//
	// On cancellation the server stops accepting connections and waits up
	// to ShutdownTimeout for in-flight requests. All resources are released
	// before Run returns.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or stops abnormally.
	Run(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases resources without running the server.
	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds service configuration options.
//
// # Description
//
// Every field is optional. Zero values are replaced by applyConfigDefaults.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Persistent result store and a stricter rate limit
//	cfg := Config{
//	    DataDir:           "/srv/datasets",
//	    ResultStorePath:   "/var/lib/dimbridge/results",
//	    RequestsPerSecond: 2,
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int

	// DataDir is the dataset root; one sub-directory per dataset.
	// Default: "./datasets"
	DataDir string

	// ResultStorePath is the BadgerDB directory. Empty keeps results in
	// memory for the lifetime of the process.
	ResultStorePath string

	// DisableResultStore turns off result reuse entirely.
	DisableResultStore bool

	// ResultTTL expires stored results. Default: 7 days
	ResultTTL time.Duration

	// GinMode sets the Gin framework mode: "debug", "release" or "test".
	// Empty leaves the GIN_MODE environment setting in place.
	GinMode string

	// RequestsPerSecond bounds predicate requests. Default: 4. Negative
	// disables limiting.
	RequestsPerSecond float64

	// Burst is the limiter bucket size. Default: ceil(RequestsPerSecond)
	Burst int

	// Workers is the number of goroutines per induction. Default: 1
	Workers int

	// Iterations overrides the engine's default iteration budget.
	Iterations int

	// WatchDatasets invalidates cached datasets when their files change.
	WatchDatasets bool

	// WatchDebounce groups file events. Default: dataset.DefaultDebounce
	WatchDebounce time.Duration

	// ShutdownTimeout bounds graceful shutdown. Default: 15s
	ShutdownTimeout time.Duration

	// Telemetry configures tracing and metrics exporters. A zero value uses
	// telemetry.DefaultConfig().
	Telemetry telemetry.Config

	// Registry receives the service's Prometheus collectors and is served
	// on /metrics. Default: a fresh registry with Go and process collectors.
	Registry *prometheus.Registry

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

const (
	defaultPort              = 12210
	defaultDataDir           = "./datasets"
	defaultRequestsPerSecond = 4
	defaultShutdownTimeout   = 15 * time.Second
	defaultResultTTL         = 7 * 24 * time.Hour
)

// =============================================================================
// Implementation
// =============================================================================

// service implements Service.
//
// # Fields
//
//   - config: Service configuration with defaults applied
//   - router: Gin HTTP engine
//   - cache: Dataset cache shared by all handlers
//   - watcher: Dataset watcher, nil unless WatchDatasets is set
//   - store: Result store, nil when disabled
//   - telemetryShutdown: Flushes exporters on exit
type service struct {
	config            Config
	logger            *slog.Logger
	router            *gin.Engine
	cache             *dataset.Cache
	watcher           *dataset.Watcher
	store             *resultstore.Store
	metrics           *observability.Metrics
	telemetryShutdown func(context.Context) error
	stopWatcher       context.CancelFunc
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a Service with the given configuration.
//
// # Description
//
// New initializes all components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and metrics
//  3. Registers the Prometheus collectors
//  4. Creates the dataset catalog, cache and optional watcher
//  5. Opens the result store
//  6. Sets up HTTP routes
//
// # Inputs
//
//   - ctx: Used for exporter setup and as the parent of the watcher.
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run service
//   - error: Non-nil if any component fails to initialize
func New(ctx context.Context, cfg Config) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	s := &service{config: cfg, logger: cfg.Logger}

	telCfg := cfg.Telemetry
	telCfg.Registerer = cfg.Registry
	shutdown, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetryShutdown = shutdown

	s.metrics = observability.NewMetrics(cfg.Registry)

	catalog := dataset.NewCatalog(cfg.DataDir)
	s.cache = dataset.NewCache(catalog, s.logger)
	s.cache.OnLoad = func(name string, err error) {
		s.metrics.RecordDatasetLoad(err)
	}

	if cfg.WatchDatasets {
		if err := s.initWatcher(ctx); err != nil {
			s.logger.Warn("dataset watcher disabled", "dir", cfg.DataDir, "error", err)
		}
	}

	if !cfg.DisableResultStore {
		if err := s.initStore(); err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to open result store: %w", err)
		}
	}

	s.initRouter()
	s.logger.Info("DimBridge service initialized",
		"data_dir", cfg.DataDir,
		"result_store", cfg.ResultStorePath,
		"workers", cfg.Workers,
	)
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(s.config.Port)),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting DimBridge server", "port", s.config.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down DimBridge server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) Close() error {
	s.cleanup()
	return nil
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.ResultTTL == 0 {
		cfg.ResultTTL = defaultResultTTL
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.WatchDebounce == 0 {
		cfg.WatchDebounce = dataset.DefaultDebounce
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	cfg.Telemetry = telemetryDefaults(cfg.Telemetry)
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// telemetryDefaults fills the empty fields of tc from telemetry.DefaultConfig.
// An unset config takes the defaults wholesale, including OTLPInsecure.
func telemetryDefaults(tc telemetry.Config) telemetry.Config {
	def := telemetry.DefaultConfig()
	if tc.ServiceName == "" && tc.TraceExporter == "" && tc.MetricExporter == "" &&
		tc.OTLPEndpoint == "" && tc.Registerer == nil {
		return def
	}
	if tc.ServiceName == "" {
		tc.ServiceName = def.ServiceName
	}
	if tc.ServiceVersion == "" {
		tc.ServiceVersion = def.ServiceVersion
	}
	if tc.Environment == "" {
		tc.Environment = def.Environment
	}
	if tc.TraceExporter == "" {
		tc.TraceExporter = def.TraceExporter
	}
	if tc.MetricExporter == "" {
		tc.MetricExporter = def.MetricExporter
	}
	if tc.OTLPEndpoint == "" {
		tc.OTLPEndpoint = def.OTLPEndpoint
	}
	return tc
}

// initWatcher starts the dataset watcher under its own cancel function.
func (s *service) initWatcher(ctx context.Context) error {
	w, err := dataset.NewWatcher(s.cache, s.config.WatchDebounce, s.logger)
	if err != nil {
		return err
	}
	w.OnInvalidate = func(names []string) {
		s.logger.Info("datasets changed on disk", "datasets", names)
	}
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := w.Start(watchCtx); err != nil {
		cancel()
		return err
	}
	s.watcher = w
	s.stopWatcher = cancel
	return nil
}

func (s *service) initStore() error {
	storeCfg := resultstore.InMemoryConfig()
	if s.config.ResultStorePath != "" {
		storeCfg = resultstore.DefaultConfig(s.config.ResultStorePath)
	}
	storeCfg.TTL = s.config.ResultTTL
	storeCfg.Logger = s.logger
	store, err := resultstore.Open(storeCfg)
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware(s.config.Telemetry.ServiceName))

	svc := &handlers.PredicateService{
		Cache:   s.cache,
		Store:   s.store,
		Metrics: s.metrics,
		Engine: predicate_engine.Config{
			Workers:    s.config.Workers,
			Iterations: s.config.Iterations,
		},
		Logger: s.logger,
	}
	routes.SetupRoutes(s.router, routes.Deps{
		Service:        svc,
		Limiter:        middleware.NewLimiter(s.config.RequestsPerSecond, s.config.Burst),
		MetricsHandler: promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{}),
	})
}

// cleanup releases all resources held by the service. Safe to call twice.
func (s *service) cleanup() {
	if s.stopWatcher != nil {
		s.stopWatcher()
		s.watcher.Stop()
		s.stopWatcher = nil
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("result store close error", "error", err)
		}
		s.store = nil
	}

	if s.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetryShutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown telemetry", "error", err)
		}
		s.telemetryShutdown = nil
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
