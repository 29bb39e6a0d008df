// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compliance assembles the fleet compliance service.
//
// This package owns the composition root: it opens the record store, builds
// every domain service on top of it, registers the background jobs and
// mounts the HTTP API.
//
// # Usage
//
//	cfg, err := config.Load("vroomx.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := compliance.New(ctx, cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run(ctx))
//
// # Extension Points
//
// ServiceOptions may replace the token validator, the permission check or
// add a second audit sink. Nil members keep the built-in implementations.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/audit"
	"github.com/AleutianAI/vroomx/services/compliance/auth"
	"github.com/AleutianAI/vroomx/services/compliance/blobs"
	"github.com/AleutianAI/vroomx/services/compliance/checklists"
	"github.com/AleutianAI/vroomx/services/compliance/clearinghouse"
	"github.com/AleutianAI/vroomx/services/compliance/config"
	"github.com/AleutianAI/vroomx/services/compliance/dataq"
	"github.com/AleutianAI/vroomx/services/compliance/documents"
	"github.com/AleutianAI/vroomx/services/compliance/export"
	"github.com/AleutianAI/vroomx/services/compliance/jobs"
	"github.com/AleutianAI/vroomx/services/compliance/letters"
	"github.com/AleutianAI/vroomx/services/compliance/middleware"
	"github.com/AleutianAI/vroomx/services/compliance/observability"
	"github.com/AleutianAI/vroomx/services/compliance/retention"
	"github.com/AleutianAI/vroomx/services/compliance/routes"
	"github.com/AleutianAI/vroomx/services/compliance/scoring"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
	"github.com/AleutianAI/vroomx/services/compliance/tasks"
	"github.com/AleutianAI/vroomx/services/compliance/timeseries"
)

// serviceName tags traces and the otelgin middleware.
const serviceName = "vroomx-compliance"

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

// =============================================================================
// Components
// =============================================================================

// Components holds every domain service built over one record store.
//
// # Description
//
// Components is what the HTTP service and the one-shot CLI commands share.
// Opening it does not start any background work; the job scheduler and the
// maintenance watcher belong to Service.
//
// # Thread Safety
//
// All members are safe for concurrent use. Close must be called once.
type Components struct {
	Config   config.Config
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	DB   *storage.DB
	Repo *storage.Repository

	Audit         *audit.Logger
	Tokens        *auth.TokenIssuer
	Auth          *auth.Service
	LoginLimiter  *auth.LoginLimiter
	DataQ         *dataq.Service
	Clearinghouse *clearinghouse.Service
	Tasks         *tasks.Service
	Generator     *tasks.Generator
	Checklists    *checklists.Service
	Documents     *documents.Service
	Scoring       *scoring.Service
	Exporter      *export.Exporter
	Purger        *retention.Purger

	closers []func() error
}

// Open builds the components described by cfg.
//
// # Description
//
// Opens BadgerDB (in memory when cfg.Storage.InMemory), selects the blob
// store (GCS when a bucket is configured), the letter writer (OpenAI with a
// template fallback when a key is configured) and the score history sink
// (InfluxDB when a URL is configured). Partially built components are
// closed on failure.
//
// # Inputs
//
//   - ctx: Used for the GCS client and the audit chain head lookup.
//   - cfg: Configuration. Must pass cfg.Validate().
//
// # Outputs
//
//   - *Components: Ready to use. Call Close when done.
//   - error: Non-nil if any dependency cannot be opened.
func Open(ctx context.Context, cfg config.Config) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	c := &Components{Config: cfg, Registry: prometheus.NewRegistry()}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = observability.NewMetrics(c.Registry)

	if err := c.openStorage(); err != nil {
		return nil, err
	}

	var err error
	c.Audit, err = audit.NewLogger(ctx, c.Repo, cfg.Audit.LogPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	c.closers = append(c.closers, c.Audit.Close)

	c.Tokens, err = auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTTTL, c.Repo.Now)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	c.Auth = auth.NewService(c.Repo, c.Tokens, c.Audit)
	c.LoginLimiter = auth.NewLoginLimiter(c.Repo.Now)

	store, err := c.openBlobs(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.DataQ = dataq.NewService(c.Repo, c.letterWriter(), c.Metrics)
	c.Clearinghouse = clearinghouse.NewService(c.Repo, c.Metrics)
	c.Tasks = tasks.NewService(c.Repo)
	c.Generator = tasks.NewGenerator(c.Repo, c.Metrics)
	c.Checklists = checklists.NewService(c.Repo)
	c.Documents = documents.NewService(c.Repo, store)
	c.Scoring = scoring.NewService(c.Repo, c.Metrics, c.scoreSink(ctx))
	c.Exporter = export.NewExporter(c.Repo)
	c.Purger = retention.NewPurger(c.Repo, c.Audit, c.Metrics)

	return c, nil
}

// Close releases everything Open acquired, newest first.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Components) openStorage() error {
	dbCfg := storage.DefaultConfig()
	dbCfg.Path = c.Config.Storage.DataDir
	dbCfg.InMemory = c.Config.Storage.InMemory
	dbCfg.Logger = slog.Default()
	if dbCfg.InMemory {
		dbCfg = storage.InMemoryConfig()
		slog.Warn("Record store is in memory, data will not survive a restart")
	}

	db, err := storage.OpenDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)
	c.Repo = storage.NewRepository(db, time.Now)
	slog.Info("Record store opened", "path", db.Path(), "in_memory", db.InMemory())
	return nil
}

func (c *Components) openBlobs(ctx context.Context) (blobs.Store, error) {
	bc := c.Config.Blobs
	if bc.GCSBucket != "" {
		gcs, err := blobs.NewGCSStore(ctx, bc.GCSBucket, bc.GCSCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open GCS bucket %s: %w", bc.GCSBucket, err)
		}
		c.closers = append(c.closers, gcs.Close)
		slog.Info("Document store uses GCS", "bucket", bc.GCSBucket)
		return gcs, nil
	}
	local, err := blobs.NewLocalStore(bc.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload directory: %w", err)
	}
	slog.Info("Document store uses local disk", "dir", bc.LocalDir)
	return local, nil
}

func (c *Components) letterWriter() letters.Writer {
	template := letters.TemplateWriter{Now: c.Repo.Now}
	oc := c.Config.OpenAI
	if oc.APIKey == "" {
		slog.Info("OpenAI key not set, DataQ letters use the built-in template")
		return template
	}
	return letters.Fallback{
		Primary:   letters.NewOpenAIWriter(oc.APIKey, oc.Model, oc.BaseURL),
		Secondary: template,
	}
}

// scoreSink returns nil when InfluxDB is not configured. An unreachable
// server is logged and still used; writes are best effort.
func (c *Components) scoreSink(ctx context.Context) scoring.Sink {
	ic := c.Config.Influx
	if ic.URL == "" {
		return nil
	}
	sink := timeseries.NewInfluxSink(ic.URL, ic.Token, ic.Org, ic.Bucket)
	c.closers = append(c.closers, func() error {
		sink.Close()
		return nil
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sink.Ping(pingCtx); err != nil {
		slog.Warn("InfluxDB not reachable, score history export may fail", "url", ic.URL, "error", err)
	} else {
		slog.Info("Score history exported to InfluxDB", "url", ic.URL, "bucket", ic.Bucket)
	}
	return sink
}

// =============================================================================
// Service
// =============================================================================

// Service is the running HTTP service.
//
// # Description
//
// Service adds the HTTP router, the job scheduler, the maintenance watcher
// and tracing to Components.
//
// # Thread Safety
//
// Run must be called at most once. Router is safe to call at any time.
type Service struct {
	*Components

	opts          extensions.ServiceOptions
	router        *gin.Engine
	scheduler     *jobs.Scheduler
	maintenance   *middleware.Maintenance
	tracerCleanup func(context.Context)
}

// New creates the service.
//
// # Description
//
// New opens the components, initializes tracing when enabled, registers
// the compliance jobs and builds the router. Nothing listens and no job
// runs until Run is called.
//
// # Inputs
//
//   - ctx: Used during construction only.
//   - cfg: Configuration.
//   - opts: Optional overrides. May be nil.
//
// # Outputs
//
//   - *Service: Ready to Run.
//   - error: Non-nil if initialization fails. Nothing is left open.
func New(ctx context.Context, cfg config.Config, opts *extensions.ServiceOptions) (*Service, error) {
	comps, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Service{Components: comps}
	s.applyOptions(opts)

	if cfg.Tracing.Enabled {
		cleanup, err := initTracer(ctx, cfg.Tracing)
		if err != nil {
			comps.Close()
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	s.maintenance, err = middleware.NewMaintenance(cfg.Maintenance.File)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load maintenance file: %w", err)
	}

	s.scheduler = jobs.NewScheduler(s.Metrics, s.Repo.Now)
	if cfg.Jobs.Enabled {
		err := jobs.Register(s.scheduler, jobs.Deps{
			Generator: s.Generator,
			Tasks:     s.Tasks,
			Documents: s.Documents,
			Scores:    s.Scoring,
			Retention: s.Purger,
			Limiter:   s.LoginLimiter,
		}, jobs.Config{
			TaskHour:      cfg.Jobs.TaskHour,
			ScoreInterval: cfg.Jobs.ScoreInterval,
			RetentionHour: cfg.Jobs.RetentionHour,
		})
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to register jobs: %w", err)
		}
	}

	s.initRouter()
	return s, nil
}

// applyOptions fills the extension points. The built-in auth service
// validates tokens and the role table authorizes unless opts override them.
func (s *Service) applyOptions(opts *extensions.ServiceOptions) {
	s.opts = extensions.ServiceOptions{
		AuthProvider:  s.Auth,
		AuthzProvider: auth.Authorizer{},
		AuditLogger:   s.Audit,
	}
	if opts == nil {
		return
	}
	if opts.AuthProvider != nil {
		s.opts.AuthProvider = opts.AuthProvider
	}
	if opts.AuthzProvider != nil {
		s.opts.AuthzProvider = opts.AuthzProvider
	}
	if opts.AuditLogger != nil {
		s.Audit.AddSink(opts.AuditLogger)
	}
}

func (s *Service) initRouter() {
	gin.SetMode(s.Config.Server.GinMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	if s.Config.Tracing.Enabled {
		s.router.Use(otelgin.Middleware(serviceName))
	}
	if s.Config.Metrics.Enabled {
		s.router.Use(middleware.Metrics(s.Metrics))
	}
	s.router.Use(
		s.maintenance.Middleware(),
		middleware.ErrorHandler(s.Config.Server.GinMode == gin.ReleaseMode),
	)

	routes.SetupRoutes(s.router, routes.Deps{
		Repo:          s.Repo,
		Auth:          s.Auth,
		AuthProvider:  s.opts.AuthProvider,
		Authz:         s.opts.AuthzProvider,
		LoginLimiter:  s.LoginLimiter,
		Audit:         s.Audit,
		DataQ:         s.DataQ,
		Clearinghouse: s.Clearinghouse,
		Tasks:         s.Tasks,
		Checklists:    s.Checklists,
		Documents:     s.Documents,
		Scoring:       s.Scoring,
		Exporter:      s.Exporter,
		Maintenance:   s.maintenance,
		Gatherer:      s.Registry,
	})
}

// Router returns the configured engine for tests.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
//
// # Description
//
// Starts the maintenance watcher and the job scheduler, then listens on
// the configured port. When ctx ends, in-flight requests get
// shutdownTimeout to finish before everything is closed.
//
// # Outputs
//
//   - error: Non-nil if the listener fails. A clean shutdown returns nil.
func (s *Service) Run(ctx context.Context) error {
	defer s.cleanup()

	if err := s.maintenance.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch maintenance file: %w", err)
	}
	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting compliance server", "port", s.Config.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down compliance server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Close releases the service without running it.
func (s *Service) Close() error {
	return s.cleanup()
}

func (s *Service) cleanup() error {
	var errs []error
	if s.scheduler != nil {
		errs = append(errs, s.scheduler.Stop())
	}
	if s.maintenance != nil {
		errs = append(errs, s.maintenance.Stop())
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
	errs = append(errs, s.Components.Close())
	return errors.Join(errs...)
}

// initTracer installs the configured span exporter as the global tracer
// provider.
//
// # Limitations
//
//   - The OTLP exporter uses an insecure gRPC connection (appropriate for
//     internal networks)
func initTracer(ctx context.Context, tc config.TracingConfig) (func(context.Context), error) {
	var (
		exporter sdktrace.SpanExporter
		conn     *grpc.ClientConn
		err      error
	)
	switch tc.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	default:
		conn, err = grpc.NewClient(tc.Endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	slog.Info("Tracing enabled", "exporter", tc.Exporter, "endpoint", tc.Endpoint)

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		if conn != nil {
			_ = conn.Close()
		}
	}
	return cleanup, nil
}
