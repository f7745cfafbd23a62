// Package server wires the psymarket components into a ready HTTP server.
//
// Usage:
//
//	srv, err := server.New(ctx, config.Load())
//	http.ListenAndServe(":8080", srv.Handler)
//	defer srv.Close(ctx)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/agentoven/psymarket/internal/api"
	"github.com/agentoven/psymarket/internal/api/handlers"
	"github.com/agentoven/psymarket/internal/config"
	"github.com/agentoven/psymarket/internal/drivers"
	"github.com/agentoven/psymarket/internal/invoker"
	"github.com/agentoven/psymarket/internal/metrics"
	"github.com/agentoven/psymarket/internal/notify"
	"github.com/agentoven/psymarket/internal/orchestrator"
	"github.com/agentoven/psymarket/internal/pipeline"
	"github.com/agentoven/psymarket/internal/providers"
	"github.com/agentoven/psymarket/internal/quality"
	"github.com/agentoven/psymarket/internal/retention"
	"github.com/agentoven/psymarket/internal/store"
	"github.com/agentoven/psymarket/internal/telemetry"
	"github.com/agentoven/psymarket/internal/workflow"
	"github.com/agentoven/psymarket/pkg/models"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized analysis service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Engine runs analyses in the background.
	Engine *workflow.Engine

	// Store keeps analysis runs.
	Store store.AnalysisStore

	// Port is the port the server should listen on.
	Port int

	notifier          *notify.Service
	stopJanitor       context.CancelFunc
	janitorDone       <-chan struct{}
	shutdownTelemetry func(context.Context) error
}

var initTelemetry = telemetry.Init

// New initializes every component from cfg and returns a ready Server.
// The trace exporter is shut down again when any later step fails.
func New(ctx context.Context, cfg *config.Config) (_ *Server, err error) {
	shutdown, err := initTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err != nil {
			if serr := shutdown(context.Background()); serr != nil {
				log.Warn().Err(serr).Msg("Failed to stop telemetry after start-up error")
			}
		}
	}()

	registry, err := providers.Load(cfg.Providers.File)
	if err != nil {
		return nil, fmt.Errorf("load provider table: %w", err)
	}
	log.Info().
		Int("providers", len(registry.All())).
		Int("classes", len(registry.Classes())).
		Msg("✅ Provider registry initialized")

	m := metrics.Default()

	client := &http.Client{Timeout: cfg.Providers.Timeout}
	inv := invoker.New(config.EnvSecrets{},
		invoker.WithDrivers(drivers.All(client)...),
		invoker.WithTimeout(cfg.Providers.Timeout),
		invoker.WithRateLimit(cfg.Providers.RateLimit, cfg.Providers.Burst),
	)
	orch := orchestrator.New(registry, inv, orchestrator.WithObserver(m.ObserveAttempt))
	log.Info().Msg("✅ Backup orchestrator initialized")

	validator := quality.NewValidator(cfg.Pipeline.QualityThreshold, cfg.Pipeline.MinReportLength)
	pipe := pipeline.New(orch, validator, pipeline.Config{
		MaxQualityIterations: cfg.Pipeline.MaxQualityIterations,
		PhaseRetries:         cfg.Pipeline.PhaseRetries,
		PhaseRetryDelay:      cfg.Pipeline.PhaseRetryDelay,
		Primaries:            registry.Primaries(),
		OnPhase:              m.ObservePhase,
	})

	runStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var janitorOpts []retention.Option
	archiver, err := openArchiver(ctx, cfg.Retention)
	if err != nil {
		runStore.Close()
		return nil, err
	}
	if archiver != nil {
		janitorOpts = append(janitorOpts, retention.WithArchiver(archiver))
		log.Info().Str("kind", archiver.Kind()).Msg("✅ Run archiver initialized")
	}
	janitor := retention.NewJanitor(runStore, cfg.Retention.RunTTL, cfg.Retention.Interval, janitorOpts...)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		janitor.Start(janitorCtx)
	}()

	notifier := notify.NewService(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret)
	engine := workflow.NewEngine(runStore, pipe,
		workflow.WithNotifier(notifier),
		workflow.WithObserver(m),
	)
	log.Info().Msg("✅ Analysis engine initialized")

	h := handlers.New(engine, runStore, orch)
	router := api.NewRouter(cfg, h, m)

	if status := orch.Status(); status.OverallHealth != models.HealthHealthy {
		log.Warn().Str("health", string(status.OverallHealth)).Msg("Some service classes have no configured provider")
	}

	return &Server{
		Handler:           router,
		Engine:            engine,
		Store:             runStore,
		Port:              cfg.Port,
		notifier:          notifier,
		stopJanitor:       stopJanitor,
		janitorDone:       janitorDone,
		shutdownTelemetry: shutdown,
	}, nil
}

// Close cancels running analyses, waits for pending webhooks, flushes the
// run store and stops the trace exporter.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	s.stopJanitor()
	<-s.janitorDone
	if err := s.Engine.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown engine: %w", err))
	}
	s.notifier.Close()
	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := s.shutdownTelemetry(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	return errors.Join(errs...)
}

// openStore picks PostgreSQL when DATABASE_URL is set, else the in-memory
// store with optional snapshots.
func openStore(ctx context.Context, cfg *config.Config) (store.AnalysisStore, error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open run store: %w", err)
		}
		return pg, nil
	}
	s := store.NewMemoryStore(cfg.DataDir)
	if cfg.DataDir != "" {
		log.Info().Str("data_dir", cfg.DataDir).Msg("✅ Run store initialized with snapshots")
	} else {
		log.Info().Msg("✅ In-memory run store initialized")
	}
	return s, nil
}

func openArchiver(ctx context.Context, cfg config.RetentionConfig) (retention.Archiver, error) {
	switch {
	case cfg.S3Bucket != "":
		a, err := retention.NewS3Archiver(ctx, retention.S3Config{
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Compress: cfg.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 archive: %w", err)
		}
		return a, nil
	case cfg.ArchiveDir != "":
		a := retention.NewLocalFileArchiver(cfg.ArchiveDir, cfg.Compress)
		if err := a.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("archive dir: %w", err)
		}
		return a, nil
	}
	return nil, nil
}
