// Package main is the entry point for the projectplane worker.
// The worker hosts the orchestration engine: it pulls command dispatches
// from the durable queue and runs their orchestrations and activities.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"projectplane/internal/azure"
	"projectplane/internal/config"
	"projectplane/internal/logger"
	"projectplane/internal/observability"
	"projectplane/internal/orchestrator"
	"projectplane/internal/provider"
	"projectplane/internal/store/postgres"
	"projectplane/internal/workflow"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: projectplane.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "projectplane-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	engine := workflow.New(store, store, store, store, workflow.Config{
		Concurrency:         cfg.Concurrency,
		PollInterval:        cfg.PollInterval,
		MaxBackoff:          cfg.MaxBackoff,
		HeartbeatInterval:   cfg.HeartbeatInterval,
		VisibilityExtension: cfg.VisibilityExtension,
		SignalPollInterval:  cfg.SignalPollInterval,
		MaxDeliveryAttempts: cfg.MaxDeliveryAttempts,
	}, slogger)

	orchestrator.New(engine, orchestrator.Deps{
		DB:                  store,
		Projects:            store,
		Types:               store,
		Scopes:              store,
		Users:               store,
		TeamCloud:           store,
		Entities:            store,
		Azure:               azure.NewMemoryResourceService(),
		Sender:              provider.NewSender(cfg.ProviderTimeout, slogger),
		MonitorPollInterval: cfg.MonitorPollInterval,
	}, cfg.BaseURL, slogger)

	log.Printf("Worker started with concurrency %d", cfg.Concurrency)
	go func() {
		if err := engine.Run(ctx); err != nil {
			log.Printf("Engine stopped: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	meter := otel.Meter("projectplane-worker")
	_, err = meter.Int64ObservableGauge("projectplane.commands.active",
		metric.WithDescription("Orchestration instances currently running on this worker"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			obs.Observe(engine.InFlight())
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register active commands metric: %v", err)
	}

	// Start a dedicated metrics server on port 6162
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Println("Worker metrics listening on :6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	<-engine.Done()
}
