// Package main is the entry point for the projectplane controller.
// The controller serves the tenant-facing HTTP API: it validates requests,
// durably accepts commands, and answers status queries. Orchestrations run
// on the worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"projectplane/internal/azure"
	"projectplane/internal/config"
	"projectplane/internal/controller"
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

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	// Setup Database
	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "projectplane-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
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

	// Use an Observable Gauge (Async) that queries the DB only when scraped.
	meter := otel.Meter("projectplane-controller")
	_, err = meter.Int64ObservableGauge("projectplane.commands.pending",
		metric.WithDescription("Current number of command dispatches in the queue"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := store.Count(ctx)
			if err != nil {
				log.Printf("Failed to count queue depth: %v", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register queue depth metric: %v", err)
	}

	// The controller shares the engine's durable-start path with the worker
	// but never runs the dispatch loop; the worker picks the instances up.
	engine := workflow.New(store, store, store, store, workflow.Config{
		Concurrency:         cfg.Concurrency,
		PollInterval:        cfg.PollInterval,
		MaxBackoff:          cfg.MaxBackoff,
		HeartbeatInterval:   cfg.HeartbeatInterval,
		VisibilityExtension: cfg.VisibilityExtension,
		SignalPollInterval:  cfg.SignalPollInterval,
		MaxDeliveryAttempts: cfg.MaxDeliveryAttempts,
	}, slogger)

	commands := orchestrator.New(engine, orchestrator.Deps{
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

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, store, commands, controller.Options{
		RequestsPerSecond: cfg.RateLimitPerSecond,
		RequestBurst:      cfg.RateLimitBurst,
		SystemSecret:      cfg.SystemSecret,
	}, metricsHandler, slogger)

	go func() {
		log.Printf("ProjectPlane Controller starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}
