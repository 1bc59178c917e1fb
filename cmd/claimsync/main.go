package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"claimsync/internal/config"
	"claimsync/internal/database"
	"claimsync/internal/database/postgres"
	"claimsync/internal/ledger"
	"claimsync/internal/observability"
	"claimsync/internal/supervisor"
	"claimsync/internal/trigger"
)

func main() {
	cfg := loadConfiguration()
	provider := buildProvider(cfg)

	logger, metrics := provider.Components("main")
	logger.Info(context.Background(), "starting claimsync supervisor", observability.Fields{
		"version":     cfg.Version,
		"environment": cfg.Environment,
	})
	metrics.RecordSuccess("startup")

	db := connectDatabase(cfg, provider)
	defer db.Close()

	sup := buildSupervisor(cfg, db, provider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Startup(ctx); err != nil {
		log.Fatalf("startup reconciliation failed: %v", err)
	}

	stats := ledger.NewRepository(db, provider.Logger("ledger"), provider.Metrics("ledger"))
	api := trigger.NewServer(sup, stats, cfg.HTTP,
		provider.Logger("api"), provider.Metrics("api"))

	errCh := make(chan error, 2)
	go func() { errCh <- api.Start() }()
	go sup.Run(ctx)

	var consumer *trigger.Consumer
	if cfg.Queue.Enabled {
		consumer = trigger.NewConsumer(sup, cfg.Queue,
			provider.Logger("queue"), provider.Metrics("queue"))
		go func() { errCh <- consumer.Start(ctx) }()
	}

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received", nil)
	case err := <-errCh:
		if err != nil {
			logger.Error(context.Background(), "component failed", err, nil)
		}
		stop()
	}

	shutdown(api, consumer, logger)
}

func loadConfiguration() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	return cfg
}

func buildProvider(cfg *config.Config) *observability.DefaultProvider {
	return observability.NewProvider(&observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
		},
	})
}

func connectDatabase(cfg *config.Config, provider observability.Provider) database.Database {
	db, err := postgres.New(&cfg.Database,
		provider.Logger("database"), provider.Metrics("database"))
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	return db
}

func buildSupervisor(cfg *config.Config, db database.Database, provider observability.Provider) *supervisor.Supervisor {
	proc, err := supervisor.NewExecManager(cfg.Supervisor.WorkerBinary)
	if err != nil {
		log.Fatalf("worker binary resolution failed: %v", err)
	}
	return supervisor.New(
		cfg.Supervisor,
		supervisor.NewStore(db),
		proc,
		provider.Logger("supervisor"),
		provider.Metrics("supervisor"),
	)
}

// shutdown drains the outward-facing components with a bounded grace
// period. The supervision loop already interrupted its workers when the
// context was cancelled.
func shutdown(api *trigger.Server, consumer *trigger.Consumer, logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if consumer != nil {
		consumer.Stop()
	}
	if err := api.Stop(ctx); err != nil {
		logger.Error(ctx, "api shutdown failed", err, nil)
	}
	logger.Info(ctx, "supervisor stopped", nil)
	os.Exit(0)
}
