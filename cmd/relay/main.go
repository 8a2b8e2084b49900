// Package main runs the outbox relay on its own, draining committed events
// from PostgreSQL into Redis for API replicas that enable the outbox but
// leave delivery to a dedicated process.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/narvanalabs/resque/internal/events"
	pgqueue "github.com/narvanalabs/resque/internal/queue/postgres"
	"github.com/narvanalabs/resque/internal/relay"
	"github.com/narvanalabs/resque/internal/shutdown"
	pgstore "github.com/narvanalabs/resque/internal/store/postgres"
	"github.com/narvanalabs/resque/pkg/config"
	"github.com/narvanalabs/resque/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		return 1
	}
	level, _ := cfg.Log.SlogLevel()
	log := logger.New(level, cfg.Log.JSON).WithComponent("relay")

	if err := requireTargets(cfg); err != nil {
		log.Error("invalid relay configuration", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.Server.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)

	// Initialize database store
	storeCfg := pgstore.DefaultConfig(cfg.Database.DSN)
	storeCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	storeCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	pg, err := pgstore.NewPostgresStore(storeCfg, log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	coord.Register(shutdown.NewCloserComponent("database", pg))
	if err := pg.Migrate(ctx); err != nil {
		log.Error("failed to migrate schema", "error", err)
		coord.Shutdown()
		return 1
	}

	redis, err := events.NewRedisPublisher(ctx, cfg.Broker.Addr, cfg.Broker.ChannelPrefix, log.Logger)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		coord.Shutdown()
		return 1
	}
	coord.Register(shutdown.NewCloserComponent("redis", redis))

	worker, err := relay.NewWorker(&relay.WorkerConfig{
		Concurrency:  cfg.Outbox.Concurrency,
		MaxAttempts:  cfg.Outbox.MaxRetries,
		PollInterval: cfg.Outbox.PollInterval,
		ErrorBackoff: relay.DefaultWorkerConfig().ErrorBackoff,
	}, pgqueue.NewPostgresQueue(pg.DB(), log.Logger, pgqueue.WithLease(cfg.Outbox.Lease)), redis, log.Logger)
	if err != nil {
		log.Error("failed to create relay worker", "error", err)
		coord.Shutdown()
		return 1
	}
	if err := worker.Start(ctx); err != nil {
		log.Error("failed to start relay worker", "error", err)
		coord.Shutdown()
		return 1
	}
	coord.Register(shutdown.NewWorkerComponent("relay", worker))

	if err := coord.Run(ctx); err != nil {
		log.Error("relay error", "error", err)
		return 1
	}
	log.Info("relay stopped")
	return coord.ExitCode()
}

func requireTargets(cfg *config.Config) error {
	var errs []error
	if cfg.Database.DSN == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if cfg.Broker.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}
	return errors.Join(errs...)
}
