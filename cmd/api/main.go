// Package main provides the entry point for the resque API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/narvanalabs/resque/internal/api"
	"github.com/narvanalabs/resque/internal/api/health"
	"github.com/narvanalabs/resque/internal/auth"
	"github.com/narvanalabs/resque/internal/bus"
	"github.com/narvanalabs/resque/internal/events"
	"github.com/narvanalabs/resque/internal/idgen"
	pgqueue "github.com/narvanalabs/resque/internal/queue/postgres"
	"github.com/narvanalabs/resque/internal/relay"
	"github.com/narvanalabs/resque/internal/service"
	"github.com/narvanalabs/resque/internal/shutdown"
	"github.com/narvanalabs/resque/internal/store"
	"github.com/narvanalabs/resque/internal/store/memory"
	pgstore "github.com/narvanalabs/resque/internal/store/postgres"
	"github.com/narvanalabs/resque/internal/telemetry"
	"github.com/narvanalabs/resque/pkg/config"
	"github.com/narvanalabs/resque/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		return 1
	}

	// Initialize logger
	level, _ := cfg.Log.SlogLevel()
	log := logger.New(level, cfg.Log.JSON).WithComponent("api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.Server.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, log.Logger)
	if err != nil {
		log.Error("failed to initialize telemetry", "error", err)
		return 1
	}
	coord.Register(shutdown.NewFuncComponent("telemetry", tel.Shutdown))

	checker := health.NewChecker(api.Version)

	// Initialize storage
	var provider store.Provider
	var pg *pgstore.PostgresStore
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		provider = memory.New()
	} else {
		pg, err = openPostgres(ctx, cfg, log.Logger)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			return 1
		}
		provider = pg
		coord.Register(shutdown.NewCloserComponent("database", pg))
		checker.Register("database", health.PingFunc(pg.DB().PingContext), true)
	}

	// Event delivery
	broker := events.NewBroker(log.Logger)
	var redis *events.RedisPublisher
	if cfg.Broker.Addr != "" {
		redis, err = events.NewRedisPublisher(ctx, cfg.Broker.Addr, cfg.Broker.ChannelPrefix, log.Logger)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			return 1
		}
		if err := redis.Forward(ctx, broker.Publish); err != nil {
			log.Error("failed to subscribe to redis", "error", err)
			return 1
		}
		coord.Register(shutdown.NewFuncComponent("redis", func(context.Context) error {
			cancel()
			return redis.Close()
		}))
		checker.Register("redis", redis, false)
	}

	var sink bus.Sink
	switch {
	case cfg.Outbox.Enabled:
		q := pgqueue.NewPostgresQueue(pg.DB(), log.Logger, pgqueue.WithLease(cfg.Outbox.Lease))
		var target relay.Publisher = events.Relay{Broker: broker}
		if redis != nil {
			target = redis
		}
		worker, err := relay.NewWorker(&relay.WorkerConfig{
			Concurrency:  cfg.Outbox.Concurrency,
			MaxAttempts:  cfg.Outbox.MaxRetries,
			PollInterval: cfg.Outbox.PollInterval,
			ErrorBackoff: relay.DefaultWorkerConfig().ErrorBackoff,
		}, q, target, log.Logger)
		if err != nil {
			log.Error("failed to create relay worker", "error", err)
			return 1
		}
		if err := worker.Start(ctx); err != nil {
			log.Error("failed to start relay worker", "error", err)
			return 1
		}
		coord.Register(shutdown.NewWorkerComponent("relay", worker))
		// The store writes committed events to the outbox itself.
		sink = events.ErrorsOnly{Sink: events.NewOutboxSink(q)}
	case redis != nil:
		sink = redis
	default:
		sink = broker
	}

	// Initialize auth
	hasher, err := auth.NewBcryptHasher(cfg.Security.BcryptCost)
	if err != nil {
		log.Error("failed to create password hasher", "error", err)
		return 1
	}
	tokens := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.Security.JWTSecret),
		TokenExpiry: cfg.Security.JWTExpiry,
	}, log.Logger)

	// Wire handlers onto the bus
	reg := bus.NewRegistry()
	if err := service.Register(reg, service.Dependencies{
		Hasher: hasher,
		IDs:    idgen.UUIDv7{},
		Tokens: tokens,
		Logger: log.Logger,
	}); err != nil {
		log.Error("failed to register handlers", "error", err)
		return 1
	}
	b := bus.New(reg,
		bus.WithSink(sink),
		bus.WithLogger(log.Logger),
		bus.WithTracerProvider(tel.TracerProvider()),
	)

	server := api.NewServer(cfg.Server, api.Dependencies{
		Bus:    b,
		Store:  provider,
		Broker: broker,
		Tokens: tokens,
		Health: checker,
		Logger: log.Logger,
	})
	// Open event streams never go idle on their own.
	server.HTTPServer().RegisterOnShutdown(broker.Close)
	coord.Register(shutdown.NewHTTPServerComponent("http", server.HTTPServer()))

	if err := coord.Run(ctx, server.Start); err != nil {
		log.Error("server error", "error", err)
		return 1
	}

	log.Info("server stopped")
	return coord.ExitCode()
}

func openPostgres(ctx context.Context, cfg *config.Config, log *slog.Logger) (*pgstore.PostgresStore, error) {
	storeCfg := pgstore.DefaultConfig(cfg.Database.DSN)
	storeCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	storeCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	storeCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	storeCfg.Outbox = cfg.Outbox.Enabled

	pg, err := pgstore.NewPostgresStore(storeCfg, log)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return pg, nil
}
