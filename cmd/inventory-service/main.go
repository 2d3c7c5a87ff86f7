package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/FredZ6/cloud-project/internal/inventory"
	"github.com/FredZ6/cloud-project/pkg/config"
	"github.com/FredZ6/cloud-project/pkg/consumed"
	"github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/eventbus"
	"github.com/FredZ6/cloud-project/pkg/logger"
	"github.com/FredZ6/cloud-project/pkg/metrics"
	"github.com/FredZ6/cloud-project/pkg/migrate"
	"github.com/FredZ6/cloud-project/pkg/outbox"
	"github.com/FredZ6/cloud-project/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "inventory-service"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "inventory-service",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	// The cache is an optimization; the service runs degraded without redis.
	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Warn(context.Background(), "redis unavailable, stock cache disabled")
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus, err := eventbus.New(ctx, cfg.AMQP, cfg.Messaging, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap event bus", err)
		os.Exit(1)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logg.Error(context.Background(), "error closing event bus", err)
		}
	}()

	for _, spec := range inventory.Topology(cfg.Messaging) {
		if err := bus.DeclareRetryTopology(spec); err != nil {
			logg.Error(ctx, "failed to declare retry topology", err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	cacheMetrics := metrics.NewStockCacheMetrics(registry)
	cache := inventory.NewStockCache(redisClient, cfg.Cache, cacheMetrics, logg)

	repo := inventory.NewRepository(dbClient.DB())
	svc, err := inventory.NewService(inventory.ServiceParams{
		DB:    dbClient,
		Repo:  repo,
		Cache: cache,
		Logg:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create inventory service", err)
		os.Exit(1)
	}

	audit, err := inventory.NewAuditService(repo, logg)
	if err != nil {
		logg.Error(ctx, "failed to create audit service", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)

	consumers, err := inventory.NewConsumers(inventory.ConsumersParams{
		DB:     dbClient,
		Svc:    svc,
		Outbox: outboxSvc,
		Ledger: consumed.NewLedger(),
		Logg:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create inventory consumers", err)
		os.Exit(1)
	}
	for _, spec := range consumers.Specs(cfg.Messaging) {
		if err := bus.Consume(ctx, spec); err != nil {
			logg.Error(ctx, "failed to start consumer", err)
			os.Exit(1)
		}
	}

	dispatcher, err := outbox.NewDispatcher(outbox.DispatcherParams{
		Config:    cfg.Outbox,
		Logger:    logg,
		DB:        dbClient,
		Repo:      outboxRepo,
		Publisher: bus,
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox dispatcher", err)
		os.Exit(1)
	}
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "outbox dispatcher stopped unexpectedly", err)
		}
	}()

	routerParams := inventory.RouterParams{
		Logg:     logg,
		Handlers: inventory.NewHandlers(svc, audit, logg),
		DB:       dbClient,
		Bus:      bus,
		Registry: registry,
	}
	// Leave the pinger unset when the cache is down so /healthz reflects only
	// the dependencies actually in use.
	if redisClient != nil {
		routerParams.Redis = redisClient
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:    addr,
		Handler: inventory.NewRouter(routerParams),
	}

	logCtx := logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})
	logg.Info(logCtx, "starting inventory service")

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "inventory service stopped unexpectedly", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "error shutting down http server", err)
	}
	logg.Info(context.Background(), "inventory service shutting down gracefully")
}
