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

	"github.com/FredZ6/cloud-project/internal/order"
	"github.com/FredZ6/cloud-project/pkg/config"
	"github.com/FredZ6/cloud-project/pkg/consumed"
	"github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/eventbus"
	"github.com/FredZ6/cloud-project/pkg/logger"
	"github.com/FredZ6/cloud-project/pkg/migrate"
	"github.com/FredZ6/cloud-project/pkg/outbox"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "order-service"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "order-service",
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

	if err := bus.DeclareQueue(order.QueueInventoryResult, order.BindingInventoryResult); err != nil {
		logg.Error(ctx, "failed to declare inventory result queue", err)
		os.Exit(1)
	}
	if err := bus.DeclareQueue(order.QueuePaymentResult, order.BindingPaymentResult); err != nil {
		logg.Error(ctx, "failed to declare payment result queue", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)
	repo := order.NewRepository(dbClient.DB())

	svc, err := order.NewService(order.ServiceParams{
		DB:     dbClient,
		Repo:   repo,
		Outbox: outboxSvc,
		JWTCfg: cfg.JWT,
		Logg:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create order service", err)
		os.Exit(1)
	}

	saga, err := order.NewSaga(repo, outboxSvc, logg)
	if err != nil {
		logg.Error(ctx, "failed to create order saga", err)
		os.Exit(1)
	}

	consumers, err := order.NewConsumers(order.ConsumersParams{
		DB:     dbClient,
		Saga:   saga,
		Ledger: consumed.NewLedger(),
		Logg:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create order consumers", err)
		os.Exit(1)
	}
	for _, spec := range consumers.Specs() {
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

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: order.NewRouter(order.RouterParams{
			Logg:     logg,
			Handlers: order.NewHandlers(svc, logg),
			DB:       dbClient,
			Bus:      bus,
		}),
	}

	logCtx := logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})
	logg.Info(logCtx, "starting order service")

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "order service stopped unexpectedly", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "error shutting down http server", err)
	}
	logg.Info(context.Background(), "order service shutting down gracefully")
}
