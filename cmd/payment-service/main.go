package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/FredZ6/cloud-project/internal/payment"
	"github.com/FredZ6/cloud-project/pkg/config"
	"github.com/FredZ6/cloud-project/pkg/consumed"
	"github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/eventbus"
	"github.com/FredZ6/cloud-project/pkg/logger"
	"github.com/FredZ6/cloud-project/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "payment-service"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "payment-service",
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

	for _, spec := range payment.Topology(cfg.Messaging) {
		if err := bus.DeclareRetryTopology(spec); err != nil {
			logg.Error(ctx, "failed to declare retry topology", err)
			os.Exit(1)
		}
	}

	svc, err := payment.NewService(payment.ServiceParams{
		Repo: payment.NewRepository(),
		Cfg:  cfg.Payment,
		Logg: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment service", err)
		os.Exit(1)
	}

	consumers, err := payment.NewConsumers(payment.ConsumersParams{
		DB:     dbClient,
		Svc:    svc,
		Bus:    bus,
		Ledger: consumed.NewLedger(),
		Logg:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payment consumers", err)
		os.Exit(1)
	}
	for _, spec := range consumers.Specs(cfg.Messaging) {
		if err := bus.Consume(ctx, spec); err != nil {
			logg.Error(ctx, "failed to start consumer", err)
			os.Exit(1)
		}
	}

	logCtx := logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "mode": cfg.Payment.Mode})
	logg.Info(logCtx, "payment service running")

	<-ctx.Done()
	logg.Info(context.Background(), "payment service shutting down gracefully")
}
