package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/bootstrap"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/ingest"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/bigquery"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/config"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/db"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/idempotency"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/metrics"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/pubsub"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "collector-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "collector-worker"

	logg = logger.New(logger.Options{
		ServiceName: "collector-worker",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.TrackingSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "tracking subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	store, err := bootstrap.EventStore(ctx, cfg, bqClient, logg)
	requireResource(ctx, logg, "event store", err)

	ingestion, err := bootstrap.NewIngestion(cfg, store, dbClient.DB(), redisClient, metrics.NewCollectorMetrics(prometheus.DefaultRegisterer), logg)
	requireResource(ctx, logg, "collector", err)

	service, err := ingest.NewService(subscription, ingestion.Collector, manager, logg)
	requireResource(ctx, logg, "ingest service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	err = ingestion.Collector.Start(runCtx)
	requireResource(runCtx, logg, "collector flush loop", err)
	defer func() {
		if err := ingestion.Collector.Close(); err != nil {
			logg.Error(ctx, "failed to flush collector", err)
		}
	}()

	logg.Info(runCtx, "collector worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "collector worker failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "collector worker stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
