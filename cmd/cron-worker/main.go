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
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/cron"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/snapshots"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/bigquery"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/config"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/db"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/metrics"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/migrate"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient)
	requireResource(logg, "dev migrations", err)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	requireResource(logg, "bigquery", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery", err)
		}
	}()

	store, err := bootstrap.EventStore(context.Background(), cfg, bqClient, logg)
	requireResource(logg, "event store", err)

	ingestion, err := bootstrap.NewIngestion(cfg, store, dbClient.DB(), redisClient, metrics.NewCollectorMetrics(prometheus.DefaultRegisterer), logg)
	requireResource(logg, "collector", err)
	defer func() {
		if err := ingestion.Collector.Close(); err != nil {
			logg.Error(context.Background(), "error flushing collector", err)
		}
	}()

	engines, err := bootstrap.NewEngines(cfg, store, dbClient.DB(), metrics.NewAnalysisMetrics(prometheus.DefaultRegisterer), logg)
	requireResource(logg, "analytics engines", err)

	expiryJob, err := cron.NewSessionExpiryJob(cron.SessionExpiryJobParams{
		Logger:    logg,
		Collector: ingestion.Collector,
	})
	requireResource(logg, "session expiry job", err)

	snapshotJob, err := cron.NewAnalysisSnapshotJob(cron.AnalysisSnapshotJobParams{
		Logger:    logg,
		Analytics: engines.Analytics,
		Snapshots: snapshots.NewRepository(dbClient.DB()),
		FunnelIDs: cfg.Analytics.SnapshotFunnel,
		Metrics:   cfg.Analytics.SnapshotMetric,
		Preset:    cfg.Analytics.DefaultPreset,
	})
	requireResource(logg, "analysis snapshot job", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey(cfg.Service.Kind), cfg.Cron.LockTTL)
	requireResource(logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, snapshotJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	requireResource(logg, "cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("failed to bootstrap %s", resource), err)
	os.Exit(1)
}
