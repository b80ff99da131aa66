package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/controllers"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/routes"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/bootstrap"
	pkgbigquery "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/bigquery"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/config"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/db"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/metrics"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/migrate"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/redis"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	bqClient, err := pkgbigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := bootstrap.EventStore(ctx, cfg, bqClient, logg)
	requireResource(ctx, logg, "event store", err)

	ingestion, err := bootstrap.NewIngestion(cfg, store, dbClient.DB(), redisClient, metrics.NewCollectorMetrics(reg), logg)
	requireResource(ctx, logg, "collector", err)
	err = ingestion.Collector.Start(ctx)
	requireResource(ctx, logg, "collector flush loop", err)

	engines, err := bootstrap.NewEngines(cfg, store, dbClient.DB(), metrics.NewAnalysisMetrics(reg), logg)
	requireResource(ctx, logg, "analytics engines", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config: cfg,
			Logger: logg,
			Checks: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
				"bigquery": bqClient,
			},
			Idempotency: redisClient,
			Gatherer:    reg,
			Collector:   ingestion.Collector,
			Profiles:    ingestion.Profiles,
			Funnels:     engines.Funnels,
			Analytics:   engines.Analytics,
			Metrics:     engines.Forecast,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(context.WithoutCancel(ctx), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown failed", err)
	}
	// drain buffered events before the stores close
	if err := ingestion.Collector.Close(); err != nil {
		logg.Error(shutdownCtx, "collector close failed", err)
	}
	logg.Info(shutdownCtx, "api server stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
