// Package bootstrap assembles the services shared by the binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/analytics"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/cohorts"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/collector"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events/bqstore"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/forecast"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/funnels"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/sessions"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/userprops"
	pkgbigquery "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/bigquery"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/config"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/metrics"
	pkgredis "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/redis"
)

// EventStore opens the BigQuery backed event table, creating it on first use.
func EventStore(ctx context.Context, cfg *config.Config, client *pkgbigquery.Client, logg *logger.Logger) (*bqstore.Store, error) {
	store, err := bqstore.New(client, bqstore.Config{
		Table:        cfg.BigQuery.EventsTable,
		QueryTimeout: cfg.Analytics.QueryTimeout,
		Retry: bqstore.RetryPolicy{
			MaxAttempts:    cfg.BigQuery.MaxAttempts,
			InitialBackoff: cfg.BigQuery.InitialBackoff,
			MaximumBackoff: cfg.BigQuery.MaximumBackoff,
		},
		BreakerFailures:  cfg.BigQuery.BreakerFailures,
		BreakerOpenDelay: cfg.BigQuery.BreakerOpenDelay,
	}, logg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("events table: %w", err)
	}
	return store, nil
}

// Ingestion bundles the collector with the profile store it enriches from.
type Ingestion struct {
	Collector *collector.Collector
	Sessions  *sessions.Manager
	Profiles  *userprops.CachedStore
}

// NewIngestion wires sessions, user profiles and rules into a collector.
// The caller owns Start and Close.
func NewIngestion(cfg *config.Config, store events.Store, db *gorm.DB, redisClient *pkgredis.Client, m *metrics.CollectorMetrics, logg *logger.Logger) (*Ingestion, error) {
	sessionStore, err := sessions.NewRedisStore(redisClient, cfg.Collector.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	manager, err := sessions.NewManager(sessionStore, cfg.Collector.SessionGap, logg)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	profiles, err := userprops.NewCachedStore(userprops.NewRepository(db), redisClient, cfg.Collector.ProfileCacheTTL, logg)
	if err != nil {
		return nil, fmt.Errorf("profile store: %w", err)
	}
	rules, err := collector.LoadRules(cfg.Collector.RulesFile)
	if err != nil {
		return nil, err
	}

	c, err := collector.New(collector.Config{
		MaxPropertiesBytes: cfg.Collector.MaxPropertiesBytes,
		Buffer: collector.BufferConfig{
			BatchSize:     cfg.Collector.BatchSize,
			FlushInterval: cfg.Collector.FlushInterval,
			FlushTimeout:  cfg.Collector.FlushTimeout,
		},
	}, collector.Deps{
		Store:    store,
		Sessions: manager,
		Profiles: profiles,
		Rules:    rules,
		Metrics:  m,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("collector: %w", err)
	}
	return &Ingestion{Collector: c, Sessions: manager, Profiles: profiles}, nil
}

// Engines holds the analysis services built over one event store.
type Engines struct {
	Funnels   *funnels.Service
	Cohorts   *cohorts.Service
	Forecast  *forecast.Service
	Analytics analytics.Service
}

// NewEngines builds the funnel, cohort and forecast engines and the facade over them.
func NewEngines(cfg *config.Config, store events.Store, db *gorm.DB, m *metrics.AnalysisMetrics, logg *logger.Logger) (*Engines, error) {
	funnelSvc, err := funnels.NewService(funnels.NewRepository(db), store, funnels.Config{
		QueryTimeout: cfg.Analytics.QueryTimeout,
		FrictionGap:  cfg.Analytics.FrictionGap,
	}, m, logg)
	if err != nil {
		return nil, fmt.Errorf("funnel service: %w", err)
	}
	cohortSvc, err := cohorts.NewService(store, cohorts.ServiceConfig{
		QueryTimeout: cfg.Analytics.QueryTimeout,
		TrendWindow:  cfg.Analytics.TrendWindow,
	}, m, logg)
	if err != nil {
		return nil, fmt.Errorf("cohort service: %w", err)
	}
	forecastSvc, err := forecast.NewService(forecast.DefaultMetrics(), store, forecast.Config{
		QueryTimeout: cfg.Analytics.QueryTimeout,
	}, m, logg)
	if err != nil {
		return nil, fmt.Errorf("forecast service: %w", err)
	}
	facade, err := analytics.NewService(funnelSvc, cohortSvc, forecastSvc, analytics.Config{}, logg)
	if err != nil {
		return nil, fmt.Errorf("analytics service: %w", err)
	}
	return &Engines{
		Funnels:   funnelSvc,
		Cohorts:   cohortSvc,
		Forecast:  forecastSvc,
		Analytics: facade,
	}, nil
}
