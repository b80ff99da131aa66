package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/cohorts"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/forecast"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/funnels"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
)

type funnelEngine interface {
	AnalyzeFunnel(ctx context.Context, id string, dr events.DateRange, opts funnels.Options) (*funnels.Analysis, error)
	CompareFunnels(ctx context.Context, a, b string, dr events.DateRange) (*funnels.Comparison, error)
}

type cohortEngine interface {
	AnalyzeCohorts(ctx context.Context, cfg cohorts.Config, dr events.DateRange) (*cohorts.Analysis, error)
}

type forecastEngine interface {
	Forecast(ctx context.Context, metric string, dr events.DateRange, periods int, opts forecast.Options) ([]forecast.ForecastPoint, error)
	AnalyzeTrend(ctx context.Context, metric string, dr events.DateRange, opts forecast.Options) (*forecast.TrendAnalysis, error)
	ProjectGrowth(ctx context.Context, metric string, dr events.DateRange, periods int, opts forecast.Options) (*forecast.GrowthProjection, error)
}

// Service is the reporting boundary over the funnel, cohort and forecast engines.
type Service interface {
	AnalyzeFunnel(ctx context.Context, id string, dr events.DateRange, opts funnels.Options) (*funnels.Analysis, error)
	CompareFunnels(ctx context.Context, a, b string, dr events.DateRange) (*funnels.Comparison, error)
	AnalyzeCohorts(ctx context.Context, cfg cohorts.Config, dr events.DateRange) (*cohorts.Analysis, error)
	Forecast(ctx context.Context, metric string, dr events.DateRange, periods int, opts forecast.Options) ([]forecast.ForecastPoint, error)
	AnalyzeTrend(ctx context.Context, metric string, dr events.DateRange, opts forecast.Options) (*forecast.TrendAnalysis, error)
	ProjectGrowth(ctx context.Context, metric string, dr events.DateRange, periods int, opts forecast.Options) (*forecast.GrowthProjection, error)
	Dashboard(ctx context.Context, req DashboardRequest) (*Dashboard, error)
}

type Config struct {
	// Parallelism caps concurrent analyses per dashboard.
	Parallelism int
}

type service struct {
	funnels  funnelEngine
	cohorts  cohortEngine
	forecast forecastEngine
	cfg      Config
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(f funnelEngine, c cohortEngine, fc forecastEngine, cfg Config, logg *logger.Logger) (Service, error) {
	if f == nil || c == nil || fc == nil {
		return nil, fmt.Errorf("funnel, cohort and forecast engines required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &service{
		funnels:  f,
		cohorts:  c,
		forecast: fc,
		cfg:      cfg,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) AnalyzeFunnel(ctx context.Context, id string, dr events.DateRange, opts funnels.Options) (*funnels.Analysis, error) {
	return s.funnels.AnalyzeFunnel(ctx, id, dr, opts)
}

func (s *service) CompareFunnels(ctx context.Context, a, b string, dr events.DateRange) (*funnels.Comparison, error) {
	return s.funnels.CompareFunnels(ctx, a, b, dr)
}

func (s *service) AnalyzeCohorts(ctx context.Context, cfg cohorts.Config, dr events.DateRange) (*cohorts.Analysis, error) {
	return s.cohorts.AnalyzeCohorts(ctx, cfg, dr)
}

func (s *service) Forecast(ctx context.Context, metric string, dr events.DateRange, periods int, opts forecast.Options) ([]forecast.ForecastPoint, error) {
	return s.forecast.Forecast(ctx, metric, dr, periods, opts)
}

func (s *service) AnalyzeTrend(ctx context.Context, metric string, dr events.DateRange, opts forecast.Options) (*forecast.TrendAnalysis, error) {
	return s.forecast.AnalyzeTrend(ctx, metric, dr, opts)
}

func (s *service) ProjectGrowth(ctx context.Context, metric string, dr events.DateRange, periods int, opts forecast.Options) (*forecast.GrowthProjection, error) {
	return s.forecast.ProjectGrowth(ctx, metric, dr, periods, opts)
}
