package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/metrics"
)

// MaxHorizon bounds how many periods a single request may project.
const MaxHorizon = 52

type Config struct {
	QueryTimeout time.Duration
}

// Options override per-request defaults. A zero Unit uses the metric's unit.
type Options struct {
	Unit enums.TimeUnit
}

type Service struct {
	registry Registry
	store    events.Store
	cfg      Config
	metrics  *metrics.AnalysisMetrics
	logg     *logger.Logger
}

func NewService(registry Registry, store events.Store, cfg Config, m *metrics.AnalysisMetrics, logg *logger.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("event store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if registry == nil {
		registry = DefaultMetrics()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	return &Service{registry: registry, store: store, cfg: cfg, metrics: m, logg: logg}, nil
}

// Metrics lists the registered metric definitions by name.
func (s *Service) Metrics() []Metric {
	out := make([]Metric, 0, len(s.registry))
	for _, name := range s.registry.Names() {
		out = append(out, s.registry[name])
	}
	return out
}

// Forecast projects metric over the next periods buckets from its history in dr.
func (s *Service) Forecast(ctx context.Context, metric string, dr events.DateRange, periods int, opts Options) (out []ForecastPoint, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe(string(enums.SnapshotForecast), start, err) }()

	if err := validateHorizon(periods); err != nil {
		return nil, err
	}
	m, unit, series, err := s.series(ctx, metric, dr, opts)
	if err != nil {
		return nil, err
	}
	out, err = Project(m, unit, series, periods)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"metric":  m.Name,
		"points":  len(series),
		"periods": periods,
	}), "forecast computed")
	return out, nil
}

// AnalyzeTrend fits the metric's history in dr.
func (s *Service) AnalyzeTrend(ctx context.Context, metric string, dr events.DateRange, opts Options) (res *TrendAnalysis, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe(string(enums.SnapshotTrend), start, err) }()

	m, unit, series, err := s.series(ctx, metric, dr, opts)
	if err != nil {
		return nil, err
	}
	out, err := Analyze(m, unit, dr, series)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ProjectGrowth builds the scenario projection for metric.
func (s *Service) ProjectGrowth(ctx context.Context, metric string, dr events.DateRange, periods int, opts Options) (res *GrowthProjection, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe(string(enums.SnapshotGrowth), start, err) }()

	if err := validateHorizon(periods); err != nil {
		return nil, err
	}
	m, unit, series, err := s.series(ctx, metric, dr, opts)
	if err != nil {
		return nil, err
	}
	out, err := ProjectGrowth(m, unit, series, periods)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) series(ctx context.Context, metric string, dr events.DateRange, opts Options) (Metric, enums.TimeUnit, []Point, error) {
	m, err := s.registry.Lookup(metric)
	if err != nil {
		return Metric{}, "", nil, err
	}
	if err := dr.Validate(); err != nil {
		return Metric{}, "", nil, err
	}
	unit := m.Unit
	if opts.Unit != "" {
		if !opts.Unit.IsValid() {
			return Metric{}, "", nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported time unit %q", opts.Unit))
		}
		unit = opts.Unit
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	evts, err := s.store.Query(qctx, m.query(dr))
	if err != nil {
		if errors.Is(err, context.Canceled) || pkgerrors.As(err) != nil {
			return Metric{}, "", nil, err
		}
		return Metric{}, "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query events")
	}
	if err := ctx.Err(); err != nil {
		return Metric{}, "", nil, err
	}
	return m, unit, BuildSeries(m, unit, dr, evts), nil
}

func validateHorizon(periods int) error {
	if periods <= 0 || periods > MaxHorizon {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("periods must be between 1 and %d", MaxHorizon)).
			WithDetails(map[string]any{"periods": periods})
	}
	return nil
}
