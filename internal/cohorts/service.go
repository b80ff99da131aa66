package cohorts

import (
	"context"
	"errors"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/metrics"
)

const analysisKind = "cohort"

type ServiceConfig struct {
	QueryTimeout time.Duration
	TrendWindow  int
}

// Service runs cohort analyses against the event store.
type Service struct {
	store   events.Store
	cfg     ServiceConfig
	metrics *metrics.AnalysisMetrics
	logg    *logger.Logger
}

func NewService(store events.Store, cfg ServiceConfig, m *metrics.AnalysisMetrics, logg *logger.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("event store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = DefaultTrendWindow
	}
	return &Service{store: store, cfg: cfg, metrics: m, logg: logg}, nil
}

// AnalyzeCohorts builds the retention matrix for users acquired in dr.
func (s *Service) AnalyzeCohorts(ctx context.Context, cfg Config, dr events.DateRange) (res *Analysis, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe(analysisKind, start, err) }()

	cfg, err = NewConfig(cfg.AcquisitionEvent, cfg.RetentionEvent, cfg.Unit, cfg.Periods)
	if err != nil {
		return nil, err
	}
	if err := dr.Validate(); err != nil {
		return nil, err
	}

	q := events.Query{Range: dr}
	if !cfg.TracksAnyActivity() {
		q.EventNames = []string{cfg.AcquisitionEvent, cfg.RetentionEvent}
	}
	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	evts, err := s.store.Query(qctx, q)
	if err != nil {
		if errors.Is(err, context.Canceled) || pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query events")
	}
	out, err := Build(ctx, cfg, dr, evts, s.cfg.TrendWindow)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"acquisition_event": cfg.AcquisitionEvent,
		"cohorts":           len(out.Cohorts),
		"trend":             string(out.Trend.Label),
	}), "cohorts analyzed")
	return &out, nil
}
