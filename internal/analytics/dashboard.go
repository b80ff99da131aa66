package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/cohorts"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/forecast"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/funnels"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/insights"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const defaultForecastPeriods = 4

// DashboardRequest selects the analyses bundled into one dashboard.
type DashboardRequest struct {
	Range     events.DateRange
	FunnelIDs []string
	Cohort    *cohorts.Config
	Metrics   []string
	Periods   int
}

type MetricSummary struct {
	Metric   string                  `json:"metric"`
	Forecast []forecast.ForecastPoint `json:"forecast"`
	Trend    *forecast.TrendAnalysis  `json:"trend"`
}

// SectionError records an analysis that failed without failing the dashboard.
type SectionError struct {
	Section string         `json:"section"`
	Subject string         `json:"subject"`
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
}

type Dashboard struct {
	DateRange   events.DateRange   `json:"date_range"`
	Funnels     []funnels.Analysis `json:"funnels"`
	Cohorts     *cohorts.Analysis  `json:"cohorts,omitempty"`
	Metrics     []MetricSummary    `json:"metrics"`
	Insights    []insights.Insight `json:"insights"`
	Errors      []SectionError     `json:"errors"`
	GeneratedAt time.Time          `json:"generated_at"`
}

type section struct {
	funnel  *funnels.Analysis
	cohort  *cohorts.Analysis
	metric  *MetricSummary
	failure *SectionError
}

// Dashboard runs every requested analysis in parallel. A failing analysis is
// reported in Errors; only cancellation of ctx fails the whole call.
func (s *service) Dashboard(ctx context.Context, req DashboardRequest) (*Dashboard, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, err
	}
	periods := req.Periods
	if periods <= 0 {
		periods = defaultForecastPeriods
	}

	funnelSlots := make([]section, len(req.FunnelIDs))
	metricSlots := make([]section, len(req.Metrics))
	var cohortSlot section

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)

	for i, id := range req.FunnelIDs {
		g.Go(func() error {
			a, err := s.funnels.AnalyzeFunnel(gctx, id, req.Range, funnels.Options{})
			if err != nil {
				return s.sectionFailed(gctx, &funnelSlots[i], "funnel", id, err)
			}
			funnelSlots[i].funnel = a
			return nil
		})
	}
	if req.Cohort != nil {
		cfg := *req.Cohort
		g.Go(func() error {
			a, err := s.cohorts.AnalyzeCohorts(gctx, cfg, req.Range)
			if err != nil {
				return s.sectionFailed(gctx, &cohortSlot, "cohort", cfg.AcquisitionEvent, err)
			}
			cohortSlot.cohort = a
			return nil
		})
	}
	for i, metric := range req.Metrics {
		g.Go(func() error {
			points, err := s.forecast.Forecast(gctx, metric, req.Range, periods, forecast.Options{})
			if err != nil {
				return s.sectionFailed(gctx, &metricSlots[i], "forecast", metric, err)
			}
			trend, err := s.forecast.AnalyzeTrend(gctx, metric, req.Range, forecast.Options{})
			if err != nil {
				return s.sectionFailed(gctx, &metricSlots[i], "trend", metric, err)
			}
			metricSlots[i].metric = &MetricSummary{Metric: metric, Forecast: points, Trend: trend}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Dashboard{
		DateRange:   req.Range,
		Funnels:     []funnels.Analysis{},
		Metrics:     []MetricSummary{},
		Errors:      []SectionError{},
		GeneratedAt: s.now().UTC(),
	}
	var found []insights.Insight
	for _, slot := range funnelSlots {
		if slot.failure != nil {
			out.Errors = append(out.Errors, *slot.failure)
			continue
		}
		out.Funnels = append(out.Funnels, *slot.funnel)
		found = append(found, insights.FromFunnel(*slot.funnel)...)
	}
	if cohortSlot.failure != nil {
		out.Errors = append(out.Errors, *cohortSlot.failure)
	} else if cohortSlot.cohort != nil {
		out.Cohorts = cohortSlot.cohort
		found = append(found, insights.FromCohorts(*cohortSlot.cohort)...)
	}
	for _, slot := range metricSlots {
		if slot.failure != nil {
			out.Errors = append(out.Errors, *slot.failure)
			continue
		}
		out.Metrics = append(out.Metrics, *slot.metric)
		found = append(found, insights.FromForecast(slot.metric.Forecast, slot.metric.Trend)...)
	}
	out.Insights = insights.Rank(found)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"funnels":  len(out.Funnels),
		"metrics":  len(out.Metrics),
		"insights": len(out.Insights),
		"failures": len(out.Errors),
	}), "dashboard assembled")
	return out, nil
}

// sectionFailed records err in slot. Cancellation is returned so the group
// stops; any other failure stays local to the section.
func (s *service) sectionFailed(ctx context.Context, slot *section, name, subject string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	code := pkgerrors.CodeInternal
	msg := err.Error()
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
		msg = typed.Message()
	}
	slot.failure = &SectionError{Section: name, Subject: subject, Code: code, Message: msg}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"section": name,
		"subject": subject,
		"code":    string(code),
	}), "dashboard section failed")
	return nil
}
