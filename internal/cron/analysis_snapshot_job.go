package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/analytics"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/forecast"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/funnels"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/snapshots"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSnapshotPeriods     = 4
	defaultSnapshotParallelism = 4
)

type snapshotAnalyses interface {
	AnalyzeFunnel(ctx context.Context, id string, dr events.DateRange, opts funnels.Options) (*funnels.Analysis, error)
	Forecast(ctx context.Context, metric string, dr events.DateRange, periods int, opts forecast.Options) ([]forecast.ForecastPoint, error)
	AnalyzeTrend(ctx context.Context, metric string, dr events.DateRange, opts forecast.Options) (*forecast.TrendAnalysis, error)
	ProjectGrowth(ctx context.Context, metric string, dr events.DateRange, periods int, opts forecast.Options) (*forecast.GrowthProjection, error)
}

type snapshotWriter interface {
	Save(ctx context.Context, kind enums.SnapshotKind, subject string, dr events.DateRange, payload any) (*snapshots.Snapshot, error)
}

type AnalysisSnapshotJobParams struct {
	Logger      *logger.Logger
	Analytics   snapshotAnalyses
	Snapshots   snapshotWriter
	FunnelIDs   []string
	Metrics     []string
	Preset      string
	Periods     int
	Parallelism int
}

// NewAnalysisSnapshotJob recomputes the configured funnel and metric analyses
// over the preset window and stores each result as a snapshot.
func NewAnalysisSnapshotJob(params AnalysisSnapshotJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Analytics == nil {
		return nil, fmt.Errorf("analytics service required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	if _, err := analytics.PresetRange(params.Preset, time.Now()); err != nil {
		return nil, err
	}
	if params.Periods <= 0 {
		params.Periods = defaultSnapshotPeriods
	}
	if params.Parallelism <= 0 {
		params.Parallelism = defaultSnapshotParallelism
	}
	return &analysisSnapshotJob{params: params, now: time.Now}, nil
}

type analysisSnapshotJob struct {
	params AnalysisSnapshotJobParams
	now    func() time.Time
}

func (j *analysisSnapshotJob) Name() string { return "analysis-snapshot" }

type snapshotTask struct {
	kind    enums.SnapshotKind
	subject string
	compute func(ctx context.Context, dr events.DateRange) (any, error)
}

func (j *analysisSnapshotJob) tasks() []snapshotTask {
	p := j.params
	var out []snapshotTask
	for _, id := range p.FunnelIDs {
		out = append(out, snapshotTask{enums.SnapshotFunnel, id, func(ctx context.Context, dr events.DateRange) (any, error) {
			return p.Analytics.AnalyzeFunnel(ctx, id, dr, funnels.Options{})
		}})
	}
	for _, metric := range p.Metrics {
		out = append(out,
			snapshotTask{enums.SnapshotForecast, metric, func(ctx context.Context, dr events.DateRange) (any, error) {
				return p.Analytics.Forecast(ctx, metric, dr, p.Periods, forecast.Options{})
			}},
			snapshotTask{enums.SnapshotTrend, metric, func(ctx context.Context, dr events.DateRange) (any, error) {
				return p.Analytics.AnalyzeTrend(ctx, metric, dr, forecast.Options{})
			}},
			snapshotTask{enums.SnapshotGrowth, metric, func(ctx context.Context, dr events.DateRange) (any, error) {
				return p.Analytics.ProjectGrowth(ctx, metric, dr, p.Periods, forecast.Options{})
			}},
		)
	}
	return out
}

// Run executes every task even when some fail and returns their combined error.
func (j *analysisSnapshotJob) Run(ctx context.Context) error {
	dr, err := analytics.PresetRange(j.params.Preset, j.now())
	if err != nil {
		return err
	}
	tasks := j.tasks()

	var (
		mu     sync.Mutex
		errs   error
		stored int
	)
	var g errgroup.Group
	g.SetLimit(j.params.Parallelism)
	for _, task := range tasks {
		g.Go(func() error {
			payload, err := task.compute(ctx, dr)
			if err == nil {
				_, err = j.params.Snapshots.Save(ctx, task.kind, task.subject, dr, payload)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s snapshot %s: %w", task.kind, task.subject, err))
				return nil
			}
			stored++
			return nil
		})
	}
	_ = g.Wait()

	j.params.Logger.Info(j.params.Logger.WithFields(ctx, map[string]any{
		"tasks":  len(tasks),
		"stored": stored,
		"failed": len(multierr.Errors(errs)),
	}), "analysis snapshots written")
	return errs
}
