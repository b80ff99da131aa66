package forecast

import (
	"fmt"
	"math"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/events"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/timeutil"
)

const (
	// MinForecastPoints is the shortest history a line can be fitted to.
	MinForecastPoints = 2
	minConfidence     = 0.5
)

// Scenario multipliers applied to the base growth rate.
const (
	optimisticMultiplier  = 1.5
	realisticMultiplier   = 1.0
	pessimisticMultiplier = 0.5
)

type ForecastPoint struct {
	Metric          string               `json:"metric"`
	Period          int                  `json:"period"`
	Label           string               `json:"label"`
	CurrentValue    float64              `json:"current_value"`
	ForecastedValue float64              `json:"forecasted_value"`
	Confidence      float64              `json:"confidence"`
	Trend           enums.TrendDirection `json:"trend"`
}

type TrendAnalysis struct {
	Metric           string               `json:"metric"`
	Unit             enums.TimeUnit       `json:"unit"`
	DateRange        events.DateRange     `json:"date_range"`
	HistoricalSeries []Point              `json:"historical_series"`
	FittedTrendLine  []float64            `json:"fitted_trend_line"`
	Line             Line                 `json:"line"`
	Direction        enums.TrendDirection `json:"direction"`
	Seasonality      Seasonality          `json:"seasonality"`
	Anomalies        []Anomaly            `json:"anomalies"`
}

type ScenarioPoint struct {
	Period      int     `json:"period"`
	Label       string  `json:"label"`
	Optimistic  float64 `json:"optimistic"`
	Realistic   float64 `json:"realistic"`
	Pessimistic float64 `json:"pessimistic"`
	Confidence  float64 `json:"confidence"`
}

type GrowthProjection struct {
	Metric              string          `json:"metric"`
	CurrentValue        float64         `json:"current_value"`
	BaseGrowthRate      float64         `json:"base_growth_rate"`
	Periods             []ScenarioPoint `json:"periods"`
	ContributingFactors []string        `json:"contributing_factors"`
}

// Confidence decays linearly with the horizon and never drops below 0.5.
func Confidence(t int, decay float64) float64 {
	return math.Max(minConfidence, 1-float64(t)*decay)
}

// Direction classifies a slope against a tolerance of 1% of the series mean.
func Direction(slope float64, vals []float64) enums.TrendDirection {
	eps := math.Max(1e-9, 0.01*math.Abs(mean(vals)))
	switch {
	case slope > eps:
		return enums.TrendUp
	case slope < -eps:
		return enums.TrendDown
	}
	return enums.TrendStable
}

// CompoundGrowthRate is the per-period rate taking first to last over n
// points. ok is false when the rate is undefined.
func CompoundGrowthRate(first, last float64, n int) (rate float64, ok bool) {
	if first <= 0 || n < 2 || last < 0 {
		return 0, false
	}
	return math.Pow(last/first, 1/float64(n-1)) - 1, true
}

func insufficient(m Metric, got int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientData,
		fmt.Sprintf("metric %s needs at least %d periods, got %d", m.Name, MinForecastPoints, got)).
		WithDetails(map[string]any{"metric": m.Name, "points": got, "required": MinForecastPoints})
}

func (m Metric) clamp(v float64) float64 {
	if m.NonNegative && v < 0 {
		return 0
	}
	return v
}

func futureLabel(series []Point, unit enums.TimeUnit, t int) string {
	return timeutil.Label(timeutil.Add(series[len(series)-1].Start, unit, t), unit)
}

// Project extrapolates series by periods buckets using the metric's growth
// model. Compound metrics fall back to the fitted line when the first value
// is not positive.
func Project(m Metric, unit enums.TimeUnit, series []Point, periods int) ([]ForecastPoint, error) {
	n := len(series)
	if n < MinForecastPoints {
		return nil, insufficient(m, n)
	}
	vals := values(series)
	line := fitSeries(series)
	dir := Direction(line.Slope, vals)
	last := vals[n-1]

	var rate float64
	compound := false
	if m.Model == enums.GrowthCompound {
		rate, compound = CompoundGrowthRate(vals[0], last, n)
	}

	out := make([]ForecastPoint, 0, periods)
	for t := 1; t <= periods; t++ {
		v := line.At(float64(n + t))
		if compound {
			v = last * math.Pow(1+rate, float64(t))
		}
		out = append(out, ForecastPoint{
			Metric:          m.Name,
			Period:          n + t,
			Label:           futureLabel(series, unit, t),
			CurrentValue:    last,
			ForecastedValue: m.clamp(v),
			Confidence:      Confidence(t, m.DecayRate),
			Trend:           dir,
		})
	}
	return out, nil
}

// Analyze fits the series and reports direction, seasonality and anomalies.
func Analyze(m Metric, unit enums.TimeUnit, dr events.DateRange, series []Point) (TrendAnalysis, error) {
	if len(series) < MinForecastPoints {
		return TrendAnalysis{}, insufficient(m, len(series))
	}
	vals := values(series)
	line := fitSeries(series)
	fitted := make([]float64, len(series))
	for i, p := range series {
		fitted[i] = line.At(float64(p.Period))
	}
	return TrendAnalysis{
		Metric:           m.Name,
		Unit:             unit,
		DateRange:        dr,
		HistoricalSeries: series,
		FittedTrendLine:  fitted,
		Line:             line,
		Direction:        Direction(line.Slope, vals),
		Seasonality:      DetectSeasonality(vals),
		Anomalies:        DetectAnomalies(series, line, anomalyThreshold),
	}, nil
}

// BaseGrowthRate is the compound rate for compound metrics, otherwise the
// fitted slope relative to the latest value.
func BaseGrowthRate(m Metric, series []Point) float64 {
	vals := values(series)
	n := len(vals)
	if n == 0 {
		return 0
	}
	if m.Model == enums.GrowthCompound {
		if g, ok := CompoundGrowthRate(vals[0], vals[n-1], n); ok {
			return g
		}
	}
	last := vals[n-1]
	if last == 0 {
		return 0
	}
	return fitSeries(series).Slope / math.Abs(last)
}

// ProjectGrowth produces optimistic, realistic and pessimistic paths by
// scaling the base growth rate. Compound metrics grow geometrically with the
// per-period factor floored at zero; linear metrics extend the fitted slope.
func ProjectGrowth(m Metric, unit enums.TimeUnit, series []Point, periods int) (GrowthProjection, error) {
	n := len(series)
	if n < MinForecastPoints {
		return GrowthProjection{}, insufficient(m, n)
	}
	last := series[n-1].Value
	g := BaseGrowthRate(m, series)
	compound := false
	if m.Model == enums.GrowthCompound {
		_, compound = CompoundGrowthRate(series[0].Value, last, n)
	}
	slope := fitSeries(series).Slope
	path := func(mult float64, t int) float64 {
		if compound {
			return m.clamp(last * math.Pow(math.Max(0, 1+g*mult), float64(t)))
		}
		return m.clamp(last + slope*mult*float64(t))
	}

	out := GrowthProjection{
		Metric:              m.Name,
		CurrentValue:        last,
		BaseGrowthRate:      g,
		Periods:             make([]ScenarioPoint, 0, periods),
		ContributingFactors: append([]string{}, m.Factors...),
	}
	for t := 1; t <= periods; t++ {
		hi := path(optimisticMultiplier, t)
		lo := path(pessimisticMultiplier, t)
		out.Periods = append(out.Periods, ScenarioPoint{
			Period:      n + t,
			Label:       futureLabel(series, unit, t),
			Optimistic:  math.Max(hi, lo),
			Realistic:   path(realisticMultiplier, t),
			Pessimistic: math.Min(hi, lo),
			Confidence:  Confidence(t, m.DecayRate),
		})
	}
	return out, nil
}
