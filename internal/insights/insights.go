// Package insights turns analysis results into short narrative findings
// using fixed thresholds.
package insights

import (
	"fmt"
	"sort"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/cohorts"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/forecast"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/internal/funnels"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/enums"
)

const (
	lowConversionRate      = 0.10
	criticalDropoffRate    = 0.50
	notableDropoffRate     = 0.30
	minSignificantDropoffs = 10
	cohortDispersion       = 0.10
	confidentForecast      = 0.80
)

type Insight struct {
	Source   enums.InsightSource   `json:"source"`
	Kind     enums.InsightKind     `json:"kind"`
	Severity enums.InsightSeverity `json:"severity"`
	Subject  string                `json:"subject"`
	Title    string                `json:"title"`
	Message  string                `json:"message"`
	Value    float64               `json:"value"`
}

// FromFunnel flags low overall conversion and heavy dropoff transitions.
func FromFunnel(a funnels.Analysis) []Insight {
	out := []Insight{}
	if a.TotalJourneys == 0 {
		return out
	}
	subject := a.FunnelName
	if a.OverallConversionRate < lowConversionRate {
		out = append(out, Insight{
			Source:   enums.InsightSourceFunnel,
			Kind:     enums.InsightKindInsight,
			Severity: enums.SeverityMedium,
			Subject:  subject,
			Title:    "Conversion below average",
			Message: fmt.Sprintf("Only %.1f%% of %d journeys in %s converted.",
				a.OverallConversionRate*100, a.TotalJourneys, subject),
			Value: a.OverallConversionRate,
		})
	}
	for _, d := range a.Dropoffs {
		from, to := stepLabel(d.FromStepName, d.FromStep), stepLabel(d.ToStepName, d.ToStep)
		switch {
		case d.DropoffRate > criticalDropoffRate:
			out = append(out, Insight{
				Source:   enums.InsightSourceFunnel,
				Kind:     enums.InsightKindRecommendation,
				Severity: enums.SeverityHigh,
				Subject:  subject,
				Title:    fmt.Sprintf("Reduce dropoff between %s and %s", from, to),
				Message: fmt.Sprintf("%.0f%% of users leave after %s. Review the %s step for friction.",
					d.DropoffRate*100, from, to),
				Value: d.DropoffRate,
			})
		case d.DropoffRate > notableDropoffRate && d.DropoffCount >= minSignificantDropoffs:
			out = append(out, Insight{
				Source:   enums.InsightSourceFunnel,
				Kind:     enums.InsightKindOpportunity,
				Severity: enums.SeverityMedium,
				Subject:  subject,
				Title:    fmt.Sprintf("Recover users after %s", from),
				Message: fmt.Sprintf("%d users stopped before %s; a reminder could bring some back.",
					d.DropoffCount, to),
				Value: d.DropoffRate,
			})
		}
	}
	return out
}

func stepLabel(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

// FromCohorts reports the retention trend and uneven cohorts.
func FromCohorts(a cohorts.Analysis) []Insight {
	out := []Insight{}
	subject := a.Config.AcquisitionEvent
	switch a.Trend.Label {
	case enums.RetentionDeclining:
		out = append(out, Insight{
			Source:   enums.InsightSourceCohort,
			Kind:     enums.InsightKindRisk,
			Severity: enums.SeverityHigh,
			Subject:  subject,
			Title:    "Retention is declining",
			Message: fmt.Sprintf("Recent cohorts retain %.1f%% against %.1f%% for the earliest ones.",
				a.Trend.LatestMean*100, a.Trend.EarliestMean*100),
			Value: a.Trend.Delta,
		})
	case enums.RetentionImproving:
		out = append(out, Insight{
			Source:   enums.InsightSourceCohort,
			Kind:     enums.InsightKindOpportunity,
			Severity: enums.SeverityLow,
			Subject:  subject,
			Title:    "Retention is improving",
			Message: fmt.Sprintf("Recent cohorts retain %.1f%% against %.1f%% for the earliest ones.",
				a.Trend.LatestMean*100, a.Trend.EarliestMean*100),
			Value: a.Trend.Delta,
		})
	}
	if a.Dispersion > cohortDispersion {
		out = append(out, Insight{
			Source:   enums.InsightSourceCohort,
			Kind:     enums.InsightKindInsight,
			Severity: enums.SeverityMedium,
			Subject:  subject,
			Title:    "Cohorts retain unevenly",
			Message:  fmt.Sprintf("Retention varies by %.2f between cohorts; compare their acquisition channels.", a.Dispersion),
			Value:    a.Dispersion,
		})
	}
	return out
}

// FromForecast reports direction, seasonality and anomalies. Either argument
// may be empty.
func FromForecast(points []forecast.ForecastPoint, trend *forecast.TrendAnalysis) []Insight {
	out := []Insight{}
	if len(points) > 0 {
		p := points[0]
		switch {
		case p.Trend == enums.TrendDown:
			out = append(out, Insight{
				Source:   enums.InsightSourceForecast,
				Kind:     enums.InsightKindRisk,
				Severity: enums.SeverityHigh,
				Subject:  p.Metric,
				Title:    fmt.Sprintf("%s is trending down", p.Metric),
				Message:  fmt.Sprintf("Next period is projected at %.2f from %.2f.", p.ForecastedValue, p.CurrentValue),
				Value:    p.ForecastedValue,
			})
		case p.Trend == enums.TrendUp && p.Confidence >= confidentForecast:
			out = append(out, Insight{
				Source:   enums.InsightSourceForecast,
				Kind:     enums.InsightKindOpportunity,
				Severity: enums.SeverityLow,
				Subject:  p.Metric,
				Title:    fmt.Sprintf("%s is growing", p.Metric),
				Message: fmt.Sprintf("Next period is projected at %.2f from %.2f with %.0f%% confidence.",
					p.ForecastedValue, p.CurrentValue, p.Confidence*100),
				Value: p.ForecastedValue,
			})
		}
	}
	if trend == nil {
		return out
	}
	if trend.Seasonality.Detected {
		out = append(out, Insight{
			Source:   enums.InsightSourceForecast,
			Kind:     enums.InsightKindInsight,
			Severity: enums.SeverityLow,
			Subject:  trend.Metric,
			Title:    fmt.Sprintf("%s is seasonal", trend.Metric),
			Message:  fmt.Sprintf("The series %s (strength %.2f).", trend.Seasonality.Pattern, trend.Seasonality.Strength),
			Value:    trend.Seasonality.Strength,
		})
	}
	if n := len(trend.Anomalies); n > 0 {
		labels := make([]string, 0, n)
		for _, a := range trend.Anomalies {
			labels = append(labels, a.Label)
		}
		out = append(out, Insight{
			Source:   enums.InsightSourceForecast,
			Kind:     enums.InsightKindRisk,
			Severity: enums.SeverityMedium,
			Subject:  trend.Metric,
			Title:    fmt.Sprintf("%s has %d anomalous periods", trend.Metric, n),
			Message:  fmt.Sprintf("Values deviate more than 20%% from trend in %v.", labels),
			Value:    float64(n),
		})
	}
	return out
}

var severityRank = map[enums.InsightSeverity]int{
	enums.SeverityHigh:   0,
	enums.SeverityMedium: 1,
	enums.SeverityLow:    2,
}

// Rank orders insights by severity, keeping generation order within a level.
func Rank(in []Insight) []Insight {
	out := append([]Insight{}, in...)
	sort.SliceStable(out, func(i, j int) bool {
		return severityRank[out[i].Severity] < severityRank[out[j].Severity]
	})
	return out
}
