package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics records how long funnel, cohort and forecast analyses take.
type AnalysisMetrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func NewAnalysisMetrics(reg prometheus.Registerer) *AnalysisMetrics {
	if reg == nil {
		return &AnalysisMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Duration of analytical computations, by kind.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "failures_total",
		Help:      "Analyses that returned an error, by kind.",
	}, []string{"kind"})
	reg.MustRegister(duration, failures)
	return &AnalysisMetrics{duration: duration, failures: failures}
}

// Observe records the outcome of one analysis started at start.
func (a *AnalysisMetrics) Observe(kind string, start time.Time, err error) {
	if a == nil || a.duration == nil {
		return
	}
	kind = normalizeLabel(kind)
	a.duration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		a.failures.WithLabelValues(kind).Inc()
	}
}
