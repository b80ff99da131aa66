package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CollectorMetrics tracks event ingestion: accepted and rejected events,
// buffer depth, flush latency and rule alerts.
type CollectorMetrics struct {
	collected     *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	flushDuration prometheus.Histogram
	flushFailures prometheus.Counter
	flushedEvents prometheus.Counter
	bufferSize    prometheus.Gauge
	alerts        *prometheus.CounterVec
}

// NewCollectorMetrics registers the collector metrics on reg. A nil registerer
// yields a no-op recorder.
func NewCollectorMetrics(reg prometheus.Registerer) *CollectorMetrics {
	if reg == nil {
		return &CollectorMetrics{}
	}
	m := &CollectorMetrics{
		collected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "events_collected_total",
			Help:      "Events accepted by the collector, by event type.",
		}, []string{"event_type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "events_rejected_total",
			Help:      "Events rejected during validation, by reason.",
		}, []string{"reason"}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "flush_duration_seconds",
			Help:      "Time spent writing a buffered batch to the event store.",
			Buckets:   prometheus.DefBuckets,
		}),
		flushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "flush_failures_total",
			Help:      "Batches that failed to flush and were requeued.",
		}),
		flushedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "events_flushed_total",
			Help:      "Events written to the event store.",
		}),
		bufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "buffer_size",
			Help:      "Events currently waiting in the flush buffer.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "rule_alerts_total",
			Help:      "Alerts raised by collector rules.",
		}, []string{"rule"}),
	}
	reg.MustRegister(m.collected, m.rejected, m.flushDuration, m.flushFailures, m.flushedEvents, m.bufferSize, m.alerts)
	return m
}

func (m *CollectorMetrics) IncCollected(eventType string) {
	if m == nil || m.collected == nil {
		return
	}
	m.collected.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *CollectorMetrics) IncRejected(reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveFlush records one flush attempt of n events.
func (m *CollectorMetrics) ObserveFlush(n int, d time.Duration, err error) {
	if m == nil || m.flushDuration == nil {
		return
	}
	m.flushDuration.Observe(d.Seconds())
	if err != nil {
		m.flushFailures.Inc()
		return
	}
	m.flushedEvents.Add(float64(n))
}

func (m *CollectorMetrics) SetBufferSize(n int) {
	if m == nil || m.bufferSize == nil {
		return
	}
	m.bufferSize.Set(float64(n))
}

func (m *CollectorMetrics) IncAlert(rule string) {
	if m == nil || m.alerts == nil {
		return
	}
	m.alerts.WithLabelValues(normalizeLabel(rule)).Inc()
}
