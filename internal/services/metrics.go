package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the tracking pipeline
type Metrics struct {
	EventsIngested   prometheus.Counter
	EventsRejected   *prometheus.CounterVec
	RateLimitedHits  prometheus.Counter
	SinkFailures     *prometheus.CounterVec
	RollupUpdates    prometheus.Counter
	RollupQueueDepth prometheus.Gauge

	AggregationLatency *prometheus.HistogramVec
}

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		EventsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docutrack_events_ingested_total",
			Help: "Total number of valid events persisted",
		}),

		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docutrack_events_rejected_total",
			Help: "Total number of events rejected at ingestion by reason",
		}, []string{"reason"}), // "validation" or "empty_batch"

		RateLimitedHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docutrack_ratelimited_requests_total",
			Help: "Total number of ingestion requests rejected by the rate limiter",
		}),

		SinkFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docutrack_sink_failures_total",
			Help: "Total number of sink delivery failures by sink name",
		}, []string{"sink"}),

		RollupUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docutrack_rollup_updates_total",
			Help: "Total number of asynchronous rollup updates applied",
		}),

		RollupQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "docutrack_rollup_queue_depth",
			Help: "Number of batches waiting for rollup processing",
		}),

		AggregationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docutrack_aggregation_duration_seconds",
			Help:    "Analytics query latency in seconds by query type",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"type"}),
	}

	return metrics
}

// RecordIngested records persisted events
func (m *Metrics) RecordIngested(count int) {
	m.EventsIngested.Add(float64(count))
}

// RecordRejected records events dropped at ingestion
func (m *Metrics) RecordRejected(reason string, count int) {
	m.EventsRejected.WithLabelValues(reason).Add(float64(count))
}

// RecordRateLimited records a throttled ingestion request
func (m *Metrics) RecordRateLimited() {
	m.RateLimitedHits.Inc()
}

// RecordSinkFailure records a sink delivery failure
func (m *Metrics) RecordSinkFailure(sink string) {
	m.SinkFailures.WithLabelValues(sink).Inc()
}

// RecordAggregation records one analytics query latency
func (m *Metrics) RecordAggregation(queryType string, seconds float64) {
	m.AggregationLatency.WithLabelValues(queryType).Observe(seconds)
}
