// Package telemetry provides observability primitives for the boatload relay.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "boatload"

// Metrics holds all Prometheus collectors for the relay.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	EventsAccepted   *prometheus.CounterVec
	EventsDuplicate  prometheus.Counter
	EventsRejected   *prometheus.CounterVec
	RateLimitRejects prometheus.Counter

	FlushesTotal  *prometheus.CounterVec
	BatchSize     prometheus.Histogram
	FlushDuration *prometheus.HistogramVec
	QueueLength   prometheus.Gauge

	WebhookDeliveries *prometheus.CounterVec
	BreakerState      prometheus.Gauge
	EventsPurged      prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       namespace,
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		EventsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_accepted_total",
			Help:      "Events enqueued for batching.",
		}, []string{"client"}),

		EventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_duplicate_total",
			Help:      "Events dropped at ingest because their ID was already seen.",
		}),

		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Events refused at ingest.",
		}, []string{"reason"}),

		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_rejects_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),

		FlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Batch flushes by trigger and outcome.",
		}, []string{"trigger", "outcome"}),

		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of events per flushed batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),

		FlushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       namespace,
			Name:                            "flush_duration_seconds",
			Help:                            "Time spent in the batch callback.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"trigger"}),

		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Messages waiting for the batch worker.",
		}),

		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook delivery attempts by result.",
		}, []string{"result"}),

		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "webhook_breaker_state",
			Help:      "Webhook circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),

		EventsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_purged_total",
			Help:      "Stored events deleted by the retention worker.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.EventsAccepted,
		m.EventsDuplicate,
		m.EventsRejected,
		m.RateLimitRejects,
		m.FlushesTotal,
		m.BatchSize,
		m.FlushDuration,
		m.QueueLength,
		m.WebhookDeliveries,
		m.BreakerState,
		m.EventsPurged,
	)

	return m
}
