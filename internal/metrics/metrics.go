package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counts lifecycle commands by outcome.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navi_transitions_total",
			Help: "Total number of trade lifecycle commands (by action and result).",
		},
		[]string{"action", "result"}, // result = "ok" | "not_found" | "unauthorized" | "validation" | "illegal" | "conflict" | "error"
	)

	// Measures lifecycle command latency, store round-trips included.
	TransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "navi_transition_duration_seconds",
			Help:    "Duration of trade lifecycle commands in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"action"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "navi_store_duration_seconds",
			Help:    "Duration of trade store operations in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// Trade record cache hits and misses.
	CacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navi_trade_cache_access_total",
			Help: "Number of cache hits/misses in the trade cache.",
		},
		[]string{"result"}, // hit | miss
	)

	// Tracks lifecycle events published by sink and result.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navi_events_published_total",
			Help: "Total number of lifecycle events published.",
		},
		[]string{"sink", "subject", "result"},
	)

	EventPublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "navi_event_publish_latency_seconds",
			Help:    "Time taken to publish lifecycle events",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	// Outbound calls to the messaging service.
	MessagingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navi_messaging_requests_total",
			Help: "Total number of messaging service requests.",
		},
		[]string{"status"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navi_errors_total",
			Help: "Count of errors by component.",
		},
		[]string{"component", "reason"},
	)
)

// ObserveDuration records the time elapsed since start on the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not duration metrics
	}
}

func IncTransition(action, result string) {
	TransitionsTotal.WithLabelValues(action, result).Inc()
}

func IncCache(result string) {
	CacheAccess.WithLabelValues(result).Inc()
}

func IncEvent(sink, subject, result string) {
	EventsPublished.WithLabelValues(sink, subject, result).Inc()
}

func IncMessaging(status string) {
	MessagingRequests.WithLabelValues(status).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}
