// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundcheck_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "soundcheck_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// RegistrationSubmissions counts author registration submissions by outcome.
	RegistrationSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundcheck_registration_submissions_total",
		Help: "Author registration submissions by outcome",
	}, []string{"outcome"})

	// RegistrationReviews counts approve/reject decisions by outcome.
	RegistrationReviews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundcheck_registration_reviews_total",
		Help: "Registration request reviews by decision and outcome",
	}, []string{"decision", "outcome"})

	// NotificationDeliveries counts outbound emails by kind and result.
	NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundcheck_notification_deliveries_total",
		Help: "Outbound notification deliveries by kind and result",
	}, []string{"kind", "result"})

	// AdminFeedConnections is the number of connected admin websocket clients.
	AdminFeedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "soundcheck_admin_feed_connections",
		Help: "Number of connected admin feed websocket clients",
	})

	// WebSocketBackpressureDrops counts messages dropped due to slow websocket clients.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "soundcheck_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// Outcome labels shared by the registration counters.
const (
	OutcomeSuccess      = "success"
	OutcomeDuplicate    = "duplicate"
	OutcomeInvalid      = "invalid"
	OutcomeConflict     = "conflict"
	OutcomeInvalidState = "invalid_state"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
