// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks local API request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_request_duration_seconds",
			Help:    "Local API request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total local API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_requests_total",
			Help: "Total local API requests",
		},
		[]string{"method", "path", "status"},
	)

	// EventsApplied tracks payloads merged into the stores.
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_events_applied_total",
			Help: "Payloads merged into the stores",
		},
		[]string{"source", "kind"},
	)

	// PayloadsDropped tracks malformed payloads dropped at the normalizer.
	PayloadsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_payloads_dropped_total",
			Help: "Malformed payloads dropped before reaching the stores",
		},
		[]string{"source"},
	)

	// EchoesCollapsed tracks server echoes absorbed into optimistic entries.
	EchoesCollapsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_echoes_collapsed_total",
			Help: "Server echoes deduplicated against optimistic messages",
		},
	)

	// UnreadResets tracks explicit mark-read actions.
	UnreadResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_unread_resets_total",
			Help: "Explicit unread counter resets",
		},
	)

	// UpstreamRequestDuration tracks backend REST call duration.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_upstream_request_duration_seconds",
			Help:    "Backend REST request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)

	// RealtimeReconnects tracks reconnections to the realtime transport.
	RealtimeReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_realtime_reconnects_total",
			Help: "Reconnections to the realtime transport",
		},
	)

	// SSESubscribersActive tracks active change-feed subscribers.
	SSESubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_sse_subscribers_active",
			Help: "Number of active SSE change-feed subscribers",
		},
	)

	// ConversationsHeld tracks conversations currently in the store.
	ConversationsHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_conversations_held",
			Help: "Conversations currently held in the local store",
		},
	)
)

// RecordRequest records metrics for a local API request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordUpstream records metrics for a backend REST call.
func RecordUpstream(operation, status string, duration float64) {
	UpstreamRequestDuration.WithLabelValues(operation, status).Observe(duration)
}

// IncrementSSESubscribers increments the active subscriber count.
func IncrementSSESubscribers() {
	SSESubscribersActive.Inc()
}

// DecrementSSESubscribers decrements the active subscriber count.
func DecrementSSESubscribers() {
	SSESubscribersActive.Dec()
}
