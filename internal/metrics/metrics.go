package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adex_monitor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adex_monitor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket metrics
	WebSocketConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adex_monitor_websocket_connections_total",
			Help: "Total number of WebSocket connections",
		},
	)

	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adex_monitor_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	// Market refresh metrics
	MarketFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adex_monitor_market_fetch_total",
			Help: "Total number of market listing fetches by outcome",
		},
		[]string{"status"},
	)

	MarketFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adex_monitor_market_fetch_duration_seconds",
			Help:    "Market listing fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StaleResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adex_monitor_stale_responses_total",
			Help: "Fetch results discarded because a newer fetch was already applied",
		},
	)

	ConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adex_monitor_consecutive_fetch_failures",
			Help: "Failed fetches since the last applied listing",
		},
	)

	ChannelsCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adex_monitor_channels",
			Help: "Number of channels in the last applied listing",
		},
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adex_monitor_messages_total",
			Help: "Total number of state messages by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)
