package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peerlink_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Gateway metrics
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peerlink_ws_connections",
			Help: "Live WebSocket connections",
		},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerlink_ws_auth_failures_total",
			Help: "Rejected connection attempts",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peerlink_online_users",
			Help: "Users with at least one live connection",
		},
	)

	// Chat metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_messages_sent_total",
			Help: "Messages persisted and delivered",
		},
		[]string{"path"}, // "ws" or "rest"
	)

	MessagesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerlink_messages_deduplicated_total",
			Help: "Duplicate sends suppressed by the content-hash window",
		},
	)

	// Call metrics
	CallsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_calls_initiated_total",
			Help: "Call invitations sent",
		},
		[]string{"type"}, // "audio" or "video"
	)

	CallFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_call_failures_total",
			Help: "Call invitations that did not reach accept",
		},
		[]string{"reason"}, // "offline", "timeout", "declined"
	)

	RoomJoins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerlink_room_joins_total",
			Help: "Signaling room joins",
		},
	)

	RoomsFull = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerlink_rooms_full_total",
			Help: "Joins rejected because the room already had two members",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerlink_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
