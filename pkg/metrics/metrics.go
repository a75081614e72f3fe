package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shiftlog_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// AuthAttempts counts login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftlog_auth_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// LedgerEntries counts appended validation ledger entries by outcome and kind (decision|comment).
	LedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftlog_ledger_entries_total",
			Help: "Total number of validation ledger entries appended",
		},
		[]string{"outcome", "kind"},
	)

	// LedgerRejections counts submissions refused by the state machine, labelled by error code.
	LedgerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftlog_ledger_rejections_total",
			Help: "Total number of validation submissions refused",
		},
		[]string{"code"},
	)

	// NotificationsCreated counts persisted notifications by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftlog_notifications_created_total",
			Help: "Total number of notifications persisted",
		},
		[]string{"type"},
	)

	// RealtimePushes counts per-connection push attempts (delivered|dropped|timeout).
	RealtimePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftlog_realtime_pushes_total",
			Help: "Total number of realtime push attempts per connection",
		},
		[]string{"result"},
	)

	// RealtimeConnections tracks live realtime connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shiftlog_realtime_connections",
			Help: "Number of live realtime connections",
		},
	)

	// ShiftsClosed counts shift sessions closed, labelled by reason (manual|expired).
	ShiftsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftlog_shifts_closed_total",
			Help: "Total number of shift sessions closed",
		},
		[]string{"reason"},
	)
)
