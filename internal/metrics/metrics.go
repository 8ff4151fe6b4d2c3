package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Bridge transaction lifecycle metrics
	// ============================================
	BridgeTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_state_transitions_total",
			Help: "Total number of bridge transaction state transitions",
		},
		[]string{"to_state"},
	)

	BridgeTransactionsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transactions_failed_total",
			Help: "Total number of bridge transactions that reached Failed",
		},
		[]string{"reason"},
	)

	BridgeTransactionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_transactions_in_flight",
		Help: "Number of bridge transactions in a non-terminal state",
	})

	// ============================================
	// Execution path metrics
	// ============================================
	ExecutionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_execution_attempts_total",
			Help: "Total number of signer execution attempts",
		},
		[]string{"path"},
	)

	ExecutionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_execution_failures_total",
			Help: "Total number of failed signer execution attempts",
		},
		[]string{"path", "error_kind"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_execution_duration_seconds",
			Help:    "Signer execution attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// ============================================
	// Confirmation feed metrics
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	ConfirmationEventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_confirmation_events_received_total",
		Help: "Total number of confirmation events received",
	})

	ConfirmationEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_confirmation_events_dropped_total",
			Help: "Total number of confirmation events ignored",
		},
		[]string{"reason"},
	)

	// ============================================
	// Observer / pub-sub metrics
	// ============================================
	WebSocketClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_websocket_clients_connected",
		Help: "Number of connected WebSocket observers",
	})

	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_broadcast_deliveries_total",
			Help: "Total number of events delivered to observers",
		},
		[]string{"channel_kind"},
	)

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_broadcast_dropped_total",
		Help: "Total number of events dropped because an observer channel was full",
	})
)
