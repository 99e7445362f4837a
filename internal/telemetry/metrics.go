package telemetry

import "github.com/prometheus/client_golang/prometheus"

var SentinelsMintedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "keyward",
		Subsystem: "sentinels",
		Name:      "minted_total",
		Help:      "Total number of sentinels minted, by kind and key size.",
	},
	[]string{"kind", "key_size"},
)

var SentinelsRetrievedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "keyward",
		Subsystem: "sentinels",
		Name:      "retrieved_total",
		Help:      "Total number of sentinel retrieval attempts, by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

var FragmentOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "keyward",
		Subsystem: "fragments",
		Name:      "operation_duration_seconds",
		Help:      "Duration of fragment store operations in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"operation"},
)

var AuthAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "keyward",
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Total number of authentication attempts, by outcome.",
	},
	[]string{"outcome"},
)

var AntiReplayRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "keyward",
		Subsystem: "auth",
		Name:      "anti_replay_rejections_total",
		Help:      "Total number of requests rejected by the anti-replay guard, by reason.",
	},
	[]string{"reason"},
)

var AuditEventsDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "keyward",
		Subsystem: "audit",
		Name:      "events_dropped_total",
		Help:      "Total number of audit events dropped because the writer buffer was full.",
	},
)

// All returns all keyward-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		SentinelsMintedTotal,
		SentinelsRetrievedTotal,
		FragmentOperationDuration,
		AuthAttemptsTotal,
		AntiReplayRejectionsTotal,
		AuditEventsDroppedTotal,
	}
}
