package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for VaultLedger.
type Metrics struct {
	// --- Engine ---
	OpsApplied     *prometheus.CounterVec
	OpsRejected    *prometheus.CounterVec
	OpDuration     *prometheus.HistogramVec
	EventsAppended *prometheus.CounterVec
	ChainSequence  prometheus.Gauge

	// --- Custody ---
	CustodyCallDuration *prometheus.HistogramVec
	CustodyFailures     *prometheus.CounterVec

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Errors      prometheus.Counter

	// --- Outbox ---
	OutboxPublished *prometheus.CounterVec
	OutboxErrors    *prometheus.CounterVec
	OutboxBatchSize prometheus.Histogram
	OutboxBacklog   prometheus.Gauge

	// --- Ingestion ---
	CommandsReceived *prometheus.CounterVec
	CommandsFailed   *prometheus.CounterVec

	// --- API ---
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them on reg. Tests pass a
// fresh prometheus.NewRegistry(); the daemon passes the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	opBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
	}

	return &Metrics{
		// Engine
		OpsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_applied_total",
			Help: "State transitions committed",
		}, []string{"op"}),

		OpsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_rejected_total",
			Help: "State transitions aborted, by error code",
		}, []string{"op", "code"}),

		OpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_op_duration_seconds",
			Help:    "End-to-end transition latency including custody and commit",
			Buckets: opBuckets,
		}, []string{"op"}),

		EventsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_events_appended_total",
			Help: "Events appended to the log",
		}, []string{"event_type"}),

		ChainSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_chain_sequence",
			Help: "Sequence of the last committed event",
		}),

		// Custody
		CustodyCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_custody_call_duration_seconds",
			Help:    "Custodian call latency",
			Buckets: opBuckets,
		}, []string{"call"}),

		CustodyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_custody_failures_total",
			Help: "Custodian calls that failed and rolled back the transition",
		}, []string{"call"}),

		// Idempotency
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_idempotency_duplicates_total",
			Help: "Duplicate requests detected",
		}, []string{"op", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_dedup_lru_size",
			Help: "Entries in the idempotency LRU",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_dedup_lru_evictions_total",
			Help: "Idempotency LRU evictions",
		}),

		DedupTier2Errors: f.NewCounter(prometheus.CounterOpts{
			Name: "vault_dedup_tier2_errors_total",
			Help: "Store lookups for idempotency keys that failed",
		}),

		// Outbox
		OutboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_outbox_published_total",
			Help: "Events handed to a broker",
		}, []string{"sink"}),

		OutboxErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_outbox_errors_total",
			Help: "Outbox publish or mark failures",
		}, []string{"sink", "stage"}),

		OutboxBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_outbox_batch_size",
			Help:    "Events per relay poll",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		OutboxBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "vault_outbox_backlog",
			Help: "Unpublished events seen by the last poll",
		}),

		// Ingestion
		CommandsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_commands_received_total",
			Help: "Commands received from NATS",
		}, []string{"command"}),

		CommandsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_commands_failed_total",
			Help: "Commands that failed, by disposition",
		}, []string{"command", "disposition"}),

		// API
		APIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_api_requests_total",
			Help: "RPC requests by method and status code",
		}, []string{"method", "code"}),

		APIDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_api_duration_seconds",
			Help:    "RPC latency",
			Buckets: opBuckets,
		}, []string{"method"}),
	}
}
