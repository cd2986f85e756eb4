package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acctos",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "acctos",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	ledgerTxs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acctos",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Top-level ledger transactions by entry point and outcome.",
		},
		[]string{"entry", "outcome"},
	)
	ledgerTxDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "acctos",
			Subsystem: "ledger",
			Name:      "transaction_duration_seconds",
			Help:      "Top-level ledger transaction duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"entry", "outcome"},
	)
	reconcileChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acctos",
			Subsystem: "ans",
			Name:      "reconcile_chunks_total",
			Help:      "Name-resolution reconciliation chunks by entry kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	reconcileEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "acctos",
			Subsystem: "ans",
			Name:      "reconcile_entries_total",
			Help:      "Entries carried by committed reconciliation chunks.",
		},
		[]string{"kind"},
	)
)

const (
	OutcomeCommitted = "committed"
	OutcomeReverted  = "reverted"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			ledgerTxs,
			ledgerTxDuration,
			reconcileChunks,
			reconcileEntries,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordTransaction counts one top-level ledger transaction.
func RecordTransaction(entry string, committed bool, duration time.Duration) {
	RegisterMetrics()
	outcome := OutcomeReverted
	if committed {
		outcome = OutcomeCommitted
	}
	ledgerTxs.WithLabelValues(entry, outcome).Inc()
	ledgerTxDuration.WithLabelValues(entry, outcome).Observe(duration.Seconds())
}

// RecordReconcileChunk counts one submitted reconciliation chunk.
func RecordReconcileChunk(kind, outcome string, entries int) {
	RegisterMetrics()
	reconcileChunks.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeCommitted && entries > 0 {
		reconcileEntries.WithLabelValues(kind).Add(float64(entries))
	}
}

// TransactionCount reads the current transaction counter, used by tests and /ready.
func TransactionCount(entry string, committed bool) prometheus.Counter {
	outcome := OutcomeReverted
	if committed {
		outcome = OutcomeCommitted
	}
	return ledgerTxs.WithLabelValues(entry, outcome)
}

// ReconcileChunkCount exposes one chunk counter series.
func ReconcileChunkCount(kind, outcome string) prometheus.Counter {
	return reconcileChunks.WithLabelValues(kind, outcome)
}
