// Package metrics holds the Prometheus collectors of the ingestion engine.
// Collectors are registered with the default registry on first use.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	initOnce sync.Once

	chunkCommits       *prometheus.CounterVec
	commitRetries      prometheus.Counter
	recordsProcessed   *prometheus.CounterVec
	strategySelections *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	fallbackAllocs     prometheus.Counter
	ingestDuration     prometheus.Histogram
)

func initMetrics() {
	initOnce.Do(func() {
		chunkCommits = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_chunk_commits_total",
			Help: "Atomic chunk commits by outcome",
		}, []string{"outcome"})

		commitRetries = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_commit_retries_total",
			Help: "Commit attempts beyond the first",
		})

		recordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_records_total",
			Help: "Records processed by bulk operations",
		}, []string{"operation", "outcome"})

		strategySelections = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_strategy_selections_total",
			Help: "Ingestion strategies selected",
		}, []string{"strategy"})

		cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_account_cache_lookups_total",
			Help: "Bank account cache lookups by result",
		}, []string{"result"})

		fallbackAllocs = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_fallback_allocations_total",
			Help: "Batches numbered with fallback reference numbers",
		})

		ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_ingest_duration_seconds",
			Help:    "Time taken to ingest one batch",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		})
	})
}

// ChunkCommitted counts a chunk commit that succeeded or exhausted its retries.
func ChunkCommitted(ok bool) {
	initMetrics()
	outcome := "success"
	if !ok {
		outcome = "failed"
	}
	chunkCommits.WithLabelValues(outcome).Inc()
}

// CommitRetried counts one retried commit attempt.
func CommitRetried() {
	initMetrics()
	commitRetries.Inc()
}

// RecordsProcessed adds success and failed counts for operation ("ingest" or "delete").
func RecordsProcessed(operation string, success, failed int) {
	initMetrics()
	recordsProcessed.WithLabelValues(operation, "success").Add(float64(success))
	recordsProcessed.WithLabelValues(operation, "failed").Add(float64(failed))
}

// StrategySelected counts a strategy selection.
func StrategySelected(strategy string) {
	initMetrics()
	strategySelections.WithLabelValues(strategy).Inc()
}

// CacheLookup counts a cache hit or miss.
func CacheLookup(hit bool) {
	initMetrics()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// FallbackAllocated counts a batch numbered by the fallback path.
func FallbackAllocated() {
	initMetrics()
	fallbackAllocs.Inc()
}

// ObserveIngest records the duration of one ingest call in seconds.
func ObserveIngest(seconds float64) {
	initMetrics()
	ingestDuration.Observe(seconds)
}
