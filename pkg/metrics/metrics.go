package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsTotal counts transactions run by the worker, by
	// result: "committed", "logic_error" or "storage_error".
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postbox_transactions_total",
			Help: "Total number of transactions by result",
		},
		[]string{"result"},
	)

	TransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "postbox_transaction_duration_seconds",
			Help:    "Time from worker dequeue to commit return in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ViewEmissionsTotal counts snapshots pushed to subscribers, by view kind.
	ViewEmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postbox_view_emissions_total",
			Help: "Total number of view snapshots emitted to subscribers",
		},
		[]string{"view"},
	)

	ViewReplayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postbox_view_replay_duration_seconds",
			Help:    "Time spent in a view's replay call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"view"},
	)

	// CacheEntries reports the current size of a table's in-memory cache.
	CacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "postbox_table_cache_entries",
			Help: "Number of decoded values held in a table's memory cache",
		},
		[]string{"table"},
	)

	CounterAllocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postbox_counter_allocations_total",
			Help: "Total number of monotonic IDs handed out by the metadata table",
		},
		[]string{"counter"},
	)
)

func init() {
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionDuration)
	prometheus.MustRegister(ViewEmissionsTotal)
	prometheus.MustRegister(ViewReplayDuration)
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(CounterAllocationsTotal)
}

// Handler returns the Prometheus HTTP handler for the process embedding this store.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vector.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
