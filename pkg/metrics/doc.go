/*
Package metrics provides Prometheus instrumentation for the postbox engine.

Every long-lived component — the transaction worker, the metadata
table's counters, and the view registries — reports through the
package-level collectors here rather than opening its own HTTP
listener; exposing them over /metrics remains a decision for the host
process, which calls Handler().

# Metrics Catalog

postbox_transactions_total{result}:
  - Type: Counter
  - Description: transactions run by the worker, result is "committed", "logic_error" or "storage_error"

postbox_transaction_duration_seconds:
  - Type: Histogram
  - Description: time from worker dequeue to commit return

postbox_view_emissions_total{view}:
  - Type: Counter
  - Description: snapshots pushed to subscribers, by view kind

postbox_view_replay_duration_seconds{view}:
  - Type: Histogram
  - Description: time spent inside a view's replay call

postbox_table_cache_entries{table}:
  - Type: Gauge
  - Description: decoded values currently held in a table's memory cache

postbox_counter_allocations_total{counter}:
  - Type: Counter
  - Description: monotonic IDs handed out by the metadata table, by counter kind

# Usage

	timer := metrics.NewTimer()
	// ... run the commit pipeline ...
	timer.ObserveDuration(metrics.TransactionDuration)
	metrics.TransactionsTotal.WithLabelValues("committed").Inc()

All metrics are registered against the default Prometheus registry at
package init, matching the rest of the engine's ambient stack.
*/
package metrics
