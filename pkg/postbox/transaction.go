package postbox

import (
	"fmt"

	"github.com/nodye/postbox/pkg/metrics"
)

// Result is delivered on the channel Transaction returns: either a
// value and a nil error, or a zero value and a non-nil error.
type Result[T any] struct {
	Value T
	Err   error
}

// Transaction submits fn to run against the postbox's single writer
// goroutine and returns a channel that receives exactly one Result
// once fn has run and, if it did not return an error, been committed.
// Go methods cannot be generic, so this is a package-level function
// taking the engine as its first argument rather than a method on
// Postbox.
func Transaction[T any](pb *Postbox, fn func(*Modifier) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	job := func() {
		value, err := runTransaction(pb, fn)
		out <- Result[T]{Value: value, Err: err}
	}

	select {
	case <-pb.closed:
		var zero T
		out <- Result[T]{Value: zero, Err: ErrClosed}
		return out
	default:
	}

	select {
	case pb.jobs <- job:
	case <-pb.closed:
		var zero T
		out <- Result[T]{Value: zero, Err: ErrClosed}
	}
	return out
}

// runTransaction executes fn against a fresh valuebox transaction,
// flushes every table, replays every active view against that same
// transaction's now-staged state, and only then commits: views are
// notified before the store commit returns, but after tables have
// staged their final in-memory state, so the snapshot a view emits is
// bit-identical to what a subsequent read-only transaction would see.
// A storage failure at any point clears every table's memory cache and
// rolls back; an error returned by fn itself propagates without a
// cache clear, since BeforeCommit never ran and nothing was staged
// that needs discarding.
func runTransaction[T any](pb *Postbox, fn func(*Modifier) (T, error)) (T, error) {
	timer := metrics.NewTimer()
	var zero T

	m := pb.modifier
	m.resetOperationLogs()

	tx, err := pb.store.Begin()
	if err != nil {
		metrics.TransactionsTotal.WithLabelValues("storage_error").Inc()
		return zero, fmt.Errorf("postbox: begin transaction: %w", err)
	}
	m.tx = tx

	value, err := fn(m)
	if err != nil {
		_ = tx.Rollback()
		metrics.TransactionsTotal.WithLabelValues("logic_error").Inc()
		return zero, err
	}

	for _, table := range m.tables() {
		if err := table.BeforeCommit(tx); err != nil {
			_ = tx.Rollback()
			pb.clearAllMemoryCaches()
			metrics.TransactionsTotal.WithLabelValues("storage_error").Inc()
			return zero, fmt.Errorf("postbox: flush before commit: %w", err)
		}
	}

	opLog := m.collectOperationLog()

	if err := pb.views.replayAll(tx, opLog); err != nil {
		_ = tx.Rollback()
		pb.clearAllMemoryCaches()
		metrics.TransactionsTotal.WithLabelValues("storage_error").Inc()
		return zero, fmt.Errorf("postbox: view replay: %w", err)
	}

	if err := tx.Commit(); err != nil {
		pb.clearAllMemoryCaches()
		metrics.TransactionsTotal.WithLabelValues("storage_error").Inc()
		return zero, fmt.Errorf("postbox: commit: %w", err)
	}

	metrics.TransactionsTotal.WithLabelValues("committed").Inc()
	timer.ObserveDuration(metrics.TransactionDuration)
	return value, nil
}
