/*
Package log provides structured logging for the postbox engine using zerolog.

The package wraps zerolog to give every component — tables, the
transaction worker, view registries — a JSON-structured logger with a
component field, without threading a logger instance through every
constructor by hand.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	logger := log.WithComponent("transaction-worker")
	logger.Debug().Int("tables_flushed", 3).Msg("commit complete")

	tableLogger := log.WithTable("metadata")
	tableLogger.Warn().Err(err).Msg("flush failed")

Console output (JSONOutput: false) is meant for local development; the
engine itself never changes its own log level at runtime, that is a
host concern expressed through Config.
*/
package log
