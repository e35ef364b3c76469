// Package postbox implements an embedded transactional key/value store
// with a single serialized writer and reactive, materialized views.
//
//	+-----------------------------------------------------------+
//	|                         Postbox                            |
//	|                                                             |
//	|   jobs chan func()        worker goroutine (single writer) |
//	|   ───────────────►  ┌───────────────────────────────────┐  |
//	|                      │ runTransaction(fn)                │  |
//	|                      │   begin -> fn(Modifier) -> flush  │  |
//	|                      │   -> replay views -> commit       │  |
//	|                      └───────────────┬───────────────────┘  |
//	|                                      │                       |
//	|         +----------------------------+----------------+      |
//	|         │                │               │             │      |
//	|   MetadataTable   RecordTable   SharedDataTable  ItemCollectionTable
//	|   (+accountMetadataTable)                                    |
//	|         │                │               │             │      |
//	|         +----------------+---------------+-------------+      |
//	|                           valuebox.Transaction                |
//	+-----------------------------------------------------------+
//
// Every table stages writes in its own in-memory cache and flushes them
// in BeforeCommit; ClearMemoryCache discards read caches between
// transactions, refusing to do so while dirty state is pending. A
// transaction's operation log -- which records survived,
// which were touched, which shared-data keys changed -- drives a
// second, read-only pass, after the flush and before the commit,
// where every registered view decides whether
// to reload and, if so, pushes its new snapshot to every subscriber
// through a blocking channel. No snapshot is ever dropped or coalesced:
// a slow subscriber only slows the notifying transaction's return, it
// never loses an update.
package postbox
