/*
Package valuebox is the ordered byte-level key/value store that
underpins the postbox engine, backed by bbolt.

# Architecture

	┌──────────────────── VALUEBOX ─────────────────────┐
	│                                                     │
	│  ┌───────────────────────────────────────┐        │
	│  │                KV                      │        │
	│  │  - File: <basePath>/postbox.db         │        │
	│  │  - One bucket per Table                │        │
	│  └──────────────────┬──────────────────────┘        │
	│                     │                                 │
	│  ┌──────────────────▼──────────────────────┐        │
	│  │             Transaction                  │        │
	│  │  - begin(true) / commit / rollback       │        │
	│  │  - get / set / exists / remove           │        │
	│  │  - Range / RangePrefix / First           │        │
	│  └───────────────────────────────────────────┘        │
	└─────────────────────────────────────────────────────┘

Every table the postbox engine needs is created at Open time; nothing
above this package ever creates a bucket lazily. Keys and values are
opaque []byte — this package never decodes them, and never assigns
meaning to a key byte beyond ordering it lexicographically for Range.
*/
package valuebox
