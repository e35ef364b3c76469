package postbox

import "github.com/nodye/postbox/pkg/valuebox"

// Table is the contract every persistent table implements to
// participate in caching, buffering, and the commit pipeline. Reads
// and writes happen through domain-specific methods on the concrete
// table type, which stage into its own in-memory cache; BeforeCommit
// and ClearMemoryCache are the only hooks the driver calls directly.
type Table interface {
	// BeforeCommit flushes all dirty in-memory state to tx and clears
	// dirty flags. Idempotent when nothing is dirty.
	BeforeCommit(tx *valuebox.Transaction) error

	// ClearMemoryCache discards every read cache. It returns
	// ErrDirtyCache if any dirty (unflushed) state is present; callers
	// must commit or abort the owning transaction first.
	ClearMemoryCache() error
}
