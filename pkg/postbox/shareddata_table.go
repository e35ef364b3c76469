package postbox

import (
	"bytes"

	"github.com/rs/zerolog"

	"github.com/nodye/postbox/pkg/log"
	"github.com/nodye/postbox/pkg/valuebox"
)

// SharedDataTableName is the underlying bucket backing SharedDataTable.
const SharedDataTableName valuebox.Table = "shareddata"

type sharedDataCacheEntry struct {
	value   []byte // nil means tombstoned
	loaded  bool
	dirty   bool
	deleted bool
}

// SharedDataTable stores arbitrary keyed blobs for the account-manager
// core. Writes are equality-gated: a Set whose bytes are
// identical to the cached value is dropped before it reaches the dirty
// set or the updated-key log, so redundant writers never wake
// subscribers or grow the operation log.
type SharedDataTable struct {
	logger zerolog.Logger

	cache   map[string]*sharedDataCacheEntry
	updated updatedKeySet
}

// NewSharedDataTable constructs an empty shared-data table.
func NewSharedDataTable() *SharedDataTable {
	return &SharedDataTable{
		logger:  log.WithTable(string(SharedDataTableName)),
		cache:   make(map[string]*sharedDataCacheEntry),
		updated: make(updatedKeySet),
	}
}

// Get returns the value at key, reading through to the store on a
// cache miss.
func (t *SharedDataTable) Get(tx *valuebox.Transaction, key []byte) ([]byte, bool, error) {
	k := string(key)
	if entry, ok := t.cache[k]; ok && entry.loaded {
		return entry.value, entry.value != nil, nil
	}

	raw, ok, err := tx.Get(SharedDataTableName, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		t.cache[k] = &sharedDataCacheEntry{loaded: true}
		return nil, false, nil
	}
	value := append([]byte(nil), raw...)
	t.cache[k] = &sharedDataCacheEntry{value: value, loaded: true}
	return value, true, nil
}

// Set writes value at key. If value equals the currently cached bytes,
// the write is silently dropped: no dirty flag, no entry
// in the updated-key log for this transaction.
func (t *SharedDataTable) Set(tx *valuebox.Transaction, key, value []byte) error {
	current, exists, err := t.Get(tx, key)
	if err != nil {
		return err
	}
	if exists && bytes.Equal(current, value) {
		return nil
	}
	k := string(key)
	t.cache[k] = &sharedDataCacheEntry{value: append([]byte(nil), value...), loaded: true, dirty: true}
	t.updated.add(key)
	return nil
}

// Remove tombstones key. A key that does not exist is a no-op and is
// not logged as updated.
func (t *SharedDataTable) Remove(tx *valuebox.Transaction, key []byte) error {
	_, exists, err := t.Get(tx, key)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	k := string(key)
	t.cache[k] = &sharedDataCacheEntry{loaded: true, dirty: true, deleted: true}
	t.updated.add(key)
	return nil
}

// UpdatedKeys returns the keys written or removed since the last reset.
func (t *SharedDataTable) UpdatedKeys() []string {
	keys := make([]string, 0, len(t.updated))
	for k := range t.updated {
		keys = append(keys, k)
	}
	return keys
}

func (t *SharedDataTable) resetOperations() {
	t.updated = make(updatedKeySet)
}

// BeforeCommit flushes every dirty cache entry.
func (t *SharedDataTable) BeforeCommit(tx *valuebox.Transaction) error {
	for k, entry := range t.cache {
		if !entry.dirty {
			continue
		}
		key := []byte(k)
		if entry.deleted {
			if err := tx.Remove(SharedDataTableName, key); err != nil {
				return err
			}
		} else {
			if err := tx.Set(SharedDataTableName, key, entry.value); err != nil {
				return err
			}
		}
		entry.dirty = false
	}
	t.logger.Debug().Int("updated_keys", len(t.updated)).Msg("shared data table flushed")
	return nil
}

// ClearMemoryCache discards the read cache.
func (t *SharedDataTable) ClearMemoryCache() error {
	for _, entry := range t.cache {
		if entry.dirty {
			return ErrDirtyCache
		}
	}
	t.cache = make(map[string]*sharedDataCacheEntry)
	return nil
}
