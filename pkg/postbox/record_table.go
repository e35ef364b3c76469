package postbox

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nodye/postbox/pkg/log"
	"github.com/nodye/postbox/pkg/metrics"
	"github.com/nodye/postbox/pkg/valuebox"
)

// RecordTableName is the underlying bucket backing RecordTable.
const RecordTableName valuebox.Table = "records"

type recordCacheEntry struct {
	value   *AccountRecord // nil means tombstoned
	loaded  bool
	dirty   bool
	deleted bool
}

// RecordTable is the account-manager core's record store: CRUD over
// opaque AccountRecord rows, with every write appended to a
// per-transaction operation log. Unlike SharedDataTable
// it applies no equality gating — every Set call that changes the
// cached value is logged, even if the new bytes happen to encode the
// same fields.
type RecordTable struct {
	logger zerolog.Logger

	cache      map[AccountRecordID]*recordCacheEntry
	operations []RecordOperation
}

// NewRecordTable constructs an empty record table.
func NewRecordTable() *RecordTable {
	return &RecordTable{
		logger: log.WithTable(string(RecordTableName)),
		cache:  make(map[AccountRecordID]*recordCacheEntry),
	}
}

// GetRecord returns the record at id, reading through to the store on
// a cache miss.
func (t *RecordTable) GetRecord(tx *valuebox.Transaction, id AccountRecordID) (*AccountRecord, bool, error) {
	if entry, ok := t.cache[id]; ok && entry.loaded {
		return entry.value, entry.value != nil, nil
	}

	raw, ok, err := tx.Get(RecordTableName, recordKey(id))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		t.cache[id] = &recordCacheEntry{loaded: true}
		return nil, false, nil
	}
	record, err := decodeAccountRecord(id, raw)
	if err != nil {
		return nil, false, fmt.Errorf("postbox: decode record %d: %w", id, err)
	}
	t.cache[id] = &recordCacheEntry{value: &record, loaded: true}
	return &record, true, nil
}

// CreateRecord allocates a fresh record id and stages fields for it.
func (t *RecordTable) CreateRecord(tx *valuebox.Transaction, fields map[string]json.RawMessage) (AccountRecordID, error) {
	return t.createRecord(tx, fields, nil)
}

// CreateTaggedRecord allocates a fresh record tagged with
// temporarySessionID, marking it ephemeral.
func (t *RecordTable) CreateTaggedRecord(tx *valuebox.Transaction, fields map[string]json.RawMessage, temporarySessionID int64) (AccountRecordID, error) {
	return t.createRecord(tx, fields, &temporarySessionID)
}

func (t *RecordTable) createRecord(tx *valuebox.Transaction, fields map[string]json.RawMessage, tag *int64) (AccountRecordID, error) {
	id := newAccountRecordID()
	record := AccountRecord{ID: id, Fields: fields, TemporarySessionID: tag}
	t.cache[id] = &recordCacheEntry{value: &record, loaded: true, dirty: true}
	t.operations = append(t.operations, RecordOperation{ID: id, Before: nil, After: &record})
	metrics.CacheEntries.WithLabelValues(string(RecordTableName)).Set(float64(len(t.cache)))
	return id, nil
}

// SetRecord replaces an existing record's fields. It returns
// ErrRecordNotFound if id does not yet exist -- callers that want to
// create a row must use CreateRecord.
func (t *RecordTable) SetRecord(tx *valuebox.Transaction, id AccountRecordID, fields map[string]json.RawMessage) error {
	before, exists, err := t.GetRecord(tx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("postbox: set record %d: %w", id, ErrRecordNotFound)
	}
	after := AccountRecord{ID: id, Fields: fields}
	t.cache[id] = &recordCacheEntry{value: &after, loaded: true, dirty: true}
	t.operations = append(t.operations, RecordOperation{ID: id, Before: before, After: &after})
	return nil
}

// RemoveRecord tombstones id. It is a no-op if the record does not exist.
func (t *RecordTable) RemoveRecord(tx *valuebox.Transaction, id AccountRecordID) error {
	before, exists, err := t.GetRecord(tx, id)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	t.cache[id] = &recordCacheEntry{value: nil, loaded: true, dirty: true, deleted: true}
	t.operations = append(t.operations, RecordOperation{ID: id, Before: before, After: nil})
	return nil
}

// Operations returns the operations logged since the last reset.
func (t *RecordTable) Operations() []RecordOperation {
	return t.operations
}

// resetOperations clears the operation log; called once per
// transaction by the driver before a job runs.
func (t *RecordTable) resetOperations() {
	t.operations = nil
}

// BeforeCommit flushes every dirty cache entry.
func (t *RecordTable) BeforeCommit(tx *valuebox.Transaction) error {
	for id, entry := range t.cache {
		if !entry.dirty {
			continue
		}
		if entry.deleted {
			if err := tx.Remove(RecordTableName, recordKey(id)); err != nil {
				return err
			}
		} else {
			encoded, err := encodeAccountRecord(*entry.value)
			if err != nil {
				return fmt.Errorf("postbox: encode record %d: %w", id, err)
			}
			if err := tx.Set(RecordTableName, recordKey(id), encoded); err != nil {
				return err
			}
		}
		entry.dirty = false
	}
	t.logger.Debug().Int("operations", len(t.operations)).Msg("record table flushed")
	return nil
}

// ClearMemoryCache discards the read cache.
func (t *RecordTable) ClearMemoryCache() error {
	for _, entry := range t.cache {
		if entry.dirty {
			return ErrDirtyCache
		}
	}
	t.cache = make(map[AccountRecordID]*recordCacheEntry)
	return nil
}
