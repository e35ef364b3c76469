package postbox

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/nodye/postbox/pkg/log"
	"github.com/nodye/postbox/pkg/valuebox"
)

// AccountMetadataTableName is the underlying bucket backing
// accountMetadataTable. It is kept separate from MetadataTableName
// because it belongs to the account-manager core rather than the
// messaging/history core, even though both are
// small singleton-scalar tables with the same shape.
const AccountMetadataTableName valuebox.Table = "account_metadata"

var (
	currentAccountIDKey   = []byte{0}
	temporaryAccountIDKey = []byte{1}
)

type accountMetadataTable struct {
	logger zerolog.Logger

	currentAccountID      *AccountRecordID
	currentAccountIDDirty bool

	temporaryAccountID      *AccountRecordID
	temporaryAccountIDDirty bool

	operations []MetadataOperation
}

func newAccountMetadataTable() *accountMetadataTable {
	return &accountMetadataTable{logger: log.WithTable(string(AccountMetadataTableName))}
}

// CurrentAccountID returns the current account id singleton. If it has
// never been set and allocateIfNotExists is true, a fresh
// AccountRecordID is minted, cached, and marked dirty; subsequent reads
// within the same or later transactions see the same value.
func (t *accountMetadataTable) CurrentAccountID(tx *valuebox.Transaction, allocateIfNotExists bool) (AccountRecordID, bool, error) {
	if t.currentAccountID != nil {
		return *t.currentAccountID, true, nil
	}

	raw, ok, err := tx.Get(AccountMetadataTableName, currentAccountIDKey)
	if err != nil {
		return 0, false, err
	}
	if ok {
		id := AccountRecordID(decodeUint64(raw))
		t.currentAccountID = &id
		return id, true, nil
	}
	if !allocateIfNotExists {
		return 0, false, nil
	}

	id := newAccountRecordID()
	t.currentAccountID = &id
	t.currentAccountIDDirty = true
	t.operations = append(t.operations, MetadataOperation{Kind: MetadataOperationCurrentIDChanged})
	return id, true, nil
}

// AllocatedTemporaryAccountID returns the process-lifetime temporary id
// handed out before a real account exists. On first call it creates a
// fresh record tagged with temporarySessionID so upper layers can find
// and reclaim it on a later open if the tag no longer matches the
// current process's.
func (t *accountMetadataTable) AllocatedTemporaryAccountID(tx *valuebox.Transaction, records *RecordTable, temporarySessionID int64) (AccountRecordID, error) {
	if t.temporaryAccountID != nil {
		return *t.temporaryAccountID, nil
	}
	raw, ok, err := tx.Get(AccountMetadataTableName, temporaryAccountIDKey)
	if err != nil {
		return 0, err
	}
	if ok {
		id := AccountRecordID(decodeUint64(raw))
		record, exists, err := records.GetRecord(tx, id)
		if err != nil {
			return 0, err
		}
		if exists && record.TemporarySessionID != nil && *record.TemporarySessionID == temporarySessionID {
			t.temporaryAccountID = &id
			return id, nil
		}
	}
	id, err := records.CreateTaggedRecord(tx, map[string]json.RawMessage{}, temporarySessionID)
	if err != nil {
		return 0, err
	}
	t.temporaryAccountID = &id
	t.temporaryAccountIDDirty = true
	return id, nil
}

// Operations returns the metadata operations logged since the last reset.
func (t *accountMetadataTable) Operations() []MetadataOperation {
	return t.operations
}

func (t *accountMetadataTable) resetOperations() {
	t.operations = nil
}

// BeforeCommit flushes both singletons.
func (t *accountMetadataTable) BeforeCommit(tx *valuebox.Transaction) error {
	if t.currentAccountIDDirty {
		if err := tx.Set(AccountMetadataTableName, currentAccountIDKey, encodeUint64(uint64(*t.currentAccountID))); err != nil {
			return err
		}
		t.currentAccountIDDirty = false
	}
	if t.temporaryAccountIDDirty {
		if err := tx.Set(AccountMetadataTableName, temporaryAccountIDKey, encodeUint64(uint64(*t.temporaryAccountID))); err != nil {
			return err
		}
		t.temporaryAccountIDDirty = false
	}
	t.logger.Debug().Msg("account metadata table flushed")
	return nil
}

// ClearMemoryCache discards both cached singletons.
func (t *accountMetadataTable) ClearMemoryCache() error {
	if t.currentAccountIDDirty || t.temporaryAccountIDDirty {
		return ErrDirtyCache
	}
	t.currentAccountID = nil
	t.temporaryAccountID = nil
	return nil
}
