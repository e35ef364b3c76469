package postbox

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nodye/postbox/pkg/log"
	"github.com/nodye/postbox/pkg/valuebox"
)

var tableNames = []valuebox.Table{
	MetadataTableName,
	AccountMetadataTableName,
	RecordTableName,
	SharedDataTableName,
	ItemCollectionTableName,
}

// Postbox is the embedded transactional store: a single
// serialized writer goroutine mediating every table, with a view
// registry driven off each committed transaction's operation log.
type Postbox struct {
	store  *valuebox.KV
	logger zerolog.Logger

	sessionID          string
	temporarySessionID int64

	modifier *Modifier
	views    *viewRegistry

	jobs      chan func()
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open starts the store rooted at basePath, creates its tables, and
// starts the single writer goroutine. The returned Postbox must be
// closed with Close.
func Open(basePath string) (*Postbox, error) {
	store, err := valuebox.Open(basePath, tableNames)
	if err != nil {
		return nil, fmt.Errorf("postbox: open: %w", err)
	}

	sessionID := uuid.New().String()
	logger := log.WithSession(sessionID)

	pb := &Postbox{
		store:              store,
		logger:             logger,
		sessionID:          sessionID,
		temporarySessionID: newTemporarySessionID(),
		views:              newViewRegistry(),
		jobs:               make(chan func(), 64),
		closed:             make(chan struct{}),
	}
	pb.modifier = &Modifier{
		Metadata:        NewMetadataTable(),
		AccountMetadata: newAccountMetadataTable(),
		Records:         NewRecordTable(),
		SharedData:      NewSharedDataTable(),
		ItemCollections: NewItemCollectionTable(),
	}

	pb.wg.Add(1)
	go pb.worker()

	logger.Info().Str("path", basePath).Msg("postbox opened")
	return pb, nil
}

// worker is the single serialized writer goroutine: every Transaction
// call is just a job enqueued here, so no two transactions ever run
// concurrently against the store.
func (pb *Postbox) worker() {
	defer pb.wg.Done()
	for {
		select {
		case job := <-pb.jobs:
			job()
		case <-pb.closed:
			for {
				select {
				case job := <-pb.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

// Close stops accepting new transactions, waits for the worker to
// drain, and closes the underlying store. Calling Close more than once
// is safe.
func (pb *Postbox) Close() error {
	pb.closeOnce.Do(func() {
		close(pb.closed)
	})
	pb.wg.Wait()
	pb.logger.Info().Msg("postbox closed")
	return pb.store.Close()
}

func (pb *Postbox) clearAllMemoryCaches() {
	for _, table := range pb.modifier.tables() {
		if err := table.ClearMemoryCache(); err != nil {
			pb.logger.Error().Err(err).Msg("clear memory cache failed after storage error")
		}
	}
}

// AccountRecordView returns a live view over the record at id,
// registered with the engine's view registry so the worker goroutine
// replays it in every transaction, after the tables flush and before
// the commit. The view (and its registration) live
// as long as the owning Postbox; individual Subscribe/Unsubscribe calls
// only add and remove delivery sinks on top of it.
func (pb *Postbox) AccountRecordView(id AccountRecordID) *AccountRecordView {
	v := newAccountRecordView(pb.modifier.Records, id)
	pb.views.register(v)
	return v
}

// AccountSharedDataView returns a live view over the given set of
// shared-data keys.
func (pb *Postbox) AccountSharedDataView(keys [][]byte) *AccountSharedDataView {
	v := newAccountSharedDataView(pb.modifier.SharedData, keys)
	pb.views.register(v)
	return v
}

// ItemCollectionInfosView returns a live view over the ItemCollectionInfo
// rows of the given namespaces.
func (pb *Postbox) ItemCollectionInfosView(namespaces []int32) *ItemCollectionInfosView {
	v := newItemCollectionInfosView(pb.modifier.ItemCollections, namespaces)
	pb.views.register(v)
	return v
}

// CurrentAccountID returns the account-manager core's current account
// id, minting one if allocateIfNotExists is true and none exists yet.
func (pb *Postbox) CurrentAccountID(allocateIfNotExists bool) <-chan Result[AccountRecordID] {
	return Transaction(pb, func(m *Modifier) (AccountRecordID, error) {
		id, _, err := m.AccountMetadata.CurrentAccountID(m.tx, allocateIfNotExists)
		return id, err
	})
}

// AllocatedTemporaryAccountID returns the process-lifetime temporary
// account id, creating a record tagged with this process's temporary
// session id on first call.
func (pb *Postbox) AllocatedTemporaryAccountID() <-chan Result[AccountRecordID] {
	return Transaction(pb, func(m *Modifier) (AccountRecordID, error) {
		return m.AccountMetadata.AllocatedTemporaryAccountID(m.tx, m.Records, pb.temporarySessionID)
	})
}

// GetRecord returns the record at id, or a nil record if it does not exist.
func (pb *Postbox) GetRecord(id AccountRecordID) <-chan Result[*AccountRecord] {
	return Transaction(pb, func(m *Modifier) (*AccountRecord, error) {
		record, _, err := m.Records.GetRecord(m.tx, id)
		return record, err
	})
}

// CreateRecord stages a new record and returns its freshly minted id.
func (pb *Postbox) CreateRecord(fields map[string]json.RawMessage) <-chan Result[AccountRecordID] {
	return Transaction(pb, func(m *Modifier) (AccountRecordID, error) {
		return m.Records.CreateRecord(m.tx, fields)
	})
}

// SetRecord replaces the fields of an existing record.
func (pb *Postbox) SetRecord(id AccountRecordID, fields map[string]json.RawMessage) <-chan Result[struct{}] {
	return Transaction(pb, func(m *Modifier) (struct{}, error) {
		return struct{}{}, m.Records.SetRecord(m.tx, id, fields)
	})
}

// RemoveRecord tombstones a record.
func (pb *Postbox) RemoveRecord(id AccountRecordID) <-chan Result[struct{}] {
	return Transaction(pb, func(m *Modifier) (struct{}, error) {
		return struct{}{}, m.Records.RemoveRecord(m.tx, id)
	})
}

// GetSharedData returns the value at key, or a nil value if absent.
func (pb *Postbox) GetSharedData(key []byte) <-chan Result[[]byte] {
	return Transaction(pb, func(m *Modifier) ([]byte, error) {
		value, _, err := m.SharedData.Get(m.tx, key)
		return value, err
	})
}

// SetSharedData writes value at key, subject to equality gating: a
// write identical to the current value is silently dropped.
func (pb *Postbox) SetSharedData(key, value []byte) <-chan Result[struct{}] {
	return Transaction(pb, func(m *Modifier) (struct{}, error) {
		return struct{}{}, m.SharedData.Set(m.tx, key, value)
	})
}

// RemoveSharedData tombstones key.
func (pb *Postbox) RemoveSharedData(key []byte) <-chan Result[struct{}] {
	return Transaction(pb, func(m *Modifier) (struct{}, error) {
		return struct{}{}, m.SharedData.Remove(m.tx, key)
	})
}

// ReplaceItemCollectionInfos replaces every ItemCollectionInfo row in
// namespace.
func (pb *Postbox) ReplaceItemCollectionInfos(namespace int32, infos []ItemCollectionInfo) <-chan Result[struct{}] {
	return Transaction(pb, func(m *Modifier) (struct{}, error) {
		return struct{}{}, m.ItemCollections.ReplaceInfos(m.tx, namespace, infos)
	})
}

// ReplaceItemCollectionItems replaces every item in collectionID.
func (pb *Postbox) ReplaceItemCollectionItems(collectionID ItemCollectionID, items map[int64]json.RawMessage) <-chan Result[struct{}] {
	return Transaction(pb, func(m *Modifier) (struct{}, error) {
		return struct{}{}, m.ItemCollections.ReplaceItems(m.tx, collectionID, items)
	})
}
