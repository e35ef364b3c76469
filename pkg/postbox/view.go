package postbox

import (
	"encoding/json"
	"time"

	"github.com/nodye/postbox/pkg/metrics"
	"github.com/nodye/postbox/pkg/valuebox"
)

// operationLog collects everything tables logged during one
// transaction, in the shape views need to decide whether to replay.
// It is built once per transaction, after every table's BeforeCommit
// has run, and handed to every active view.
type operationLog struct {
	records       []RecordOperation
	sharedDataKey updatedKeySet
	infoOps       []ItemCollectionInfoOperation
	itemOps       []ItemCollectionItemOperation
}

// replayable is the common contract the transaction driver uses to
// recompute and notify every live view once a transaction's tables
// have flushed, before its commit.
type replayable interface {
	replay(tx *valuebox.Transaction, log *operationLog) (bool, error)
	notify()
	viewName() string
}

// AccountRecordView watches a single account record and emits its
// current value (nil after a delete) to every subscriber whenever a
// committed transaction touches that record's id.
type AccountRecordView struct {
	id          AccountRecordID
	table       *RecordTable
	current     *AccountRecord
	subscribers *Bag[*sink[*AccountRecord]]
}

func newAccountRecordView(table *RecordTable, id AccountRecordID) *AccountRecordView {
	return &AccountRecordView{id: id, table: table, subscribers: NewBag[*sink[*AccountRecord]]()}
}

func (v *AccountRecordView) replay(tx *valuebox.Transaction, log *operationLog) (bool, error) {
	touched := false
	for _, op := range log.records {
		if op.ID == v.id {
			touched = true
			break
		}
	}
	if !touched {
		return false, nil
	}
	record, _, err := v.table.GetRecord(tx, v.id)
	if err != nil {
		return false, err
	}
	v.current = record
	return true, nil
}

func (v *AccountRecordView) notify() {
	metrics.ViewEmissionsTotal.WithLabelValues("account_record").Inc()
	for _, s := range v.subscribers.Snapshot() {
		s.send(v.current)
	}
}

func (v *AccountRecordView) viewName() string { return "account_record" }

// Subscribe registers a new subscriber and returns its delivery
// channel plus a Stream to cancel it.
func (v *AccountRecordView) Subscribe() (<-chan *AccountRecord, Stream) {
	s := newSink[*AccountRecord]()
	handle := v.subscribers.Add(s)
	return s.values, Stream{cancel: func() {
		s.close()
		v.subscribers.Remove(handle)
	}}
}

// AccountSharedDataView watches a fixed set of shared-data keys and
// re-reads every key in the set whenever any of them changes,
// delivering the full key->value map on each replay.
type AccountSharedDataView struct {
	keys        [][]byte
	table       *SharedDataTable
	current     map[string][]byte
	subscribers *Bag[*sink[map[string][]byte]]
}

func newAccountSharedDataView(table *SharedDataTable, keys [][]byte) *AccountSharedDataView {
	return &AccountSharedDataView{keys: keys, table: table, subscribers: NewBag[*sink[map[string][]byte]]()}
}

func (v *AccountSharedDataView) replay(tx *valuebox.Transaction, log *operationLog) (bool, error) {
	touched := false
	for _, key := range v.keys {
		if _, ok := log.sharedDataKey[string(key)]; ok {
			touched = true
			break
		}
	}
	if !touched {
		return false, nil
	}
	values := make(map[string][]byte, len(v.keys))
	for _, key := range v.keys {
		value, ok, err := v.table.Get(tx, key)
		if err != nil {
			return false, err
		}
		if ok {
			values[string(key)] = value
		}
	}
	v.current = values
	return true, nil
}

func (v *AccountSharedDataView) notify() {
	metrics.ViewEmissionsTotal.WithLabelValues("shared_data").Inc()
	for _, s := range v.subscribers.Snapshot() {
		s.send(v.current)
	}
}

func (v *AccountSharedDataView) viewName() string { return "shared_data" }

// Subscribe registers a new subscriber.
func (v *AccountSharedDataView) Subscribe() (<-chan map[string][]byte, Stream) {
	s := newSink[map[string][]byte]()
	handle := v.subscribers.Add(s)
	return s.values, Stream{cancel: func() {
		s.close()
		v.subscribers.Remove(handle)
	}}
}

// ItemCollectionInfosEntry is one row of a ItemCollectionInfosSnapshot:
// a collection's info alongside its lowest-keyed item, the pair a
// namespace summary list renders without opening the collection itself.
// HasFirstItem is false for an empty collection, in which case
// FirstItem is nil.
type ItemCollectionInfosEntry struct {
	CollectionID ItemCollectionID
	Info         ItemCollectionInfo
	FirstItem    json.RawMessage
	HasFirstItem bool
}

// ItemCollectionInfosSnapshot is what ItemCollectionInfosView delivers
// on each replay: the current (collectionId, info, firstItem) rows
// across every namespace the view was constructed with, each
// namespace's entries ordered the way the table's InfosForNamespace
// orders them.
type ItemCollectionInfosSnapshot struct {
	Entries map[int32][]ItemCollectionInfosEntry
}

// ItemCollectionInfosView projects the ItemCollectionInfo rows, plus
// each collection's first item, across a fixed set of namespaces. It
// is driven by two tiers of operation: a ReplaceInfos touching one of
// its namespaces forces a full reload of the snapshot across every one
// of the view's namespaces, since collection membership may have
// changed; a ReplaceItems against a collection already present in the
// snapshot only patches that entry's FirstItem in place, leaving the
// rest of the snapshot untouched. A reload always wins over a patch in
// the same replay, since it already re-reads first items from scratch.
type ItemCollectionInfosView struct {
	namespaces  []int32
	table       *ItemCollectionTable
	current     ItemCollectionInfosSnapshot
	subscribers *Bag[*sink[ItemCollectionInfosSnapshot]]
}

func newItemCollectionInfosView(table *ItemCollectionTable, namespaces []int32) *ItemCollectionInfosView {
	return &ItemCollectionInfosView{
		namespaces:  namespaces,
		table:       table,
		current:     ItemCollectionInfosSnapshot{Entries: make(map[int32][]ItemCollectionInfosEntry)},
		subscribers: NewBag[*sink[ItemCollectionInfosSnapshot]](),
	}
}

func (v *ItemCollectionInfosView) inScope(namespace int32) bool {
	for _, n := range v.namespaces {
		if n == namespace {
			return true
		}
	}
	return false
}

func (v *ItemCollectionInfosView) collectionInScope(collectionID ItemCollectionID) bool {
	return v.inScope(collectionID.Namespace)
}

func (v *ItemCollectionInfosView) replay(tx *valuebox.Transaction, log *operationLog) (bool, error) {
	if len(log.infoOps) == 0 && len(log.itemOps) == 0 {
		return false, nil
	}

	reloadNamespaces := false
	for _, op := range log.infoOps {
		if v.inScope(op.Namespace) {
			reloadNamespaces = true
			break
		}
	}

	patchCollections := make(map[ItemCollectionID]bool)
	for _, op := range log.itemOps {
		if v.collectionInScope(op.CollectionID) {
			patchCollections[op.CollectionID] = true
		}
	}

	if !reloadNamespaces && len(patchCollections) == 0 {
		return false, nil
	}

	start := time.Now()
	defer func() {
		metrics.ViewReplayDuration.WithLabelValues("item_collection_infos").Observe(time.Since(start).Seconds())
	}()

	if reloadNamespaces {
		for _, namespace := range v.namespaces {
			infos, err := v.table.InfosForNamespace(tx, namespace)
			if err != nil {
				return false, err
			}
			entries := make([]ItemCollectionInfosEntry, len(infos))
			for i, info := range infos {
				firstItem, ok, err := v.table.FirstItem(tx, info.ID)
				if err != nil {
					return false, err
				}
				entries[i] = ItemCollectionInfosEntry{CollectionID: info.ID, Info: info, FirstItem: firstItem, HasFirstItem: ok}
			}
			v.current.Entries[namespace] = entries
		}
		return true, nil
	}

	patched := false
	for namespace, entries := range v.current.Entries {
		for i, entry := range entries {
			if !patchCollections[entry.CollectionID] {
				continue
			}
			firstItem, ok, err := v.table.FirstItem(tx, entry.CollectionID)
			if err != nil {
				return false, err
			}
			entries[i].FirstItem = firstItem
			entries[i].HasFirstItem = ok
			patched = true
		}
		v.current.Entries[namespace] = entries
	}
	return patched, nil
}

func (v *ItemCollectionInfosView) notify() {
	metrics.ViewEmissionsTotal.WithLabelValues("item_collection_infos").Inc()
	for _, s := range v.subscribers.Snapshot() {
		s.send(v.current)
	}
}

func (v *ItemCollectionInfosView) viewName() string { return "item_collection_infos" }

// Subscribe registers a new subscriber.
func (v *ItemCollectionInfosView) Subscribe() (<-chan ItemCollectionInfosSnapshot, Stream) {
	s := newSink[ItemCollectionInfosSnapshot]()
	handle := v.subscribers.Add(s)
	return s.values, Stream{cancel: func() {
		s.close()
		v.subscribers.Remove(handle)
	}}
}
