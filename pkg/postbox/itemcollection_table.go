package postbox

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/nodye/postbox/pkg/log"
	"github.com/nodye/postbox/pkg/valuebox"
)

// ItemCollectionTableName is the underlying bucket backing ItemCollectionTable.
const ItemCollectionTableName valuebox.Table = "itemcollections"

// ItemCollectionInfo is the per-collection summary row ItemCollectionInfosView
// projects over.
type ItemCollectionInfo struct {
	ID     ItemCollectionID
	Fields json.RawMessage
}

type infoCacheEntry struct {
	value  *ItemCollectionInfo
	loaded bool
	dirty  bool
}

type itemsCacheEntry struct {
	value  map[int64]json.RawMessage
	loaded bool
	dirty  bool
}

// ItemCollectionTable stores two related collections: a namespace's
// ItemCollectionInfo rows, and each collection's member items.
// ReplaceInfos and ReplaceItems are whole-namespace and
// whole-collection replacements respectively, matching the view's
// replay granularity.
type ItemCollectionTable struct {
	logger zerolog.Logger

	infos map[ItemCollectionID]*infoCacheEntry
	items map[ItemCollectionID]*itemsCacheEntry

	infoOperations []ItemCollectionInfoOperation
	itemOperations []ItemCollectionItemOperation

	loadedNamespaces map[int32]bool
}

// NewItemCollectionTable constructs an empty item collection table.
func NewItemCollectionTable() *ItemCollectionTable {
	return &ItemCollectionTable{
		logger:           log.WithTable(string(ItemCollectionTableName)),
		infos:            make(map[ItemCollectionID]*infoCacheEntry),
		items:            make(map[ItemCollectionID]*itemsCacheEntry),
		loadedNamespaces: make(map[int32]bool),
	}
}

// InfosForNamespace returns every ItemCollectionInfo row for namespace,
// loading the namespace's full key range on first access.
func (t *ItemCollectionTable) InfosForNamespace(tx *valuebox.Transaction, namespace int32) ([]ItemCollectionInfo, error) {
	if !t.loadedNamespaces[namespace] {
		prefix := itemCollectionInfoNamespacePrefix(namespace)
		err := tx.RangePrefix(ItemCollectionTableName, prefix, func(key, value []byte) (bool, error) {
			if len(key) != len(prefix)+8 {
				// Item rows share the namespace prefix; only info keys have this length.
				return true, nil
			}
			id := parseItemCollectionInfoKey(key)
			var fields json.RawMessage
			if err := json.Unmarshal(value, &fields); err != nil {
				return false, fmt.Errorf("postbox: decode item collection info %s: %w", id, err)
			}
			t.infos[id] = &infoCacheEntry{value: &ItemCollectionInfo{ID: id, Fields: fields}, loaded: true}
			return true, nil
		})
		if err != nil {
			return nil, err
		}
		t.loadedNamespaces[namespace] = true
	}

	var out []ItemCollectionInfo
	for id, entry := range t.infos {
		if id.Namespace != namespace || !entry.loaded || entry.value == nil {
			continue
		}
		out = append(out, *entry.value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.ID < out[j].ID.ID })
	return out, nil
}

// FirstItem returns the lowest-keyed item in collectionID, the
// collection's "first item" a namespace summary surfaces without
// loading the whole collection. ok is false if the collection is empty.
func (t *ItemCollectionTable) FirstItem(tx *valuebox.Transaction, collectionID ItemCollectionID) (json.RawMessage, bool, error) {
	if entry, ok := t.items[collectionID]; ok && entry.loaded {
		var firstID int64
		var first json.RawMessage
		found := false
		for id, fields := range entry.value {
			if !found || id < firstID {
				firstID, first, found = id, fields, true
			}
		}
		return first, found, nil
	}

	prefix := itemCollectionItemsPrefix(collectionID)
	var value []byte
	found := false
	err := tx.RangePrefix(ItemCollectionTableName, prefix, func(key, v []byte) (bool, error) {
		if len(key) != len(prefix)+8 {
			// The collection's own info row carries this prefix too.
			return true, nil
		}
		value, found = v, true
		return false, nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	var fields json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil {
		return nil, false, fmt.Errorf("postbox: decode first item in %s: %w", collectionID, err)
	}
	return fields, true, nil
}

// ReplaceInfos replaces every ItemCollectionInfo row in namespace with
// infos, removing any existing row not present in the new set. It is
// logged once per call regardless of how many rows actually changed,
// treating ReplaceInfos as a single namespace-scoped event.
func (t *ItemCollectionTable) ReplaceInfos(tx *valuebox.Transaction, namespace int32, infos []ItemCollectionInfo) error {
	if _, err := t.InfosForNamespace(tx, namespace); err != nil {
		return err
	}

	keep := make(map[ItemCollectionID]bool, len(infos))
	for _, info := range infos {
		keep[info.ID] = true
	}
	for id, entry := range t.infos {
		if id.Namespace == namespace && entry.loaded && entry.value != nil && !keep[id] {
			t.infos[id] = &infoCacheEntry{loaded: true, dirty: true}
		}
	}
	for _, info := range infos {
		v := info
		t.infos[info.ID] = &infoCacheEntry{value: &v, loaded: true, dirty: true}
	}

	t.infoOperations = append(t.infoOperations, ItemCollectionInfoOperation{Namespace: namespace})
	return nil
}

// ItemsForCollection returns every item in collectionID, loading the
// collection's key range on first access.
func (t *ItemCollectionTable) ItemsForCollection(tx *valuebox.Transaction, collectionID ItemCollectionID) (map[int64]json.RawMessage, error) {
	entry, ok := t.items[collectionID]
	if ok && entry.loaded {
		return entry.value, nil
	}

	loaded := make(map[int64]json.RawMessage)
	prefix := itemCollectionItemsPrefix(collectionID)
	err := tx.RangePrefix(ItemCollectionTableName, prefix, func(key, value []byte) (bool, error) {
		if len(key) != len(prefix)+8 {
			// The collection's own info row carries this prefix too.
			return true, nil
		}
		itemID := parseItemCollectionItemKey(key)
		var fields json.RawMessage
		if err := json.Unmarshal(value, &fields); err != nil {
			return false, fmt.Errorf("postbox: decode item %d in %s: %w", itemID, collectionID, err)
		}
		loaded[itemID] = fields
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	t.items[collectionID] = &itemsCacheEntry{value: loaded, loaded: true}
	return loaded, nil
}

// ReplaceItems replaces every item in collectionID with items.
func (t *ItemCollectionTable) ReplaceItems(tx *valuebox.Transaction, collectionID ItemCollectionID, items map[int64]json.RawMessage) error {
	if _, err := t.ItemsForCollection(tx, collectionID); err != nil {
		return err
	}
	copied := make(map[int64]json.RawMessage, len(items))
	for id, fields := range items {
		copied[id] = fields
	}
	t.items[collectionID] = &itemsCacheEntry{value: copied, loaded: true, dirty: true}
	t.itemOperations = append(t.itemOperations, ItemCollectionItemOperation{CollectionID: collectionID})
	return nil
}

// InfoOperations returns the info-replacement operations logged since
// the last reset.
func (t *ItemCollectionTable) InfoOperations() []ItemCollectionInfoOperation {
	return t.infoOperations
}

// ItemOperations returns the item-replacement operations logged since
// the last reset.
func (t *ItemCollectionTable) ItemOperations() []ItemCollectionItemOperation {
	return t.itemOperations
}

func (t *ItemCollectionTable) resetOperations() {
	t.infoOperations = nil
	t.itemOperations = nil
}

// BeforeCommit flushes every dirty info row and item collection.
func (t *ItemCollectionTable) BeforeCommit(tx *valuebox.Transaction) error {
	for id, entry := range t.infos {
		if !entry.dirty {
			continue
		}
		if entry.value == nil {
			if err := tx.Remove(ItemCollectionTableName, itemCollectionInfoKey(id.Namespace, id.ID)); err != nil {
				return err
			}
		} else {
			encoded, err := json.Marshal(entry.value.Fields)
			if err != nil {
				return fmt.Errorf("postbox: encode item collection info %s: %w", id, err)
			}
			if err := tx.Set(ItemCollectionTableName, itemCollectionInfoKey(id.Namespace, id.ID), encoded); err != nil {
				return err
			}
		}
		entry.dirty = false
	}

	for collectionID, entry := range t.items {
		if !entry.dirty {
			continue
		}
		prefix := itemCollectionItemsPrefix(collectionID)
		var existingKeys [][]byte
		if err := tx.RangePrefix(ItemCollectionTableName, prefix, func(key, _ []byte) (bool, error) {
			if len(key) == len(prefix)+8 {
				existingKeys = append(existingKeys, append([]byte(nil), key...))
			}
			return true, nil
		}); err != nil {
			return err
		}
		for _, key := range existingKeys {
			if err := tx.Remove(ItemCollectionTableName, key); err != nil {
				return err
			}
		}
		for itemID, fields := range entry.value {
			encoded, err := json.Marshal(fields)
			if err != nil {
				return fmt.Errorf("postbox: encode item %d in %s: %w", itemID, collectionID, err)
			}
			if err := tx.Set(ItemCollectionTableName, itemCollectionItemKey(collectionID, itemID), encoded); err != nil {
				return err
			}
		}
		entry.dirty = false
	}

	t.logger.Debug().Msg("item collection table flushed")
	return nil
}

// ClearMemoryCache discards every read cache.
func (t *ItemCollectionTable) ClearMemoryCache() error {
	for _, entry := range t.infos {
		if entry.dirty {
			return ErrDirtyCache
		}
	}
	for _, entry := range t.items {
		if entry.dirty {
			return ErrDirtyCache
		}
	}
	t.infos = make(map[ItemCollectionID]*infoCacheEntry)
	t.items = make(map[ItemCollectionID]*itemsCacheEntry)
	t.loadedNamespaces = make(map[int32]bool)
	return nil
}

func parseItemCollectionInfoKey(key []byte) ItemCollectionID {
	namespace := int32(decodeUint32(key[:4]))
	id := int64(bytesToUint64(key[4:12]))
	return ItemCollectionID{Namespace: namespace, ID: id}
}

func parseItemCollectionItemKey(key []byte) int64 {
	return int64(bytesToUint64(key[12:20]))
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
