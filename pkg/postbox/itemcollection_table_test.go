package postbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemCollectionTableReplaceInfosReplacesNamespace(t *testing.T) {
	kv := openTestStore(t)
	table := NewItemCollectionTable()
	tx := beginTestTx(t, kv)

	infos := []ItemCollectionInfo{
		{ID: ItemCollectionID{Namespace: 1, ID: 10}, Fields: json.RawMessage(`{"a":1}`)},
		{ID: ItemCollectionID{Namespace: 1, ID: 11}, Fields: json.RawMessage(`{"a":2}`)},
	}
	require.NoError(t, table.ReplaceInfos(tx, 1, infos))

	got, err := table.InfosForNamespace(tx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Replacing with a subset drops the info row that's no longer present.
	require.NoError(t, table.ReplaceInfos(tx, 1, infos[:1]))
	got, err = table.InfosForNamespace(tx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(10), got[0].ID.ID)
}

func TestItemCollectionTableReplaceInfosLoggedOncePerCall(t *testing.T) {
	kv := openTestStore(t)
	table := NewItemCollectionTable()
	tx := beginTestTx(t, kv)

	infos := []ItemCollectionInfo{{ID: ItemCollectionID{Namespace: 2, ID: 1}, Fields: json.RawMessage(`{}`)}}
	require.NoError(t, table.ReplaceInfos(tx, 2, infos))
	require.NoError(t, table.ReplaceInfos(tx, 2, infos))

	assert.Len(t, table.InfoOperations(), 2)
}

func TestItemCollectionTableReplaceItems(t *testing.T) {
	kv := openTestStore(t)
	table := NewItemCollectionTable()
	tx := beginTestTx(t, kv)

	collectionID := ItemCollectionID{Namespace: 3, ID: 5}
	items := map[int64]json.RawMessage{
		1: json.RawMessage(`{"x":1}`),
		2: json.RawMessage(`{"x":2}`),
	}
	require.NoError(t, table.ReplaceItems(tx, collectionID, items))

	got, err := table.ItemsForCollection(tx, collectionID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, table.ReplaceItems(tx, collectionID, map[int64]json.RawMessage{1: json.RawMessage(`{"x":9}`)}))
	got, err = table.ItemsForCollection(tx, collectionID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"x":9}`, string(got[1]))
}

func TestItemCollectionTablePersistsAcrossClearMemoryCache(t *testing.T) {
	kv := openTestStore(t)
	table := NewItemCollectionTable()

	collectionID := ItemCollectionID{Namespace: 4, ID: 1}
	tx, err := kv.Begin()
	require.NoError(t, err)
	require.NoError(t, table.ReplaceInfos(tx, 4, []ItemCollectionInfo{
		{ID: collectionID, Fields: json.RawMessage(`{}`)},
	}))
	require.NoError(t, table.ReplaceItems(tx, collectionID, map[int64]json.RawMessage{1: json.RawMessage(`{}`)}))
	require.NoError(t, table.BeforeCommit(tx))
	require.NoError(t, tx.Commit())
	require.NoError(t, table.ClearMemoryCache())

	tx2, err := kv.Begin()
	require.NoError(t, err)
	defer tx2.Rollback()

	infos, err := table.InfosForNamespace(tx2, 4)
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	items, err := table.ItemsForCollection(tx2, collectionID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestItemCollectionTableClearMemoryCacheRejectsDirtyState(t *testing.T) {
	kv := openTestStore(t)
	table := NewItemCollectionTable()
	tx := beginTestTx(t, kv)

	require.NoError(t, table.ReplaceInfos(tx, 1, []ItemCollectionInfo{
		{ID: ItemCollectionID{Namespace: 1, ID: 1}, Fields: json.RawMessage(`{}`)},
	}))

	err := table.ClearMemoryCache()
	assert.ErrorIs(t, err, ErrDirtyCache)
}
