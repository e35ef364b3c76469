package postbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedDataTableGetSetRemove(t *testing.T) {
	kv := openTestStore(t)
	table := NewSharedDataTable()
	tx := beginTestTx(t, kv)

	_, ok, err := table.Get(tx, []byte("k1"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, table.Set(tx, []byte("k1"), []byte("v1")))
	value, ok, err := table.Get(tx, []byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)

	require.NoError(t, table.Remove(tx, []byte("k1")))
	_, ok, err = table.Get(tx, []byte("k1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSharedDataTableEqualWriteIsDropped(t *testing.T) {
	kv := openTestStore(t)
	table := NewSharedDataTable()
	tx := beginTestTx(t, kv)

	require.NoError(t, table.Set(tx, []byte("k1"), []byte("v1")))
	assert.Len(t, table.UpdatedKeys(), 1)

	table.resetOperations()
	require.NoError(t, table.Set(tx, []byte("k1"), []byte("v1")))
	assert.Empty(t, table.UpdatedKeys(), "writing the same bytes again must not be logged as updated")
}

func TestSharedDataTableDifferentWriteIsLogged(t *testing.T) {
	kv := openTestStore(t)
	table := NewSharedDataTable()
	tx := beginTestTx(t, kv)

	require.NoError(t, table.Set(tx, []byte("k1"), []byte("v1")))
	table.resetOperations()
	require.NoError(t, table.Set(tx, []byte("k1"), []byte("v2")))
	assert.Len(t, table.UpdatedKeys(), 1)
}

func TestSharedDataTableRemoveMissingIsNotLogged(t *testing.T) {
	kv := openTestStore(t)
	table := NewSharedDataTable()
	tx := beginTestTx(t, kv)

	require.NoError(t, table.Remove(tx, []byte("nope")))
	assert.Empty(t, table.UpdatedKeys())
}

func TestSharedDataTablePersistsAcrossClearMemoryCache(t *testing.T) {
	kv := openTestStore(t)
	table := NewSharedDataTable()

	tx, err := kv.Begin()
	require.NoError(t, err)
	require.NoError(t, table.Set(tx, []byte("k1"), []byte("v1")))
	require.NoError(t, table.BeforeCommit(tx))
	require.NoError(t, tx.Commit())
	require.NoError(t, table.ClearMemoryCache())

	tx2, err := kv.Begin()
	require.NoError(t, err)
	defer tx2.Rollback()
	value, ok, err := table.Get(tx2, []byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
}
