package postbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawField(v string) map[string]json.RawMessage {
	return map[string]json.RawMessage{"name": json.RawMessage(`"` + v + `"`)}
}

func TestRecordTableCreateGetSetRemove(t *testing.T) {
	kv := openTestStore(t)
	table := NewRecordTable()
	tx := beginTestTx(t, kv)

	id, err := table.CreateRecord(tx, rawField("alice"))
	require.NoError(t, err)

	record, ok, err := table.GetRecord(tx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"alice"`, string(record.Fields["name"]))

	require.NoError(t, table.SetRecord(tx, id, rawField("alice2")))
	record, ok, err = table.GetRecord(tx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"alice2"`, string(record.Fields["name"]))

	require.NoError(t, table.RemoveRecord(tx, id))
	_, ok, err = table.GetRecord(tx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordTableSetOnMissingRecordFails(t *testing.T) {
	kv := openTestStore(t)
	table := NewRecordTable()
	tx := beginTestTx(t, kv)

	err := table.SetRecord(tx, AccountRecordID(12345), rawField("ghost"))
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestRecordTableRemoveMissingIsNoOp(t *testing.T) {
	kv := openTestStore(t)
	table := NewRecordTable()
	tx := beginTestTx(t, kv)

	err := table.RemoveRecord(tx, AccountRecordID(999))
	assert.NoError(t, err)
	assert.Empty(t, table.Operations())
}

func TestRecordTableOperationsLoggedAndReset(t *testing.T) {
	kv := openTestStore(t)
	table := NewRecordTable()
	tx := beginTestTx(t, kv)

	id, err := table.CreateRecord(tx, rawField("bob"))
	require.NoError(t, err)
	require.NoError(t, table.SetRecord(tx, id, rawField("bob2")))
	require.NoError(t, table.RemoveRecord(tx, id))

	ops := table.Operations()
	require.Len(t, ops, 3)
	assert.Nil(t, ops[0].Before)
	assert.NotNil(t, ops[0].After)
	assert.NotNil(t, ops[1].Before)
	assert.NotNil(t, ops[1].After)
	assert.NotNil(t, ops[2].Before)
	assert.Nil(t, ops[2].After)

	table.resetOperations()
	assert.Empty(t, table.Operations())
}

func TestRecordTablePersistsAcrossClearMemoryCache(t *testing.T) {
	kv := openTestStore(t)
	table := NewRecordTable()

	tx, err := kv.Begin()
	require.NoError(t, err)
	id, err := table.CreateRecord(tx, rawField("carol"))
	require.NoError(t, err)
	require.NoError(t, table.BeforeCommit(tx))
	require.NoError(t, tx.Commit())
	require.NoError(t, table.ClearMemoryCache())

	tx2, err := kv.Begin()
	require.NoError(t, err)
	defer tx2.Rollback()
	record, ok, err := table.GetRecord(tx2, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"carol"`, string(record.Fields["name"]))
}

func TestRecordTableClearMemoryCacheRejectsDirtyState(t *testing.T) {
	kv := openTestStore(t)
	table := NewRecordTable()
	tx := beginTestTx(t, kv)

	_, err := table.CreateRecord(tx, rawField("dana"))
	require.NoError(t, err)

	err = table.ClearMemoryCache()
	assert.ErrorIs(t, err, ErrDirtyCache)
}
