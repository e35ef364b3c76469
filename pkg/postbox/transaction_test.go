package postbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionCommitsAndReturnsValue(t *testing.T) {
	pb := openTestPostbox(t)

	res := <-pb.CreateRecord(rawField("first"))
	require.NoError(t, res.Err)
	assert.NotZero(t, res.Value)

	got := <-pb.GetRecord(res.Value)
	require.NoError(t, got.Err)
	require.NotNil(t, got.Value)
	assert.Equal(t, `"first"`, string(got.Value.Fields["name"]))
}

func TestTransactionLogicErrorDoesNotPersist(t *testing.T) {
	pb := openTestPostbox(t)

	res := <-pb.SetRecord(AccountRecordID(999999), rawField("ghost"))
	assert.ErrorIs(t, res.Err, ErrRecordNotFound)

	got := <-pb.GetRecord(AccountRecordID(999999))
	require.NoError(t, got.Err)
	assert.Nil(t, got.Value)
}

func TestTransactionSequentialCallsObserveEachOther(t *testing.T) {
	pb := openTestPostbox(t)

	created := <-pb.CreateRecord(rawField("a"))
	require.NoError(t, created.Err)

	updated := <-pb.SetRecord(created.Value, rawField("b"))
	require.NoError(t, updated.Err)

	got := <-pb.GetRecord(created.Value)
	require.NoError(t, got.Err)
	assert.Equal(t, `"b"`, string(got.Value.Fields["name"]))
}

func TestTransactionAfterCloseReturnsErrClosed(t *testing.T) {
	pb := openTestPostbox(t)
	require.NoError(t, pb.Close())

	res := <-pb.CreateRecord(rawField("too-late"))
	assert.ErrorIs(t, res.Err, ErrClosed)
}

func TestTransactionSharedDataRoundTrip(t *testing.T) {
	pb := openTestPostbox(t)

	res := <-pb.SetSharedData([]byte("k"), []byte("v"))
	require.NoError(t, res.Err)

	got := <-pb.GetSharedData([]byte("k"))
	require.NoError(t, got.Err)
	assert.Equal(t, []byte("v"), got.Value)

	removed := <-pb.RemoveSharedData([]byte("k"))
	require.NoError(t, removed.Err)

	got = <-pb.GetSharedData([]byte("k"))
	require.NoError(t, got.Err)
	assert.Nil(t, got.Value)
}

func TestTransactionItemCollectionRoundTrip(t *testing.T) {
	pb := openTestPostbox(t)

	infos := []ItemCollectionInfo{{ID: ItemCollectionID{Namespace: 1, ID: 1}}}
	res := <-pb.ReplaceItemCollectionInfos(1, infos)
	require.NoError(t, res.Err)

	items := <-pb.ReplaceItemCollectionItems(ItemCollectionID{Namespace: 1, ID: 1}, nil)
	require.NoError(t, items.Err)
}
