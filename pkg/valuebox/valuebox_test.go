package valuebox

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestKV(t *testing.T) *KV {
	t.Helper()
	dir, err := os.MkdirTemp("", "valuebox-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	kv, err := Open(dir, []Table{"widgets"})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestGetSetExistsRemove(t *testing.T) {
	kv := openTestKV(t)

	tx, err := kv.Begin()
	require.NoError(t, err)

	_, ok, err := tx.Get("widgets", []byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tx.Set("widgets", []byte("a"), []byte("1")))

	v, ok, err := tx.Get("widgets", []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	exists, err := tx.Exists("widgets", []byte("a"))
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, tx.Remove("widgets", []byte("a")))
	exists, err = tx.Exists("widgets", []byte("a"))
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, tx.Commit())
}

func TestCommitPersists(t *testing.T) {
	dir, err := os.MkdirTemp("", "valuebox-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	kv, err := Open(dir, []Table{"widgets"})
	require.NoError(t, err)

	tx, err := kv.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Set("widgets", []byte("k"), []byte("v")))
	require.NoError(t, tx.Commit())
	require.NoError(t, kv.Close())

	kv2, err := Open(dir, []Table{"widgets"})
	require.NoError(t, err)
	t.Cleanup(func() { kv2.Close() })

	tx2, err := kv2.Begin()
	require.NoError(t, err)
	v, ok, err := tx2.Get("widgets", []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
	require.NoError(t, tx2.Commit())
}

func TestRangeOrderedAndExclusiveEnd(t *testing.T) {
	kv := openTestKV(t)

	tx, err := kv.Begin()
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, tx.Set("widgets", []byte(k), []byte(k)))
	}

	var seen []string
	err = tx.Range("widgets", []byte("b"), []byte("d"), func(key, value []byte) (bool, error) {
		seen = append(seen, string(key))
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, seen)

	require.NoError(t, tx.Commit())
}

func TestRangePrefix(t *testing.T) {
	kv := openTestKV(t)

	tx, err := kv.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Set("widgets", []byte{1, 0, 0}, []byte("a")))
	require.NoError(t, tx.Set("widgets", []byte{1, 0, 1}, []byte("b")))
	require.NoError(t, tx.Set("widgets", []byte{2, 0, 0}, []byte("c")))

	var seen [][]byte
	err = tx.RangePrefix("widgets", []byte{1}, func(key, value []byte) (bool, error) {
		seen = append(seen, value)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, seen)

	require.NoError(t, tx.Commit())
}

func TestFirstReturnsLowestKeyedEntry(t *testing.T) {
	kv := openTestKV(t)

	tx, err := kv.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Set("widgets", []byte{5, 9}, []byte("second")))
	require.NoError(t, tx.Set("widgets", []byte{5, 1}, []byte("first")))

	_, v, ok, err := tx.First("widgets", []byte{5})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), v)

	require.NoError(t, tx.Commit())
}

func TestPrefixUpperBoundAllFF(t *testing.T) {
	assert.Nil(t, prefixUpperBound([]byte{0xFF, 0xFF}))
	assert.Equal(t, []byte{0x02}, prefixUpperBound([]byte{0x01}))
}
