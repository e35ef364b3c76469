package postbox

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodye/postbox/pkg/valuebox"
)

// openTestStore opens a fresh valuebox.KV with every table this
// package uses, cleaned up automatically at test end.
func openTestStore(t *testing.T) *valuebox.KV {
	t.Helper()
	dir, err := os.MkdirTemp("", "postbox-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	kv, err := valuebox.Open(dir, tableNames)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

// beginTestTx opens a transaction against a fresh store and rolls it
// back at test cleanup; table methods under test read their own
// writes within that single transaction.
func beginTestTx(t *testing.T, kv *valuebox.KV) *valuebox.Transaction {
	t.Helper()
	tx, err := kv.Begin()
	require.NoError(t, err)
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

// openTestPostbox opens a full Postbox engine rooted at a temp
// directory, closed automatically at test end.
func openTestPostbox(t *testing.T) *Postbox {
	t.Helper()
	dir, err := os.MkdirTemp("", "postbox-engine-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	pb, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { pb.Close() })
	return pb
}
