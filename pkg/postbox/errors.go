package postbox

import "errors"

// Logic precondition violations: programmer error, fatal to
// the calling transaction but never retried internally.
var (
	// ErrDirtyCache is returned by ClearMemoryCache when a table has
	// unflushed dirty state; callers must commit or abort first.
	ErrDirtyCache = errors.New("postbox: clearMemoryCache called with dirty state present")

	// ErrDuplicateRecord names the violation of creating a record at an
	// id that already exists. CreateRecord mints a fresh random id for
	// every record, and no function in this package returns it.
	ErrDuplicateRecord = errors.New("postbox: record already exists")

	// ErrRecordNotFound is returned by SetRecord when the target id has
	// no existing row; callers must use CreateRecord for a new one.
	ErrRecordNotFound = errors.New("postbox: record not found")

	// ErrClosed is returned by any operation submitted after Close.
	ErrClosed = errors.New("postbox: closed")
)
