// Package valuebox implements the external ValueBox collaborator: an
// ordered, byte-level key/value store with begin/commit transaction
// semantics, backed by bbolt. Everything above this package works in
// terms of opaque byte keys and values; valuebox never decodes them.
package valuebox

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/nodye/postbox/pkg/log"
)

// Table names a bucket inside the underlying file. Tables are created
// up front at Open and never created lazily inside a transaction.
type Table string

// KV is the embedded ordered key/value store. It owns exactly one
// underlying file and is meant to be driven by a single writer.
type KV struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// Open opens (creating if absent) the store file under basePath and
// ensures a bucket exists for every table the caller will use.
func Open(basePath string, tables []Table) (*KV, error) {
	path := filepath.Join(basePath, "postbox.db")

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("valuebox: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, table := range tables {
			if _, err := tx.CreateBucketIfNotExists([]byte(table)); err != nil {
				return fmt.Errorf("valuebox: create table %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &KV{db: db, logger: log.WithComponent("valuebox")}, nil
}

// Close releases the underlying file.
func (kv *KV) Close() error {
	return kv.db.Close()
}

// Begin starts a read-write transaction. The store has exactly one
// logical writer (the postbox transaction driver), so every
// transaction is opened read-write; there is no separate read-only path.
func (kv *KV) Begin() (*Transaction, error) {
	tx, err := kv.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("valuebox: begin: %w", err)
	}
	return &Transaction{tx: tx}, nil
}

// Transaction is a single begin/commit unit over every table in the store.
type Transaction struct {
	tx *bolt.Tx
}

// Commit persists everything written during the transaction.
func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("valuebox: commit: %w", err)
	}
	return nil
}

// Rollback discards everything written during the transaction. The
// postbox driver calls it on its abort paths: a modifier that returns
// an error, and a storage failure before commit.
func (t *Transaction) Rollback() error {
	return t.tx.Rollback()
}

func (t *Transaction) bucket(table Table) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(table))
	if b == nil {
		return nil, fmt.Errorf("valuebox: unknown table %q", table)
	}
	return b, nil
}

// Get returns the value stored at key, or ok=false if absent.
func (t *Transaction) Get(table Table, key []byte) (value []byte, ok bool, err error) {
	b, err := t.bucket(table)
	if err != nil {
		return nil, false, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, false, nil
	}
	// bbolt reuses the backing page; callers may hold this beyond the
	// transaction's lifetime (decoded into a cache), so copy it out.
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// Exists reports whether key is present, without paying for a copy.
func (t *Transaction) Exists(table Table, key []byte) (bool, error) {
	b, err := t.bucket(table)
	if err != nil {
		return false, err
	}
	return b.Get(key) != nil, nil
}

// Set writes key/value, overwriting any existing value.
func (t *Transaction) Set(table Table, key, value []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	if err := b.Put(key, value); err != nil {
		return fmt.Errorf("valuebox: set %s: %w", table, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (t *Transaction) Remove(table Table, key []byte) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	if err := b.Delete(key); err != nil {
		return fmt.Errorf("valuebox: remove %s: %w", table, err)
	}
	return nil
}

// RangeFunc is called once per key in ascending lexicographic order.
// Returning false stops iteration early without an error.
type RangeFunc func(key, value []byte) (bool, error)

// Range iterates every key k with start <= k < end. A nil end means
// "no upper bound" (iterate through the end of the table).
func (t *Transaction) Range(table Table, start, end []byte, fn RangeFunc) error {
	b, err := t.bucket(table)
	if err != nil {
		return err
	}
	c := b.Cursor()
	for k, v := c.Seek(start); k != nil; k, v = c.Next() {
		if end != nil && bytes.Compare(k, end) >= 0 {
			break
		}
		cont, err := fn(append([]byte(nil), k...), append([]byte(nil), v...))
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return nil
}

// RangePrefix iterates every key carrying the given prefix, in order.
func (t *Transaction) RangePrefix(table Table, prefix []byte, fn RangeFunc) error {
	return t.Range(table, prefix, prefixUpperBound(prefix), fn)
}

// First returns the lowest-keyed entry with the given prefix, if any.
func (t *Transaction) First(table Table, prefix []byte) (key, value []byte, ok bool, err error) {
	err = t.RangePrefix(table, prefix, func(k, v []byte) (bool, error) {
		key, value, ok = k, v, true
		return false, nil
	})
	return key, value, ok, err
}

// prefixUpperBound returns the smallest key that is strictly greater
// than every key carrying prefix, or nil if prefix is all 0xFF bytes
// (meaning "no upper bound" — scan to the end of the table).
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
