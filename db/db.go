// Package db defines the key-value database interface used by the storage
// layer, plus the constructors for its backends. The interface is a thin
// transactional façade: a WriteTx is a batch of writes that reads its own
// pending state and commits atomically.
package db

import "errors"

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// TypePebble is the identifier of the pebble backend.
const TypePebble = "pebble"

// Options defines generic parameters for creating a database.
type Options struct {
	Path string
}

// Reader contains the read-only methods of the database.
type Reader interface {
	// Get retrieves the value for the given key. If the key does not
	// exist, returns the error ErrKeyNotFound.
	Get(key []byte) ([]byte, error)

	// Iterate calls callback with all key-value pairs in the database
	// whose key starts with prefix. The iteration stops when the callback
	// function returns false. The key and value byte slices are only valid
	// for the life of the callback.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// Database wraps all database operations. All methods are safe for
// concurrent use.
type Database interface {
	Reader

	// WriteTx creates a new write transaction.
	WriteTx() WriteTx

	// Close closes the database.
	Close() error

	// Compact triggers a compaction of the underlying storage, when the
	// backend supports it.
	Compact() error
}

// WriteTx is a transaction which can read and modify the database. Reads
// observe the transaction's own pending writes. A WriteTx must end with a
// call to Commit or Discard; Discard after Commit is a no-op.
type WriteTx interface {
	Reader

	// Set adds a key-value pair. If the key already exists, its value is
	// overwritten.
	Set(key []byte, value []byte) error

	// Delete removes the key. Deleting a non-existing key does not return
	// an error.
	Delete(key []byte) error

	// Apply copies the pending writes of the given transaction into this
	// one. Both transactions must come from the same Database.
	Apply(WriteTx) error

	// Commit atomically applies all pending writes.
	Commit() error

	// Discard drops all pending writes and frees the transaction. It can
	// be called even after Commit.
	Discard()
}
