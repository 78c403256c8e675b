// Package prefixeddb wraps a db.Database, a db.Reader or a db.WriteTx so
// that all keys are transparently namespaced under a fixed prefix.
package prefixeddb

import (
	"github.com/verivote/dreip-node/db"
)

// PrefixedDatabase wraps a db.Database prepending a prefix to all keys.
type PrefixedDatabase struct {
	db     db.Database
	prefix []byte
}

var _ db.Database = (*PrefixedDatabase)(nil)

// NewPrefixedDatabase returns a PrefixedDatabase over database with prefix.
func NewPrefixedDatabase(database db.Database, prefix []byte) *PrefixedDatabase {
	return &PrefixedDatabase{
		db:     database,
		prefix: prefix,
	}
}

// Get implements db.Reader.
func (d *PrefixedDatabase) Get(key []byte) ([]byte, error) {
	return d.db.Get(composeKey(d.prefix, key))
}

// Iterate implements db.Reader. The callback receives keys with the prefix
// stripped.
func (d *PrefixedDatabase) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return d.db.Iterate(composeKey(d.prefix, prefix), callback)
}

// WriteTx implements db.Database.
func (d *PrefixedDatabase) WriteTx() db.WriteTx {
	return NewPrefixedWriteTx(d.db.WriteTx(), d.prefix)
}

// Close implements db.Database. Closing a prefixed view closes the
// underlying database.
func (d *PrefixedDatabase) Close() error {
	return d.db.Close()
}

// Compact implements db.Database.
func (d *PrefixedDatabase) Compact() error {
	return d.db.Compact()
}

// PrefixedReader wraps a db.Reader prepending a prefix to all keys.
type PrefixedReader struct {
	reader db.Reader
	prefix []byte
}

var _ db.Reader = (*PrefixedReader)(nil)

// NewPrefixedReader returns a PrefixedReader over reader with prefix.
func NewPrefixedReader(reader db.Reader, prefix []byte) *PrefixedReader {
	return &PrefixedReader{
		reader: reader,
		prefix: prefix,
	}
}

// Get implements db.Reader.
func (r *PrefixedReader) Get(key []byte) ([]byte, error) {
	return r.reader.Get(composeKey(r.prefix, key))
}

// Iterate implements db.Reader.
func (r *PrefixedReader) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return r.reader.Iterate(composeKey(r.prefix, prefix), callback)
}

// PrefixedWriteTx wraps a db.WriteTx prepending a prefix to all keys.
type PrefixedWriteTx struct {
	tx     db.WriteTx
	prefix []byte
}

var _ db.WriteTx = (*PrefixedWriteTx)(nil)

// NewPrefixedWriteTx returns a PrefixedWriteTx over tx with prefix.
func NewPrefixedWriteTx(tx db.WriteTx, prefix []byte) *PrefixedWriteTx {
	return &PrefixedWriteTx{
		tx:     tx,
		prefix: prefix,
	}
}

// Get implements db.Reader.
func (t *PrefixedWriteTx) Get(key []byte) ([]byte, error) {
	return t.tx.Get(composeKey(t.prefix, key))
}

// Iterate implements db.Reader.
func (t *PrefixedWriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return t.tx.Iterate(composeKey(t.prefix, prefix), callback)
}

// Set implements db.WriteTx.
func (t *PrefixedWriteTx) Set(key, value []byte) error {
	return t.tx.Set(composeKey(t.prefix, key), value)
}

// Delete implements db.WriteTx.
func (t *PrefixedWriteTx) Delete(key []byte) error {
	return t.tx.Delete(composeKey(t.prefix, key))
}

// Apply implements db.WriteTx.
func (t *PrefixedWriteTx) Apply(other db.WriteTx) error {
	if prefixed, ok := other.(*PrefixedWriteTx); ok {
		return t.tx.Apply(prefixed.tx)
	}
	return t.tx.Apply(other)
}

// Commit implements db.WriteTx.
func (t *PrefixedWriteTx) Commit() error {
	return t.tx.Commit()
}

// Discard implements db.WriteTx.
func (t *PrefixedWriteTx) Discard() {
	t.tx.Discard()
}

// Unwrap returns the underlying transaction, so several prefixed views can
// share one atomic commit.
func (t *PrefixedWriteTx) Unwrap() db.WriteTx {
	return t.tx
}

func composeKey(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}
