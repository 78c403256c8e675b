// Package pebbledb implements db.Database on top of cockroachdb/pebble.
// WriteTx is backed by an indexed batch, so reads within the transaction
// observe its own pending writes. Note that pebble batches do not detect
// write conflicts between concurrent transactions; callers that need
// read-modify-write atomicity must serialize externally (the storage layer
// holds a lock around such sequences).
package pebbledb

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/verivote/dreip-node/db"
	"github.com/verivote/dreip-node/log"
)

// PebbleDB implements db.Database.
type PebbleDB struct {
	db *pebble.DB
}

// pebbleLogger forwards pebble's internal logging to our logger.
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...any)  { log.Debugf(format, args...) }
func (pebbleLogger) Fatalf(format string, args ...any) { log.Fatalf(format, args...) }

// New opens a pebble database at opts.Path, creating it if needed.
func New(opts db.Options) (*PebbleDB, error) {
	pdb, err := pebble.Open(opts.Path, &pebble.Options{
		Logger: pebbleLogger{},
	})
	if err != nil {
		return nil, err
	}
	return &PebbleDB{db: pdb}, nil
}

var _ db.Database = (*PebbleDB)(nil)

// Get implements db.Reader.
func (d *PebbleDB) Get(key []byte) ([]byte, error) {
	val, closer, err := d.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(val))
	copy(out, val)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// Iterate implements db.Reader.
func (d *PebbleDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter, err := d.db.NewIter(iterOptions(prefix))
	if err != nil {
		return err
	}
	defer func() {
		if err := iter.Close(); err != nil {
			log.Warnw("error closing pebble iterator", "error", err)
		}
	}()
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return nil
}

// WriteTx implements db.Database.
func (d *PebbleDB) WriteTx() db.WriteTx {
	return &WriteTx{batch: d.db.NewIndexedBatch()}
}

// Close implements db.Database.
func (d *PebbleDB) Close() error {
	return d.db.Close()
}

// Compact compacts the whole key space.
func (d *PebbleDB) Compact() error {
	// from pebble docs, a full-range compaction spans the first and last
	// existing keys.
	iter, err := d.db.NewIter(nil)
	if err != nil {
		return err
	}
	var first, last []byte
	if iter.First() {
		first = append(first, iter.Key()...)
	}
	if iter.Last() {
		last = append(last, iter.Key()...)
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if first == nil || last == nil {
		return nil
	}
	return d.db.Compact(first, last, true)
}

// iterOptions returns the pebble iterator bounds covering exactly the keys
// that start with prefix.
func iterOptions(prefix []byte) *pebble.IterOptions {
	if len(prefix) == 0 {
		return nil
	}
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	}
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if no such key exists (all 0xff).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

// WriteTx implements db.WriteTx over an indexed pebble batch.
type WriteTx struct {
	batch *pebble.Batch
	done  bool
}

var _ db.WriteTx = (*WriteTx)(nil)

// Get implements db.Reader, observing the batch's pending writes.
func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	val, closer, err := tx.batch.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(val))
	copy(out, val)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// Iterate implements db.Reader over the batch view.
func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter, err := tx.batch.NewIter(iterOptions(prefix))
	if err != nil {
		return err
	}
	defer func() {
		if err := iter.Close(); err != nil {
			log.Warnw("error closing pebble batch iterator", "error", err)
		}
	}()
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return nil
}

// Set implements db.WriteTx.
func (tx *WriteTx) Set(key, value []byte) error {
	return tx.batch.Set(key, value, nil)
}

// Delete implements db.WriteTx.
func (tx *WriteTx) Delete(key []byte) error {
	return tx.batch.Delete(key, nil)
}

// Apply implements db.WriteTx.
func (tx *WriteTx) Apply(other db.WriteTx) error {
	otherTx, ok := other.(*WriteTx)
	if !ok {
		return errors.New("apply: transaction is not a pebble WriteTx")
	}
	return tx.batch.Apply(otherTx.batch, nil)
}

// Commit implements db.WriteTx.
func (tx *WriteTx) Commit() error {
	if tx.done {
		return errors.New("commit on a finished transaction")
	}
	tx.done = true
	return tx.batch.Commit(pebble.Sync)
}

// Discard implements db.WriteTx.
func (tx *WriteTx) Discard() {
	if tx.done {
		return
	}
	tx.done = true
	if err := tx.batch.Close(); err != nil {
		log.Warnw("error closing pebble batch", "error", err)
	}
}
