// Package metadb selects a db.Database backend by name.
package metadb

import (
	"fmt"

	"github.com/verivote/dreip-node/db"
	"github.com/verivote/dreip-node/db/pebbledb"
)

// New returns a db.Database of the given type stored under dir.
func New(typ, dir string) (db.Database, error) {
	switch typ {
	case db.TypePebble:
		database, err := pebbledb.New(db.Options{Path: dir})
		if err != nil {
			return nil, err
		}
		return database, nil
	default:
		return nil, fmt.Errorf("unknown database type: %q", typ)
	}
}
