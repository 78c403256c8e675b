/*
Package storage provides the persistent storage layer of the DRE-ip node.

# Storage Organization

The storage uses a key-value database with prefixed namespaces:

## Elections
  - e/  : electionID → Election (metadata, questions, public key, closed flag)
  - ek/ : electionID → ElectionKeys (tally private scalar + receipt signing key)
  - bc/ : electionID → ballot id counter (monotonic uint64)

## Voters
  - v/  : electionID + voterID → Voter (roster entry and voting progress)
  - vu/ : electionID + sha256(username)[:12] → voterID (username lookup index)

## Ballots
  - b/  : electionID + ballotID → Ballot (public record: commitments, proofs,
    status, receipts; revealed secrets once audited)
  - bs/ : electionID + ballotID → BallotSecrets (per-candidate ρ and vote
    bits; exists only while the ballot is in the cast state, destroyed in
    the same transaction as the terminal transition)
  - bp/ : electionID + voterID + questionID → ballotID (pending-cast index,
    enforces at most one undecided ballot per voter and question)

## Tally
  - qt/ : electionID + questionID → QuestionTally (per-choice vote and
    randomness totals plus public commitment aggregates, merged on every
    confirmation)

All read-modify-write sequences (ballot transitions, counter allocation,
tally merges) run under the global lock and commit in a single WriteTx, so a
crash can never leave a ballot half-transitioned or a confirmed ballot's
secrets behind.
*/
package storage

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/verivote/dreip-node/db"
	"github.com/verivote/dreip-node/db/prefixeddb"
	"github.com/verivote/dreip-node/log"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrKeyAlreadyExists is returned when an insert collides with an
	// existing record.
	ErrKeyAlreadyExists = errors.New("key already exists")

	// Prefixes
	electionPrefix      = []byte("e/")
	electionKeysPrefix  = []byte("ek/")
	ballotCounterPrefix = []byte("bc/")
	voterPrefix         = []byte("v/")
	voterUsernamePrefix = []byte("vu/")
	ballotPrefix        = []byte("b/")
	ballotSecretsPrefix = []byte("bs/")
	ballotPendingPrefix = []byte("bp/")
	questionTallyPrefix = []byte("qt/")

	usernameKeySize = 12
)

// Storage manages all persistent election state. The global lock serializes
// every read-modify-write sequence; plain reads go through without it.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
	cache      *lru.Cache[string, any]
}

// New creates a new Storage instance on top of the given database.
func New(database db.Database) *Storage {
	cache, err := lru.New[string, any](1000)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	return &Storage{
		db:    database,
		cache: cache,
	}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err)
	}
}

// setArtifact stores an encoded artifact under prefix+key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// getArtifact retrieves and decodes the artifact stored under prefix+key.
// Returns ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return DecodeArtifact(data, out)
}

// deleteArtifact removes the artifact stored under prefix+key.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Delete(key); err != nil {
		return err
	}
	return wTx.Commit()
}

// listArtifacts retrieves all keys stored under a prefix.
func (s *Storage) listArtifacts(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, _ []byte) bool {
		kcopy := make([]byte, len(k))
		copy(kcopy, k)
		keys = append(keys, kcopy)
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}
