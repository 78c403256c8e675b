package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/verivote/dreip-node/db"
	"github.com/verivote/dreip-node/db/prefixeddb"
	"github.com/verivote/dreip-node/types"
)

// ElectionKeys is the authority's private material for one election: the
// tally private scalar sk (h = sk·g1) and the raw ECDSA key used to sign
// receipts and exports. Stored separately from the public election record
// and never included in exports.
type ElectionKeys struct {
	PrivateKey types.BigInt   `json:"privateKey"`
	SignerKey  types.HexBytes `json:"signerKey"`
}

// SetElection stores a new election. Returns ErrKeyAlreadyExists if an
// election with the same ID is already stored.
func (s *Storage) SetElection(election *types.Election) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	key := election.ID[:]
	var existing types.Election
	if err := s.getArtifact(electionPrefix, key, &existing); err == nil {
		return ErrKeyAlreadyExists
	}
	if err := s.setArtifact(electionPrefix, key, election); err != nil {
		return fmt.Errorf("store election: %w", err)
	}
	s.cache.Remove(cacheKey(electionPrefix, key))
	return nil
}

// Election retrieves an election by ID.
func (s *Storage) Election(id uuid.UUID) (*types.Election, error) {
	if cached, ok := s.cache.Get(cacheKey(electionPrefix, id[:])); ok {
		return cached.(*types.Election), nil
	}
	election := new(types.Election)
	if err := s.getArtifact(electionPrefix, id[:], election); err != nil {
		return nil, err
	}
	s.cache.Add(cacheKey(electionPrefix, id[:]), election)
	return election, nil
}

// ListElections returns the IDs of all stored elections.
func (s *Storage) ListElections() ([]uuid.UUID, error) {
	keys, err := s.listArtifacts(electionPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		id, err := uuid.FromBytes(k)
		if err != nil {
			return nil, fmt.Errorf("malformed election key %x: %w", k, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UpdateElection applies the callback to the stored election under the
// global lock and persists the result.
func (s *Storage) UpdateElection(id uuid.UUID, update func(*types.Election) error) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	election := new(types.Election)
	if err := s.getArtifact(electionPrefix, id[:], election); err != nil {
		return err
	}
	if err := update(election); err != nil {
		return err
	}
	if err := s.setArtifact(electionPrefix, id[:], election); err != nil {
		return fmt.Errorf("store election: %w", err)
	}
	s.cache.Remove(cacheKey(electionPrefix, id[:]))
	return nil
}

// SetElectionKeys stores the authority's private material for an election.
func (s *Storage) SetElectionKeys(id uuid.UUID, keys *ElectionKeys) error {
	return s.setArtifact(electionKeysPrefix, id[:], keys)
}

// ElectionKeys retrieves the authority's private material for an election.
func (s *Storage) ElectionKeys(id uuid.UUID) (*ElectionKeys, error) {
	keys := new(ElectionKeys)
	if err := s.getArtifact(electionKeysPrefix, id[:], keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// nextBallotID allocates the next ballot id of an election inside the given
// transaction. IDs start at 1 and are strictly monotonic; the counter is
// never reused even for audited or abandoned ballots.
func nextBallotID(wTx db.WriteTx, electionID uuid.UUID) (uint64, error) {
	counterTx := prefixeddb.NewPrefixedWriteTx(wTx, ballotCounterPrefix)
	var next uint64 = 1
	raw, err := counterTx.Get(electionID[:])
	switch {
	case err == nil:
		next = binary.BigEndian.Uint64(raw) + 1
	case errors.Is(err, db.ErrKeyNotFound):
	default:
		return 0, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := counterTx.Set(electionID[:], buf[:]); err != nil {
		return 0, err
	}
	return next, nil
}

func cacheKey(prefix, key []byte) string {
	return string(prefix) + string(key)
}
