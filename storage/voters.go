package storage

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"

	"github.com/verivote/dreip-node/db"
	"github.com/verivote/dreip-node/db/prefixeddb"
	"github.com/verivote/dreip-node/types"
)

// SetVoter stores a roster entry and its username lookup index. Returns
// ErrKeyAlreadyExists if the username is already taken in the election.
func (s *Storage) SetVoter(voter *types.Voter) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	unameKey := usernameKey(voter.ElectionID, voter.Username)
	var existing uuid.UUID
	if err := s.getArtifact(voterUsernamePrefix, unameKey, &existing); err == nil {
		return fmt.Errorf("%w: username %q", ErrKeyAlreadyExists, voter.Username)
	}

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := setInTx(wTx, voterPrefix, voterKey(voter.ElectionID, voter.ID), voter); err != nil {
		return err
	}
	if err := setInTx(wTx, voterUsernamePrefix, unameKey, voter.ID); err != nil {
		return err
	}
	return wTx.Commit()
}

// Voter retrieves a roster entry by ID.
func (s *Storage) Voter(electionID, voterID uuid.UUID) (*types.Voter, error) {
	voter := new(types.Voter)
	if err := s.getArtifact(voterPrefix, voterKey(electionID, voterID), voter); err != nil {
		return nil, err
	}
	return voter, nil
}

// VoterByUsername retrieves a roster entry through the username index.
func (s *Storage) VoterByUsername(electionID uuid.UUID, username string) (*types.Voter, error) {
	var voterID uuid.UUID
	if err := s.getArtifact(voterUsernamePrefix, usernameKey(electionID, username), &voterID); err != nil {
		return nil, err
	}
	return s.Voter(electionID, voterID)
}

// ListVoters returns all roster entries of an election.
func (s *Storage) ListVoters(electionID uuid.UUID) ([]*types.Voter, error) {
	var voters []*types.Voter
	var iterErr error
	err := prefixeddb.NewPrefixedReader(s.db, voterPrefix).Iterate(electionID[:], func(_, value []byte) bool {
		voter := new(types.Voter)
		if err := DecodeArtifact(value, voter); err != nil {
			iterErr = fmt.Errorf("decode voter: %w", err)
			return false
		}
		voters = append(voters, voter)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return voters, nil
}

// UpdateVoter applies the callback to the stored roster entry under the
// global lock and persists the result.
func (s *Storage) UpdateVoter(electionID, voterID uuid.UUID, update func(*types.Voter) error) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	voter := new(types.Voter)
	key := voterKey(electionID, voterID)
	if err := s.getArtifact(voterPrefix, key, voter); err != nil {
		return err
	}
	if err := update(voter); err != nil {
		return err
	}
	return s.setArtifact(voterPrefix, key, voter)
}

// setInTx encodes and stores an artifact inside an open transaction, under
// the given namespace prefix.
func setInTx(wTx db.WriteTx, prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	return prefixeddb.NewPrefixedWriteTx(wTx, prefix).Set(key, data)
}

func voterKey(electionID, voterID uuid.UUID) []byte {
	return append(append([]byte{}, electionID[:]...), voterID[:]...)
}

// usernameKey hashes the username so arbitrary-length names map to fixed
// size index keys.
func usernameKey(electionID uuid.UUID, username string) []byte {
	h := sha256.Sum256([]byte(username))
	return append(append([]byte{}, electionID[:]...), h[:usernameKeySize]...)
}
