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

// ErrBallotNotPending is returned by transition operations when the ballot
// is not in the cast state. A ballot leaves the cast state exactly once;
// any later audit or confirm attempt hits this error.
var ErrBallotNotPending = errors.New("ballot is not in the cast state")

// BallotSecrets is the secret row of a cast ballot: per-candidate randomness
// and vote bits, in choice order. The row exists only while the ballot is
// undecided. Both terminal transitions destroy it in the same transaction
// that changes the ballot status, so there is no window where a confirmed
// ballot still has recoverable secrets.
type BallotSecrets struct {
	Rhos  []types.BigInt `json:"rhos"`
	Votes []int          `json:"votes"`
}

// CastBallot allocates a ballot id, builds the ballot through the callback
// (which receives the allocated id, so proofs can bind it) and stores the
// public record, the secret row and the pending index entry in one
// transaction. Returns ErrKeyAlreadyExists if the voter already has an
// undecided ballot for the question.
func (s *Storage) CastBallot(electionID, voterID, questionID uuid.UUID,
	build func(ballotID uint64) (*types.Ballot, *BallotSecrets, error),
) (uint64, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	pKey := pendingKey(electionID, voterID, questionID)
	if _, err := prefixeddb.NewPrefixedReader(s.db, ballotPendingPrefix).Get(pKey); err == nil {
		return 0, fmt.Errorf("%w: undecided ballot for voter %s question %s",
			ErrKeyAlreadyExists, voterID, questionID)
	}

	wTx := s.db.WriteTx()
	defer wTx.Discard()

	id, err := nextBallotID(wTx, electionID)
	if err != nil {
		return 0, fmt.Errorf("allocate ballot id: %w", err)
	}
	ballot, secrets, err := build(id)
	if err != nil {
		return 0, err
	}
	ballot.BallotID = id
	ballot.Status = types.BallotStatusCast

	bKey := ballotKey(electionID, id)
	if err := setInTx(wTx, ballotPrefix, bKey, ballot); err != nil {
		return 0, fmt.Errorf("store ballot: %w", err)
	}
	if err := setInTx(wTx, ballotSecretsPrefix, bKey, secrets); err != nil {
		return 0, fmt.Errorf("store ballot secrets: %w", err)
	}
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], id)
	if err := prefixeddb.NewPrefixedWriteTx(wTx, ballotPendingPrefix).Set(pKey, idBuf[:]); err != nil {
		return 0, fmt.Errorf("store pending index: %w", err)
	}
	if err := wTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cast: %w", err)
	}
	return id, nil
}

// Ballot retrieves the public ballot record.
func (s *Storage) Ballot(electionID uuid.UUID, ballotID uint64) (*types.Ballot, error) {
	ballot := new(types.Ballot)
	if err := s.getArtifact(ballotPrefix, ballotKey(electionID, ballotID), ballot); err != nil {
		return nil, err
	}
	return ballot, nil
}

// BallotSecrets retrieves the secret row of an undecided ballot. Returns
// ErrNotFound once the ballot has been audited or confirmed.
func (s *Storage) BallotSecrets(electionID uuid.UUID, ballotID uint64) (*BallotSecrets, error) {
	secrets := new(BallotSecrets)
	if err := s.getArtifact(ballotSecretsPrefix, ballotKey(electionID, ballotID), secrets); err != nil {
		return nil, err
	}
	return secrets, nil
}

// PendingBallotID returns the id of the voter's undecided ballot for a
// question, or ErrNotFound.
func (s *Storage) PendingBallotID(electionID, voterID, questionID uuid.UUID) (uint64, error) {
	raw, err := prefixeddb.NewPrefixedReader(s.db, ballotPendingPrefix).Get(pendingKey(electionID, voterID, questionID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

// ListBallots returns all ballots of an election in ballot id order.
func (s *Storage) ListBallots(electionID uuid.UUID) ([]*types.Ballot, error) {
	var ballots []*types.Ballot
	var iterErr error
	err := prefixeddb.NewPrefixedReader(s.db, ballotPrefix).Iterate(electionID[:], func(_, value []byte) bool {
		ballot := new(types.Ballot)
		if err := DecodeArtifact(value, ballot); err != nil {
			iterErr = fmt.Errorf("decode ballot: %w", err)
			return false
		}
		ballots = append(ballots, ballot)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return ballots, nil
}

// AuditBallot performs the audit transition: the secret row is copied into
// the public record as revealed material, then destroyed together with the
// pending index entry. The ballot is permanently excluded from the tally.
// Returns the updated public record.
func (s *Storage) AuditBallot(electionID uuid.UUID, ballotID uint64) (*types.Ballot, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	bKey := ballotKey(electionID, ballotID)
	ballot := new(types.Ballot)
	if err := s.getArtifact(ballotPrefix, bKey, ballot); err != nil {
		return nil, err
	}
	if ballot.Status != types.BallotStatusCast {
		return nil, fmt.Errorf("%w: ballot %d is %s", ErrBallotNotPending, ballotID, ballot.Status)
	}
	secrets := new(BallotSecrets)
	if err := s.getArtifact(ballotSecretsPrefix, bKey, secrets); err != nil {
		return nil, fmt.Errorf("load ballot secrets: %w", err)
	}

	pKey := pendingKey(ballot.ElectionID, ballot.VoterID, ballot.QuestionID)
	ballot.Status = types.BallotStatusAudited
	ballot.Revealed = make([]types.RevealedSecret, len(secrets.Rhos))
	for i := range secrets.Rhos {
		ballot.Revealed[i] = types.RevealedSecret{
			Rho:  &secrets.Rhos[i],
			Vote: secrets.Votes[i],
		}
	}
	ballot.VoterID = uuid.UUID{}

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := setInTx(wTx, ballotPrefix, bKey, ballot); err != nil {
		return nil, fmt.Errorf("store audited ballot: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, ballotSecretsPrefix).Delete(bKey); err != nil {
		return nil, fmt.Errorf("delete ballot secrets: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, ballotPendingPrefix).Delete(pKey); err != nil {
		return nil, fmt.Errorf("delete pending index: %w", err)
	}
	if err := wTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit: %w", err)
	}
	return ballot, nil
}

func ballotKey(electionID uuid.UUID, ballotID uint64) []byte {
	key := make([]byte, 0, len(electionID)+8)
	key = append(key, electionID[:]...)
	return binary.BigEndian.AppendUint64(key, ballotID)
}

func pendingKey(electionID, voterID, questionID uuid.UUID) []byte {
	key := make([]byte, 0, 48)
	key = append(key, electionID[:]...)
	key = append(key, voterID[:]...)
	return append(key, questionID[:]...)
}
