package storage

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/verivote/dreip-node/crypto/ecc/curves"
	"github.com/verivote/dreip-node/db/prefixeddb"
	"github.com/verivote/dreip-node/types"
)

// ChoiceTally is the running tally state of one choice: the vote and
// randomness totals (private until the election closes) and the public
// commitment aggregates they must reproduce.
type ChoiceTally struct {
	Votes      types.BigInt   `json:"votes"`
	Randomness types.BigInt   `json:"randomness"`
	AggregateR types.HexBytes `json:"aggregateR"`
	AggregateC types.HexBytes `json:"aggregateC"`
}

// QuestionTally is the per-question tally row: one ChoiceTally per choice
// plus the number of confirmed ballots folded in.
type QuestionTally struct {
	Confirmed uint64        `json:"confirmed"`
	Choices   []ChoiceTally `json:"choices"`
}

// ConfirmBallot performs the confirm transition: the ballot's secrets are
// folded into the question tally and then destroyed, the voter's progress
// advances, and the ballot record becomes terminal. Everything commits in a
// single transaction under the global lock, so the tally can never include
// a ballot whose secrets still exist, nor lose a ballot whose secrets are
// gone.
func (s *Storage) ConfirmBallot(electionID uuid.UUID, ballotID uint64) (*types.Ballot, error) {
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
	election := new(types.Election)
	if err := s.getArtifact(electionPrefix, electionID[:], election); err != nil {
		return nil, fmt.Errorf("load election: %w", err)
	}
	questionIndex := -1
	for i, q := range election.Questions {
		if q.ID == ballot.QuestionID {
			questionIndex = i
			break
		}
	}
	if questionIndex < 0 {
		return nil, fmt.Errorf("question %s not part of election %s", ballot.QuestionID, electionID)
	}

	tally, err := s.questionTally(electionID, ballot.QuestionID, len(ballot.Commitments))
	if err != nil {
		return nil, err
	}
	if err := mergeBallot(tally, election.CurveType, ballot, secrets); err != nil {
		return nil, err
	}
	tally.Confirmed++

	voter := new(types.Voter)
	vKey := voterKey(electionID, ballot.VoterID)
	if err := s.getArtifact(voterPrefix, vKey, voter); err != nil {
		return nil, fmt.Errorf("load voter: %w", err)
	}
	if voter.CurrentQuestion == questionIndex {
		voter.CurrentQuestion++
		if voter.CurrentQuestion >= len(election.Questions) {
			voter.FinishedVoting = true
		}
	}

	pKey := pendingKey(ballot.ElectionID, ballot.VoterID, ballot.QuestionID)
	ballot.Status = types.BallotStatusConfirmed
	ballot.VoterID = uuid.UUID{}

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := setInTx(wTx, ballotPrefix, bKey, ballot); err != nil {
		return nil, fmt.Errorf("store confirmed ballot: %w", err)
	}
	if err := setInTx(wTx, questionTallyPrefix, tallyKey(electionID, ballot.QuestionID), tally); err != nil {
		return nil, fmt.Errorf("store question tally: %w", err)
	}
	if err := setInTx(wTx, voterPrefix, vKey, voter); err != nil {
		return nil, fmt.Errorf("store voter: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, ballotSecretsPrefix).Delete(bKey); err != nil {
		return nil, fmt.Errorf("delete ballot secrets: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, ballotPendingPrefix).Delete(pKey); err != nil {
		return nil, fmt.Errorf("delete pending index: %w", err)
	}
	if err := wTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit confirm: %w", err)
	}
	return ballot, nil
}

// QuestionTally retrieves the tally row of a question. Missing rows come
// back zero-initialized with the given choice count.
func (s *Storage) QuestionTally(electionID, questionID uuid.UUID, choices int) (*QuestionTally, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.questionTally(electionID, questionID, choices)
}

func (s *Storage) questionTally(electionID, questionID uuid.UUID, choices int) (*QuestionTally, error) {
	tally := new(QuestionTally)
	err := s.getArtifact(questionTallyPrefix, tallyKey(electionID, questionID), tally)
	switch {
	case err == nil:
		if len(tally.Choices) != choices {
			return nil, fmt.Errorf("tally row has %d choices, expected %d", len(tally.Choices), choices)
		}
		return tally, nil
	case errors.Is(err, ErrNotFound):
		tally.Choices = make([]ChoiceTally, choices)
		for i := range tally.Choices {
			tally.Choices[i].Votes = *types.NewBigInt(0)
			tally.Choices[i].Randomness = *types.NewBigInt(0)
		}
		return tally, nil
	default:
		return nil, fmt.Errorf("load question tally: %w", err)
	}
}

// mergeBallot folds one confirmed ballot into the tally row: plain integer
// addition for the vote totals, modular addition for the randomness sums,
// group addition for the commitment aggregates.
func mergeBallot(tally *QuestionTally, curveType string, ballot *types.Ballot, secrets *BallotSecrets) error {
	if len(secrets.Rhos) != len(tally.Choices) || len(ballot.Commitments) != len(tally.Choices) {
		return fmt.Errorf("ballot has %d candidates, tally row has %d", len(secrets.Rhos), len(tally.Choices))
	}
	order := curves.New(curveType).Order()
	for i := range tally.Choices {
		ct := &tally.Choices[i]

		votes := ct.Votes.MathBigInt()
		votes.Add(votes, big.NewInt(int64(secrets.Votes[i])))
		ct.Votes = *types.FromBig(votes)

		randomness := ct.Randomness.MathBigInt()
		randomness.Add(randomness, secrets.Rhos[i].MathBigInt())
		randomness.Mod(randomness, order)
		ct.Randomness = *types.FromBig(randomness)

		aggR, err := addAggregate(curveType, ct.AggregateR, ballot.Commitments[i].R)
		if err != nil {
			return fmt.Errorf("aggregate R choice %d: %w", i, err)
		}
		aggC, err := addAggregate(curveType, ct.AggregateC, ballot.Commitments[i].C)
		if err != nil {
			return fmt.Errorf("aggregate C choice %d: %w", i, err)
		}
		ct.AggregateR, ct.AggregateC = aggR, aggC
	}
	return nil
}

// addAggregate adds a marshalled commitment point to a marshalled aggregate.
// An empty aggregate is the group identity.
func addAggregate(curveType string, aggregate types.HexBytes, point types.HexBytes) (types.HexBytes, error) {
	sum := curves.New(curveType).New()
	sum.SetZero()
	if len(aggregate) > 0 {
		if err := sum.Unmarshal(aggregate); err != nil {
			return nil, fmt.Errorf("unmarshal aggregate: %w", err)
		}
	}
	p := curves.New(curveType).New()
	if err := p.Unmarshal(point); err != nil {
		return nil, fmt.Errorf("unmarshal commitment point: %w", err)
	}
	sum.Add(sum, p)
	return sum.Marshal(), nil
}

func tallyKey(electionID, questionID uuid.UUID) []byte {
	key := make([]byte, 0, 32)
	key = append(key, electionID[:]...)
	return append(key, questionID[:]...)
}
