package storage

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/verivote/dreip-node/crypto/dreip"
	"github.com/verivote/dreip-node/crypto/ecc/bn254"
	"github.com/verivote/dreip-node/crypto/signatures/ethereum"
	"github.com/verivote/dreip-node/db"
	"github.com/verivote/dreip-node/db/metadb"
	"github.com/verivote/dreip-node/types"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	database, err := metadb.New(db.TypePebble, t.TempDir())
	qt.Assert(t, err, qt.IsNil)
	s := New(database)
	t.Cleanup(s.Close)
	return s
}

// newTestElection stores an election with one two-choice question and its
// keys, and returns the election, its dreip parameters and a voter.
func newTestElection(t *testing.T, s *Storage) (*types.Election, *dreip.Params, *types.Voter) {
	t.Helper()
	c := qt.New(t)

	pk, sk, err := dreip.GenerateKey(bn254.CurveType)
	c.Assert(err, qt.IsNil)
	signer, err := ethereum.NewSigner()
	c.Assert(err, qt.IsNil)

	electionID := uuid.New()
	questionID := uuid.New()
	election := &types.Election{
		ID:        electionID,
		Title:     "test election",
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
		CurveType: bn254.CurveType,
		PublicKey: pk.Marshal(),
		Questions: []types.Question{{
			ID:         questionID,
			ElectionID: electionID,
			Query:      "best option?",
			Choices: []types.Choice{
				{Index: 0, Text: "yes"},
				{Index: 1, Text: "no"},
			},
			MaxSelections: 1,
		}},
	}
	c.Assert(s.SetElection(election), qt.IsNil)
	c.Assert(s.SetElectionKeys(electionID, &ElectionKeys{
		PrivateKey: *types.FromBig(sk),
		SignerKey:  types.HexBytes(signer.HexPrivateKey()),
	}), qt.IsNil)

	voter := &types.Voter{
		ID:         uuid.New(),
		ElectionID: electionID,
		Username:   "alice",
	}
	c.Assert(s.SetVoter(voter), qt.IsNil)

	params, err := dreip.NewParams(bn254.CurveType, questionID[:], pk)
	c.Assert(err, qt.IsNil)
	return election, params, voter
}

// castTestBallot commits to the given selections and stores the resulting
// ballot for the voter.
func castTestBallot(t *testing.T, s *Storage, election *types.Election, params *dreip.Params, voter *types.Voter, selections []bool) uint64 {
	t.Helper()
	c := qt.New(t)

	question := election.Questions[0]
	cms, secrets, err := dreip.Commit(params, selections, question.MaxSelections)
	c.Assert(err, qt.IsNil)

	id, err := s.CastBallot(election.ID, voter.ID, question.ID, func(uint64) (*types.Ballot, *BallotSecrets, error) {
		ballot := &types.Ballot{
			ElectionID:  election.ID,
			QuestionID:  question.ID,
			VoterID:     voter.ID,
			Commitments: make([]types.CandidateCommitment, len(cms)),
			CastAt:      time.Now(),
		}
		sr := &BallotSecrets{
			Rhos:  make([]types.BigInt, len(secrets)),
			Votes: make([]int, len(secrets)),
		}
		for i := range cms {
			ballot.Commitments[i] = types.CandidateCommitment{
				R: cms[i].R.Marshal(),
				C: cms[i].C.Marshal(),
			}
			sr.Rhos[i] = *types.FromBig(secrets[i].Rho)
			sr.Votes[i] = secrets[i].Vote
		}
		return ballot, sr, nil
	})
	c.Assert(err, qt.IsNil)
	return id
}

func TestElectionRoundTrip(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	election, _, _ := newTestElection(t, s)

	stored, err := s.Election(election.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Title, qt.Equals, election.Title)
	c.Assert(stored.Questions, qt.HasLen, 1)
	c.Assert(stored.Questions[0].Choices, qt.HasLen, 2)
	c.Assert(stored.Closed, qt.IsFalse)

	// Duplicate insert must be rejected.
	c.Assert(s.SetElection(election), qt.ErrorIs, ErrKeyAlreadyExists)

	// Unknown election.
	_, err = s.Election(uuid.New())
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	ids, err := s.ListElections()
	c.Assert(err, qt.IsNil)
	c.Assert(ids, qt.HasLen, 1)
	c.Assert(ids[0], qt.Equals, election.ID)

	// Close via update callback.
	err = s.UpdateElection(election.ID, func(e *types.Election) error {
		e.Closed = true
		return nil
	})
	c.Assert(err, qt.IsNil)
	stored, err = s.Election(election.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Closed, qt.IsTrue)
}

func TestVoterUsernameIndex(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	election, _, voter := newTestElection(t, s)

	found, err := s.VoterByUsername(election.ID, "alice")
	c.Assert(err, qt.IsNil)
	c.Assert(found.ID, qt.Equals, voter.ID)

	// Duplicate username in the same election must be rejected.
	dup := &types.Voter{ID: uuid.New(), ElectionID: election.ID, Username: "alice"}
	c.Assert(s.SetVoter(dup), qt.ErrorIs, ErrKeyAlreadyExists)

	// Same username in another election is fine.
	other := &types.Voter{ID: uuid.New(), ElectionID: uuid.New(), Username: "alice"}
	c.Assert(s.SetVoter(other), qt.IsNil)

	_, err = s.VoterByUsername(election.ID, "nobody")
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestVoterCredentialHashPersists(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	election, _, _ := newTestElection(t, s)

	// The hash is json-skipped so it never leaks through the API, but the
	// stored row must keep it or authentication breaks for everyone.
	voter := &types.Voter{
		ID:             uuid.New(),
		ElectionID:     election.ID,
		Username:       "carol",
		CredentialHash: types.HexBytes{1, 2, 3, 4},
	}

	data, err := EncodeArtifact(voter)
	c.Assert(err, qt.IsNil)
	decoded := &types.Voter{}
	c.Assert(DecodeArtifact(data, decoded), qt.IsNil)
	c.Assert(decoded.CredentialHash, qt.DeepEquals, voter.CredentialHash)

	c.Assert(s.SetVoter(voter), qt.IsNil)
	stored, err := s.VoterByUsername(election.ID, "carol")
	c.Assert(err, qt.IsNil)
	c.Assert(stored.CredentialHash, qt.DeepEquals, voter.CredentialHash)
}

func TestBallotIDsMonotonic(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	election, params, voter := newTestElection(t, s)

	id1 := castTestBallot(t, s, election, params, voter, []bool{true, false})
	c.Assert(id1, qt.Equals, uint64(1))

	// Audit frees the pending slot; the next ballot gets a fresh id.
	_, err := s.AuditBallot(election.ID, id1)
	c.Assert(err, qt.IsNil)

	id2 := castTestBallot(t, s, election, params, voter, []bool{false, true})
	c.Assert(id2, qt.Equals, uint64(2))
}

func TestCastRejectsSecondPendingBallot(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	election, params, voter := newTestElection(t, s)

	castTestBallot(t, s, election, params, voter, []bool{true, false})

	question := election.Questions[0]
	_, err := s.CastBallot(election.ID, voter.ID, question.ID, func(uint64) (*types.Ballot, *BallotSecrets, error) {
		t.Fatal("builder must not run when a ballot is already pending")
		return nil, nil, nil
	})
	c.Assert(err, qt.ErrorIs, ErrKeyAlreadyExists)
}

func TestAuditTransition(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	election, params, voter := newTestElection(t, s)

	id := castTestBallot(t, s, election, params, voter, []bool{true, false})

	stored, err := s.Ballot(election.ID, id)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, types.BallotStatusCast)
	c.Assert(stored.Revealed, qt.HasLen, 0)

	audited, err := s.AuditBallot(election.ID, id)
	c.Assert(err, qt.IsNil)
	c.Assert(audited.Status, qt.Equals, types.BallotStatusAudited)
	c.Assert(audited.Revealed, qt.HasLen, 2)
	c.Assert(audited.Revealed[0].Vote, qt.Equals, 1)
	c.Assert(audited.Revealed[1].Vote, qt.Equals, 0)
	c.Assert(audited.VoterID, qt.Equals, uuid.UUID{})

	// Secret row destroyed.
	_, err = s.BallotSecrets(election.ID, id)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	// Revealed vote bit must open its commitment.
	r, err := dreip.ParsePoint(election.CurveType, audited.Commitments[0].R)
	c.Assert(err, qt.IsNil)
	cPoint, err := dreip.ParsePoint(election.CurveType, audited.Commitments[0].C)
	c.Assert(err, qt.IsNil)
	err = dreip.VerifyReveal(params, dreip.Commitment{R: r, C: cPoint}, dreip.Secret{
		Rho:  audited.Revealed[0].Rho.MathBigInt(),
		Vote: audited.Revealed[0].Vote,
	})
	c.Assert(err, qt.IsNil)

	// One-shot: any second transition hits the conflict.
	_, err = s.AuditBallot(election.ID, id)
	c.Assert(err, qt.ErrorIs, ErrBallotNotPending)
	_, err = s.ConfirmBallot(election.ID, id)
	c.Assert(err, qt.ErrorIs, ErrBallotNotPending)

	// Voter progress unchanged on audit.
	v, err := s.Voter(election.ID, voter.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(v.CurrentQuestion, qt.Equals, 0)
	c.Assert(v.FinishedVoting, qt.IsFalse)
}

func TestConfirmTransition(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	election, params, voter := newTestElection(t, s)

	id := castTestBallot(t, s, election, params, voter, []bool{true, false})

	confirmed, err := s.ConfirmBallot(election.ID, id)
	c.Assert(err, qt.IsNil)
	c.Assert(confirmed.Status, qt.Equals, types.BallotStatusConfirmed)
	c.Assert(confirmed.Revealed, qt.HasLen, 0)
	c.Assert(confirmed.VoterID, qt.Equals, uuid.UUID{})

	// Secret row destroyed in the same transaction.
	_, err = s.BallotSecrets(election.ID, id)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	// Tally folded: one vote for choice 0, none for choice 1, and the
	// announced totals open the aggregates.
	question := election.Questions[0]
	tally, err := s.QuestionTally(election.ID, question.ID, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(tally.Confirmed, qt.Equals, uint64(1))
	c.Assert(tally.Choices[0].Votes.MathBigInt().Int64(), qt.Equals, int64(1))
	c.Assert(tally.Choices[1].Votes.MathBigInt().Int64(), qt.Equals, int64(0))

	for i := range tally.Choices {
		aggR, err := dreip.ParsePoint(election.CurveType, tally.Choices[i].AggregateR)
		c.Assert(err, qt.IsNil)
		aggC, err := dreip.ParsePoint(election.CurveType, tally.Choices[i].AggregateC)
		c.Assert(err, qt.IsNil)
		err = dreip.VerifyTally(params, dreip.Tally{
			Votes:      tally.Choices[i].Votes.MathBigInt(),
			Randomness: tally.Choices[i].Randomness.MathBigInt(),
		}, aggR, aggC)
		c.Assert(err, qt.IsNil)
	}

	// Voter advanced past the only question and finished.
	v, err := s.Voter(election.ID, voter.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(v.CurrentQuestion, qt.Equals, 1)
	c.Assert(v.FinishedVoting, qt.IsTrue)

	// One-shot.
	_, err = s.ConfirmBallot(election.ID, id)
	c.Assert(err, qt.ErrorIs, ErrBallotNotPending)
}

func TestTallyAccumulatesAcrossBallots(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	election, params, voter := newTestElection(t, s)

	// Voter confirms choice 0; a second voter confirms choice 1; a third
	// casts and audits (must not count).
	id := castTestBallot(t, s, election, params, voter, []bool{true, false})
	_, err := s.ConfirmBallot(election.ID, id)
	c.Assert(err, qt.IsNil)

	bob := &types.Voter{ID: uuid.New(), ElectionID: election.ID, Username: "bob"}
	c.Assert(s.SetVoter(bob), qt.IsNil)
	id = castTestBallot(t, s, election, params, bob, []bool{false, true})
	_, err = s.ConfirmBallot(election.ID, id)
	c.Assert(err, qt.IsNil)

	carol := &types.Voter{ID: uuid.New(), ElectionID: election.ID, Username: "carol"}
	c.Assert(s.SetVoter(carol), qt.IsNil)
	id = castTestBallot(t, s, election, params, carol, []bool{true, false})
	_, err = s.AuditBallot(election.ID, id)
	c.Assert(err, qt.IsNil)

	question := election.Questions[0]
	tally, err := s.QuestionTally(election.ID, question.ID, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(tally.Confirmed, qt.Equals, uint64(2))
	c.Assert(tally.Choices[0].Votes.MathBigInt().Int64(), qt.Equals, int64(1))
	c.Assert(tally.Choices[1].Votes.MathBigInt().Int64(), qt.Equals, int64(1))

	for i := range tally.Choices {
		aggR, err := dreip.ParsePoint(election.CurveType, tally.Choices[i].AggregateR)
		c.Assert(err, qt.IsNil)
		aggC, err := dreip.ParsePoint(election.CurveType, tally.Choices[i].AggregateC)
		c.Assert(err, qt.IsNil)
		err = dreip.VerifyTally(params, dreip.Tally{
			Votes:      tally.Choices[i].Votes.MathBigInt(),
			Randomness: tally.Choices[i].Randomness.MathBigInt(),
		}, aggR, aggC)
		c.Assert(err, qt.IsNil)
	}
}

func TestBuildExport(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	election, params, voter := newTestElection(t, s)

	id := castTestBallot(t, s, election, params, voter, []bool{true, false})
	_, err := s.ConfirmBallot(election.ID, id)
	c.Assert(err, qt.IsNil)

	// Export requires a closed election.
	_, err = s.BuildExport(election.ID)
	c.Assert(err, qt.Not(qt.IsNil))

	err = s.UpdateElection(election.ID, func(e *types.Election) error {
		e.Closed = true
		return nil
	})
	c.Assert(err, qt.IsNil)

	export, err := s.BuildExport(election.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(export.Version, qt.Equals, types.ExportVersion)
	c.Assert(export.Ballots, qt.HasLen, 1)
	c.Assert(export.Questions, qt.HasLen, 1)
	c.Assert(export.Questions[0].Results, qt.HasLen, 2)
	c.Assert(export.Questions[0].Results[0].Votes.MathBigInt().Int64(), qt.Equals, int64(1))
	c.Assert(export.AuthorityAddress, qt.HasLen, 20)
	c.Assert(len(export.Signature), qt.Equals, 0)

	// Signature verifies against the authority address.
	c.Assert(s.SignExport(export), qt.IsNil)
	payload, err := ExportSigningPayload(export)
	c.Assert(err, qt.IsNil)
	sig, err := ethereum.BytesToSignature(export.Signature)
	c.Assert(err, qt.IsNil)
	addr, err := ethereum.AddrFromSignature(payload, sig)
	c.Assert(err, qt.IsNil)
	c.Assert(addr.Bytes(), qt.DeepEquals, export.AuthorityAddress.Bytes())
}
