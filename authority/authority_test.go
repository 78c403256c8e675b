package authority

import (
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/verivote/dreip-node/census"
	"github.com/verivote/dreip-node/crypto/dreip"
	"github.com/verivote/dreip-node/db"
	"github.com/verivote/dreip-node/db/metadb"
	"github.com/verivote/dreip-node/storage"
	"github.com/verivote/dreip-node/types"
)

const testRoster = `fname,lname,postcode,uname,dob,pass
Alice,Anderson,AB1 2CD,alice,01-02-1990,alicepw
Bob,Brown,EF3 4GH,bob,15-06-1985,bobpw
`

func newTestAuthority(t *testing.T) *Authority {
	t.Helper()
	database, err := metadb.New(db.TypePebble, t.TempDir())
	qt.Assert(t, err, qt.IsNil)
	stg := storage.New(database)
	t.Cleanup(stg.Close)
	return New(stg)
}

// newTestSetup creates an open two-question election with alice and bob
// registered.
func newTestSetup(t *testing.T, a *Authority) (*types.Election, []*types.Voter) {
	t.Helper()
	c := qt.New(t)

	election, err := a.CreateElection(&types.Election{
		Title:     "community budget",
		StartTime: time.Now().Add(-time.Minute),
		EndTime:   time.Now().Add(time.Hour),
		Questions: []types.Question{
			{
				Query: "fund the library?",
				Choices: []types.Choice{
					{Text: "yes"}, {Text: "no"},
				},
				MaxSelections: 1,
			},
			{
				Query: "pick two projects",
				Choices: []types.Choice{
					{Text: "park"}, {Text: "pool"}, {Text: "road"},
				},
				MaxSelections: 2,
			},
		},
	})
	c.Assert(err, qt.IsNil)

	records, err := census.ParseRoster(strings.NewReader(testRoster), ',')
	c.Assert(err, qt.IsNil)
	voters, err := a.RegisterVoters(election.ID, records)
	c.Assert(err, qt.IsNil)
	c.Assert(voters, qt.HasLen, 2)
	return election, voters
}

func TestCreateElectionValidation(t *testing.T) {
	c := qt.New(t)
	a := newTestAuthority(t)

	_, err := a.CreateElection(&types.Election{
		Title:     "",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Hour),
	})
	c.Assert(err, qt.ErrorIs, dreip.ErrMalformedInput)

	_, err = a.CreateElection(&types.Election{
		Title:     "bad window",
		StartTime: time.Now().Add(time.Hour),
		EndTime:   time.Now(),
		Questions: []types.Question{{Query: "q", Choices: []types.Choice{{Text: "a"}, {Text: "b"}}, MaxSelections: 1}},
	})
	c.Assert(err, qt.ErrorIs, dreip.ErrMalformedInput)

	// k must be at least 1 and leave a free choice.
	_, err = a.CreateElection(&types.Election{
		Title:     "bad k",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Hour),
		Questions: []types.Question{{Query: "q", Choices: []types.Choice{{Text: "a"}, {Text: "b"}}, MaxSelections: 2}},
	})
	c.Assert(err, qt.ErrorIs, dreip.ErrMalformedInput)
}

func TestAuthenticate(t *testing.T) {
	c := qt.New(t)
	a := newTestAuthority(t)
	election, voters := newTestSetup(t, a)

	voter, err := a.Authenticate(election.ID, "alice", "alicepw")
	c.Assert(err, qt.IsNil)
	c.Assert(voter.ID, qt.Equals, voters[0].ID)

	_, err = a.Authenticate(election.ID, "alice", "wrong")
	c.Assert(err, qt.ErrorIs, ErrUnauthorized)
	_, err = a.Authenticate(election.ID, "mallory", "alicepw")
	c.Assert(err, qt.ErrorIs, ErrUnauthorized)
}

func TestCastProducesVerifiableBallot(t *testing.T) {
	c := qt.New(t)
	a := newTestAuthority(t)
	election, voters := newTestSetup(t, a)
	question := election.Questions[0]

	ballot, err := a.CastBallot(election.ID, voters[0].ID, question.ID, []int{0})
	c.Assert(err, qt.IsNil)
	c.Assert(ballot.BallotID, qt.Equals, uint64(1))
	c.Assert(ballot.Status, qt.Equals, types.BallotStatusCast)
	c.Assert(ballot.Commitments, qt.HasLen, 2)
	c.Assert(ballot.Proofs, qt.HasLen, 2)
	c.Assert(ballot.RandomReceipt, qt.HasLen, 32)
	c.Assert(ballot.VoteReceipt, qt.HasLen, 32)

	// The stored proofs must verify against the public data alone.
	publicKey, err := dreip.ParsePoint(election.CurveType, election.PublicKey)
	c.Assert(err, qt.IsNil)
	params, err := dreip.NewParams(election.CurveType, question.ID[:], publicKey)
	c.Assert(err, qt.IsNil)
	ctx := &dreip.Context{
		ElectionID: election.ID[:],
		QuestionID: question.ID[:],
		BallotID:   ballot.BallotID,
	}
	commitments := make([]dreip.Commitment, len(ballot.Commitments))
	proofs := make([]*dreip.BinaryProof, len(ballot.Proofs))
	for i := range ballot.Commitments {
		r, err := dreip.ParsePoint(election.CurveType, ballot.Commitments[i].R)
		c.Assert(err, qt.IsNil)
		cm, err := dreip.ParsePoint(election.CurveType, ballot.Commitments[i].C)
		c.Assert(err, qt.IsNil)
		commitments[i] = dreip.Commitment{R: r, C: cm}
		proofs[i] = &dreip.BinaryProof{
			C0: ballot.Proofs[i].C0.MathBigInt(),
			C1: ballot.Proofs[i].C1.MathBigInt(),
			R0: ballot.Proofs[i].R0.MathBigInt(),
			R1: ballot.Proofs[i].R1.MathBigInt(),
		}
	}
	sum := &dreip.SumProof{C: ballot.SumProof.C.MathBigInt(), R: ballot.SumProof.R.MathBigInt()}
	c.Assert(dreip.VerifyBallot(params, ctx, commitments, proofs, sum, question.MaxSelections), qt.IsNil)
}

func TestCastRejections(t *testing.T) {
	c := qt.New(t)
	a := newTestAuthority(t)
	election, voters := newTestSetup(t, a)
	q0, q1 := election.Questions[0], election.Questions[1]
	alice := voters[0]

	// Wrong selection count and bad indexes.
	_, err := a.CastBallot(election.ID, alice.ID, q0.ID, []int{0, 1})
	c.Assert(err, qt.ErrorIs, dreip.ErrInvalidSelection)
	_, err = a.CastBallot(election.ID, alice.ID, q0.ID, []int{5})
	c.Assert(err, qt.ErrorIs, dreip.ErrInvalidSelection)

	// Questions must be answered in order.
	_, err = a.CastBallot(election.ID, alice.ID, q1.ID, []int{0, 1})
	c.Assert(err, qt.ErrorIs, ErrStateConflict)

	// A second cast while one is pending is rejected.
	_, err = a.CastBallot(election.ID, alice.ID, q0.ID, []int{0})
	c.Assert(err, qt.IsNil)
	_, err = a.CastBallot(election.ID, alice.ID, q0.ID, []int{1})
	c.Assert(err, qt.ErrorIs, ErrBallotPending)

	// Advance to the two-selection question: a repeated choice index is
	// invalid even though the count is right.
	_, err = a.ConfirmBallot(election.ID, alice.ID, q0.ID)
	c.Assert(err, qt.IsNil)
	_, err = a.CastBallot(election.ID, alice.ID, q1.ID, []int{1, 1})
	c.Assert(err, qt.ErrorIs, dreip.ErrInvalidSelection)
}

func TestAuditThenRevoteThenConfirm(t *testing.T) {
	c := qt.New(t)
	a := newTestAuthority(t)
	election, voters := newTestSetup(t, a)
	q0 := election.Questions[0]
	alice := voters[0]

	// No pending ballot yet: decisions conflict.
	_, err := a.AuditBallot(election.ID, alice.ID, q0.ID)
	c.Assert(err, qt.ErrorIs, ErrStateConflict)
	_, err = a.ConfirmBallot(election.ID, alice.ID, q0.ID)
	c.Assert(err, qt.ErrorIs, ErrStateConflict)

	first, err := a.CastBallot(election.ID, alice.ID, q0.ID, []int{0})
	c.Assert(err, qt.IsNil)

	audited, err := a.AuditBallot(election.ID, alice.ID, q0.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(audited.Status, qt.Equals, types.BallotStatusAudited)
	c.Assert(audited.Revealed, qt.HasLen, 2)
	c.Assert(audited.Revealed[0].Vote, qt.Equals, 1)

	// The decision is one-shot.
	_, err = a.AuditBallot(election.ID, alice.ID, q0.ID)
	c.Assert(err, qt.ErrorIs, ErrStateConflict)

	// Re-vote draws entirely fresh randomness under a new ballot id.
	second, err := a.CastBallot(election.ID, alice.ID, q0.ID, []int{0})
	c.Assert(err, qt.IsNil)
	c.Assert(second.BallotID, qt.Equals, first.BallotID+1)
	c.Assert(second.Commitments[0].R.Equal(first.Commitments[0].R), qt.IsFalse)
	c.Assert(second.RandomReceipt.Equal(first.RandomReceipt), qt.IsFalse)

	confirmed, err := a.ConfirmBallot(election.ID, alice.ID, q0.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(confirmed.Status, qt.Equals, types.BallotStatusConfirmed)
	c.Assert(confirmed.Revealed, qt.HasLen, 0)

	// Alice advanced to the second question; the first is done for her.
	_, err = a.CastBallot(election.ID, alice.ID, q0.ID, []int{1})
	c.Assert(err, qt.ErrorIs, ErrStateConflict)
	_, err = a.CastBallot(election.ID, alice.ID, election.Questions[1].ID, []int{0, 1})
	c.Assert(err, qt.IsNil)
}

func TestVoterFinishes(t *testing.T) {
	c := qt.New(t)
	a := newTestAuthority(t)
	election, voters := newTestSetup(t, a)
	alice := voters[0]

	_, err := a.CastBallot(election.ID, alice.ID, election.Questions[0].ID, []int{1})
	c.Assert(err, qt.IsNil)
	_, err = a.ConfirmBallot(election.ID, alice.ID, election.Questions[0].ID)
	c.Assert(err, qt.IsNil)
	_, err = a.CastBallot(election.ID, alice.ID, election.Questions[1].ID, []int{0, 2})
	c.Assert(err, qt.IsNil)
	_, err = a.ConfirmBallot(election.ID, alice.ID, election.Questions[1].ID)
	c.Assert(err, qt.IsNil)

	v, err := a.Storage().Voter(election.ID, alice.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(v.FinishedVoting, qt.IsTrue)

	_, err = a.CastBallot(election.ID, alice.ID, election.Questions[0].ID, []int{0})
	c.Assert(err, qt.ErrorIs, ErrVoterFinished)
}

func TestCloseAndExport(t *testing.T) {
	c := qt.New(t)
	a := newTestAuthority(t)
	election, voters := newTestSetup(t, a)
	q0 := election.Questions[0]
	alice, bob := voters[0], voters[1]

	// Alice confirms "yes", Bob confirms "no".
	_, err := a.CastBallot(election.ID, alice.ID, q0.ID, []int{0})
	c.Assert(err, qt.IsNil)
	_, err = a.ConfirmBallot(election.ID, alice.ID, q0.ID)
	c.Assert(err, qt.IsNil)
	_, err = a.CastBallot(election.ID, bob.ID, q0.ID, []int{1})
	c.Assert(err, qt.IsNil)
	_, err = a.ConfirmBallot(election.ID, bob.ID, q0.ID)
	c.Assert(err, qt.IsNil)

	// End time not reached: close requires force.
	err = a.CloseElection(election.ID, false)
	c.Assert(err, qt.ErrorIs, ErrStateConflict)
	c.Assert(a.CloseElection(election.ID, true), qt.IsNil)
	err = a.CloseElection(election.ID, true)
	c.Assert(err, qt.ErrorIs, ErrStateConflict)

	// Closed elections take no more ballots.
	_, err = a.CastBallot(election.ID, alice.ID, election.Questions[1].ID, []int{0, 1})
	c.Assert(err, qt.ErrorIs, ErrElectionNotOpen)

	export, err := a.Export(election.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(export.Ballots, qt.HasLen, 2)
	c.Assert(export.Questions[0].Results[0].Votes.MathBigInt().Int64(), qt.Equals, int64(1))
	c.Assert(export.Questions[0].Results[1].Votes.MathBigInt().Int64(), qt.Equals, int64(1))
	c.Assert(len(export.Signature) > 0, qt.IsTrue)
}
