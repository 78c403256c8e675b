package dreip

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/verivote/dreip-node/crypto/ecc/bn254"
	"github.com/verivote/dreip-node/crypto/ecc/curves"
)

func testParams(c *qt.C) (*Params, *big.Int) {
	pk, sk, err := GenerateKey(bn254.CurveType)
	c.Assert(err, qt.IsNil)
	params, err := NewParams(bn254.CurveType, []byte("question-1"), pk)
	c.Assert(err, qt.IsNil)
	return params, sk
}

func TestQuestionGeneratorDeterministic(t *testing.T) {
	c := qt.New(t)

	g2a, err := QuestionGenerator(bn254.CurveType, []byte("question-1"))
	c.Assert(err, qt.IsNil)
	g2b, err := QuestionGenerator(bn254.CurveType, []byte("question-1"))
	c.Assert(err, qt.IsNil)
	c.Assert(g2a.Equal(g2b), qt.IsTrue, qt.Commentf("g2 must be deterministic"))

	g2c, err := QuestionGenerator(bn254.CurveType, []byte("question-2"))
	c.Assert(err, qt.IsNil)
	c.Assert(g2a.Equal(g2c), qt.IsFalse, qt.Commentf("different questions must get different generators"))

	// g2 must not collide with the base generator.
	g1 := curves.New(bn254.CurveType).New()
	g1.SetGenerator()
	c.Assert(g2a.Equal(g1), qt.IsFalse)
}

func TestCommitSelectionCount(t *testing.T) {
	c := qt.New(t)
	params, _ := testParams(c)

	_, _, err := Commit(params, []bool{true, true, false}, 1)
	c.Assert(err, qt.ErrorIs, ErrInvalidSelection)

	_, _, err = Commit(params, []bool{false, false, false}, 1)
	c.Assert(err, qt.ErrorIs, ErrInvalidSelection)

	_, _, err = Commit(params, []bool{true, false, false}, 0)
	c.Assert(err, qt.ErrorIs, ErrInvalidSelection)

	cms, secrets, err := Commit(params, []bool{false, true, false}, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(cms, qt.HasLen, 3)
	c.Assert(secrets, qt.HasLen, 3)
	c.Assert(secrets[1].Vote, qt.Equals, 1)
	c.Assert(secrets[0].Vote, qt.Equals, 0)
}

func TestVerifyReveal(t *testing.T) {
	c := qt.New(t)
	params, _ := testParams(c)

	cms, secrets, err := Commit(params, []bool{true, false}, 1)
	c.Assert(err, qt.IsNil)

	for i := range cms {
		c.Assert(VerifyReveal(params, cms[i], secrets[i]), qt.IsNil)
	}

	// Flipped vote bit must not open the commitment.
	bad := secrets[0]
	bad.Vote = 0
	c.Assert(VerifyReveal(params, cms[0], bad), qt.ErrorIs, ErrProofInvalid)

	// Tampered randomness must not open it either.
	bad = secrets[1]
	bad.Rho = new(big.Int).Add(secrets[1].Rho, big.NewInt(1))
	c.Assert(VerifyReveal(params, cms[1], bad), qt.ErrorIs, ErrProofInvalid)
}

func TestBinaryProof(t *testing.T) {
	c := qt.New(t)
	params, _ := testParams(c)
	ctx := &Context{ElectionID: []byte("election"), QuestionID: []byte("question-1"), BallotID: 7}

	cms, secrets, err := Commit(params, []bool{true, false}, 1)
	c.Assert(err, qt.IsNil)

	// Both vote bits must produce verifying proofs.
	for i := range cms {
		proof, err := ProveBinary(params, ctx, i, cms[i], secrets[i])
		c.Assert(err, qt.IsNil)
		c.Assert(VerifyBinary(params, ctx, i, cms[i], proof), qt.IsNil)
	}

	proof, err := ProveBinary(params, ctx, 0, cms[0], secrets[0])
	c.Assert(err, qt.IsNil)

	// Tampered response.
	bad := *proof
	bad.R0 = new(big.Int).Add(proof.R0, big.NewInt(1))
	c.Assert(VerifyBinary(params, ctx, 0, cms[0], &bad), qt.ErrorIs, ErrProofInvalid)

	// Tampered sub-challenge.
	bad = *proof
	bad.C1 = new(big.Int).Add(proof.C1, big.NewInt(1))
	c.Assert(VerifyBinary(params, ctx, 0, cms[0], &bad), qt.ErrorIs, ErrProofInvalid)

	// Proof bound to another ballot must not verify.
	other := &Context{ElectionID: ctx.ElectionID, QuestionID: ctx.QuestionID, BallotID: 8}
	c.Assert(VerifyBinary(params, other, 0, cms[0], proof), qt.ErrorIs, ErrProofInvalid)

	// Nor against another candidate's commitment.
	c.Assert(VerifyBinary(params, ctx, 1, cms[0], proof), qt.ErrorIs, ErrProofInvalid)

	// Missing fields are malformed input, not a proof failure.
	c.Assert(VerifyBinary(params, ctx, 0, cms[0], &BinaryProof{}), qt.ErrorIs, ErrMalformedInput)
}

func TestBinaryProofRejectsNonBinaryVote(t *testing.T) {
	c := qt.New(t)
	params, _ := testParams(c)
	ctx := &Context{ElectionID: []byte("election"), QuestionID: []byte("question-1"), BallotID: 1}

	cms, secrets, err := Commit(params, []bool{true}, 1)
	c.Assert(err, qt.IsNil)

	bad := secrets[0]
	bad.Vote = 2
	_, err = ProveBinary(params, ctx, 0, cms[0], bad)
	c.Assert(err, qt.ErrorIs, ErrMalformedInput)
}

func TestSumProof(t *testing.T) {
	c := qt.New(t)
	params, _ := testParams(c)
	ctx := &Context{ElectionID: []byte("election"), QuestionID: []byte("question-1"), BallotID: 3}

	cms, secrets, err := Commit(params, []bool{true, false, true}, 2)
	c.Assert(err, qt.IsNil)

	proof, err := ProveSum(params, ctx, cms, secrets, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(VerifySum(params, ctx, cms, 2, proof), qt.IsNil)

	// Wrong required count must fail: the whole point of the sum proof.
	c.Assert(VerifySum(params, ctx, cms, 1, proof), qt.ErrorIs, ErrProofInvalid)
	c.Assert(VerifySum(params, ctx, cms, 3, proof), qt.ErrorIs, ErrProofInvalid)

	// Tampered response.
	bad := *proof
	bad.R = new(big.Int).Add(proof.R, big.NewInt(1))
	c.Assert(VerifySum(params, ctx, cms, 2, &bad), qt.ErrorIs, ErrProofInvalid)

	// Dropping a commitment from the vector changes the statement.
	c.Assert(VerifySum(params, ctx, cms[:2], 2, proof), qt.ErrorIs, ErrProofInvalid)
}

func TestVerifyBallot(t *testing.T) {
	c := qt.New(t)
	params, _ := testParams(c)
	ctx := &Context{ElectionID: []byte("election"), QuestionID: []byte("question-1"), BallotID: 11}

	cms, secrets, err := Commit(params, []bool{false, true, false}, 1)
	c.Assert(err, qt.IsNil)

	proofs := make([]*BinaryProof, len(cms))
	for i := range cms {
		proofs[i], err = ProveBinary(params, ctx, i, cms[i], secrets[i])
		c.Assert(err, qt.IsNil)
	}
	sum, err := ProveSum(params, ctx, cms, secrets, 1)
	c.Assert(err, qt.IsNil)

	c.Assert(VerifyBallot(params, ctx, cms, proofs, sum, 1), qt.IsNil)

	// Length mismatch is malformed input.
	c.Assert(VerifyBallot(params, ctx, cms, proofs[:2], sum, 1), qt.ErrorIs, ErrMalformedInput)
	c.Assert(VerifyBallot(params, ctx, nil, nil, sum, 1), qt.ErrorIs, ErrMalformedInput)

	// Swapping two candidates' proofs must be caught.
	swapped := []*BinaryProof{proofs[1], proofs[0], proofs[2]}
	c.Assert(VerifyBallot(params, ctx, cms, swapped, sum, 1), qt.ErrorIs, ErrProofInvalid)
}

func TestTally(t *testing.T) {
	c := qt.New(t)
	params, _ := testParams(c)
	order := params.H.Order()

	// Three confirmed ballots voting for candidate 0 twice and candidate 1
	// once, out of two candidates.
	selections := [][]bool{
		{true, false},
		{false, true},
		{true, false},
	}
	perCandidate := 2
	votes := make([]*big.Int, perCandidate)
	randomness := make([]*big.Int, perCandidate)
	byCandidate := make([][]Commitment, perCandidate)
	for i := range votes {
		votes[i] = new(big.Int)
		randomness[i] = new(big.Int)
	}

	for _, sel := range selections {
		cms, secrets, err := Commit(params, sel, 1)
		c.Assert(err, qt.IsNil)
		for i := range cms {
			byCandidate[i] = append(byCandidate[i], cms[i])
			votes[i].Add(votes[i], big.NewInt(int64(secrets[i].Vote)))
			randomness[i].Add(randomness[i], secrets[i].Rho)
			randomness[i].Mod(randomness[i], order)
		}
	}

	c.Assert(votes[0].Int64(), qt.Equals, int64(2))
	c.Assert(votes[1].Int64(), qt.Equals, int64(1))

	for i := 0; i < perCandidate; i++ {
		aggR, aggC := AggregateCommitments(params, byCandidate[i])
		tally := Tally{Votes: votes[i], Randomness: randomness[i]}
		c.Assert(VerifyTally(params, tally, aggR, aggC), qt.IsNil)

		// Off-by-one vote count must not verify.
		wrong := Tally{Votes: new(big.Int).Add(votes[i], big.NewInt(1)), Randomness: randomness[i]}
		c.Assert(VerifyTally(params, wrong, aggR, aggC), qt.ErrorIs, ErrTallyMismatch)

		// Wrong randomness sum must not verify either.
		wrong = Tally{Votes: votes[i], Randomness: new(big.Int).Add(randomness[i], big.NewInt(1))}
		c.Assert(VerifyTally(params, wrong, aggR, aggC), qt.ErrorIs, ErrTallyMismatch)
	}
}

func TestReceipts(t *testing.T) {
	c := qt.New(t)
	params, _ := testParams(c)

	cms, _, err := Commit(params, []bool{true, false}, 1)
	c.Assert(err, qt.IsNil)
	randomReceipt, voteReceipt := Receipts(cms)
	c.Assert(randomReceipt, qt.HasLen, 32)
	c.Assert(voteReceipt, qt.HasLen, 32)
	c.Assert(randomReceipt, qt.Not(qt.DeepEquals), voteReceipt)

	// Receipts are a pure function of the commitment vector.
	randomReceipt2, voteReceipt2 := Receipts(cms)
	c.Assert(randomReceipt2, qt.DeepEquals, randomReceipt)
	c.Assert(voteReceipt2, qt.DeepEquals, voteReceipt)

	// A fresh ballot with the same selections still gets distinct receipts.
	cms2, _, err := Commit(params, []bool{true, false}, 1)
	c.Assert(err, qt.IsNil)
	randomReceipt3, _ := Receipts(cms2)
	c.Assert(randomReceipt3, qt.Not(qt.DeepEquals), randomReceipt)
}

func TestParsePoint(t *testing.T) {
	c := qt.New(t)
	params, _ := testParams(c)

	cms, _, err := Commit(params, []bool{true}, 1)
	c.Assert(err, qt.IsNil)

	p, err := ParsePoint(bn254.CurveType, cms[0].R.Marshal())
	c.Assert(err, qt.IsNil)
	c.Assert(p.Equal(cms[0].R), qt.IsTrue)

	_, err = ParsePoint(bn254.CurveType, []byte{0x01, 0x02})
	c.Assert(err, qt.ErrorIs, ErrInvalidGroupElement)

	zero := curves.New(bn254.CurveType).New()
	zero.SetZero()
	_, err = ParsePoint(bn254.CurveType, zero.Marshal())
	c.Assert(err, qt.ErrorIs, ErrInvalidGroupElement)

	_, err = ParsePoint("nope", cms[0].R.Marshal())
	c.Assert(err, qt.ErrorIs, ErrMalformedInput)
}
