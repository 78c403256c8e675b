package dreip

import (
	"fmt"
	"math/big"

	"github.com/verivote/dreip-node/crypto/ecc"
)

// Tally is the announced result for a single candidate: the vote count and
// the sum of the confirmed ballots' randomness. Publishing S is what makes
// the count verifiable without decrypting anything.
type Tally struct {
	Votes      *big.Int
	Randomness *big.Int
}

// VerifyTally checks an announced candidate tally against the homomorphic
// aggregates of the confirmed ballots' commitments:
//
//	S·g1 == ΣR_i
//	T·g2 + S·h == ΣC_i
//
// Both must hold; either failing means the announced count or randomness
// sum does not match the confirmed ballots, and ErrTallyMismatch is
// returned.
func VerifyTally(params *Params, tally Tally, aggR, aggC ecc.Point) error {
	if tally.Votes == nil || tally.Randomness == nil {
		return fmt.Errorf("%w: incomplete tally", ErrMalformedInput)
	}
	if aggR == nil || aggC == nil {
		return fmt.Errorf("%w: missing aggregates", ErrMalformedInput)
	}
	if tally.Votes.Sign() < 0 {
		return fmt.Errorf("%w: negative vote count", ErrMalformedInput)
	}

	sG1 := params.H.New()
	sG1.ScalarBaseMult(tally.Randomness)
	if !sG1.Equal(aggR) {
		return fmt.Errorf("%w: randomness sum does not reproduce aggregate R", ErrTallyMismatch)
	}

	expectedC := params.H.New()
	expectedC.ScalarMult(params.G2, tally.Votes)
	sH := params.H.New()
	sH.ScalarMult(params.H, tally.Randomness)
	expectedC.Add(expectedC, sH)
	if !expectedC.Equal(aggC) {
		return fmt.Errorf("%w: vote count does not reproduce aggregate C", ErrTallyMismatch)
	}
	return nil
}

// AggregateCommitments folds a set of commitment pairs into running
// aggregates, returning ΣR and ΣC. Used both when confirming ballots and
// when a verifier recomputes the aggregates from the export.
func AggregateCommitments(params *Params, commitments []Commitment) (aggR, aggC ecc.Point) {
	aggR = params.H.New()
	aggR.SetZero()
	aggC = params.H.New()
	aggC.SetZero()
	for _, cm := range commitments {
		aggR.Add(aggR, cm.R)
		aggC.Add(aggC, cm.C)
	}
	return aggR, aggC
}
