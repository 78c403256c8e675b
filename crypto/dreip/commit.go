package dreip

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/verivote/dreip-node/crypto/ecc"
)

// Commitment is the public per-candidate commitment pair of a ballot.
type Commitment struct {
	R ecc.Point // ρ·g1
	C ecc.Point // v·g2 + ρ·h
}

// Secret holds the per-candidate secret material generated at cast time. It
// exists only between casting and the audit/confirm decision: on confirm it
// must be destroyed, on audit it becomes part of the public record.
type Secret struct {
	Rho  *big.Int // randomness ρ
	Vote int      // vote bit v ∈ {0,1}
}

// Commit builds the commitment vector for a ballot. selections has one entry
// per candidate in question order and must contain exactly required true
// values; violating that is a caller bug surfaced as ErrInvalidSelection
// (the sum proof is what protects against a dishonest client). Commit has no
// side effects: persisting or destroying the returned secrets is the
// caller's responsibility under the ballot lifecycle rules.
func Commit(params *Params, selections []bool, required int) ([]Commitment, []Secret, error) {
	if required < 1 {
		return nil, nil, fmt.Errorf("%w: required count %d", ErrInvalidSelection, required)
	}
	count := 0
	for _, sel := range selections {
		if sel {
			count++
		}
	}
	if count != required {
		return nil, nil, fmt.Errorf("%w: %d selected, %d required", ErrInvalidSelection, count, required)
	}

	order := params.H.Order()
	commitments := make([]Commitment, len(selections))
	secrets := make([]Secret, len(selections))
	for i, sel := range selections {
		rho, err := RandScalar(order)
		if err != nil {
			return nil, nil, err
		}
		vote := 0
		if sel {
			vote = 1
		}

		R := params.H.New()
		R.ScalarBaseMult(rho)

		C := params.H.New()
		C.ScalarMult(params.H, rho) // ρ·h
		if vote == 1 {
			C.Add(C, params.G2) // + g2
		}

		commitments[i] = Commitment{R: R, C: C}
		secrets[i] = Secret{Rho: rho, Vote: vote}
	}
	return commitments, secrets, nil
}

// Receipts computes the two public receipt hashes of a ballot: the random
// receipt over the R vector and the vote receipt over the C vector. They are
// computed at cast time, before the audit/confirm decision is known, which
// is what makes the receipt a binding commitment rather than a lookup.
func Receipts(commitments []Commitment) (randomReceipt, voteReceipt []byte) {
	hr := sha256.New()
	hc := sha256.New()
	for _, cm := range commitments {
		hr.Write(cm.R.Marshal())
		hc.Write(cm.C.Marshal())
	}
	return hr.Sum(nil), hc.Sum(nil)
}

// VerifyReveal checks that a revealed secret opens its commitment pair:
// R == ρ·g1 and C == v·g2 + ρ·h. Used on every candidate of every audited
// ballot.
func VerifyReveal(params *Params, cm Commitment, secret Secret) error {
	if secret.Rho == nil || secret.Rho.Sign() == 0 {
		return fmt.Errorf("%w: empty randomness", ErrMalformedInput)
	}
	if secret.Vote != 0 && secret.Vote != 1 {
		return fmt.Errorf("%w: vote bit %d", ErrMalformedInput, secret.Vote)
	}

	expectedR := params.H.New()
	expectedR.ScalarBaseMult(secret.Rho)
	if !expectedR.Equal(cm.R) {
		return fmt.Errorf("%w: revealed randomness does not open R", ErrProofInvalid)
	}

	expectedC := params.H.New()
	expectedC.ScalarMult(params.H, secret.Rho)
	if secret.Vote == 1 {
		expectedC.Add(expectedC, params.G2)
	}
	if !expectedC.Equal(cm.C) {
		return fmt.Errorf("%w: revealed vote does not open C", ErrProofInvalid)
	}
	return nil
}
