// -----------------------------------------------------------------------------
//  Non-interactive zero-knowledge proofs for DRE-ip ballots
//
//  Two Σ-protocols, both rendered non-interactive with the Fiat–Shamir
//  transform (hashing all public transcript data to obtain the challenge):
//
//  1. Binary proof (per candidate): a Chaum–Pedersen style disjunctive
//     proof that the committed vote bit is 0 OR 1, without revealing which.
//     The prover simulates the false branch with a random response and
//     sub-challenge, computes the true branch honestly, and splits the
//     shared challenge between them so that c0 + c1 == H(transcript).
//
//     Statement for branch v:  R = ρ·g1  ∧  C − v·g2 = ρ·h
//
//  2. Sum proof (per question): a Schnorr proof of knowledge of s = Σρ_i
//     for the homomorphically combined statement
//
//     ΣR_i = s·g1  ∧  ΣC_i − k·g2 = s·h
//
//     which holds only when Σv_i = k, the question's required selection
//     count. This is what prevents a ballot from voting for zero
//     candidates or more than k.
//
//  The challenge hash binds the election, question, ballot id and candidate
//  index, so a proof cannot be replayed on another ballot. The byte layout
//  of the hash input is fixed once (see challengeScalar) because prover and
//  every independent verifier must agree on it bit for bit.
// -----------------------------------------------------------------------------

package dreip

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/verivote/dreip-node/crypto/ecc"
)

const (
	binaryProofDST = "DREIP-v1-BINARY-PROOF"
	sumProofDST    = "DREIP-v1-SUM-PROOF"
)

// Context identifies the ballot a proof belongs to. It is hashed into every
// challenge so proofs are not transferable between ballots or questions.
type Context struct {
	ElectionID []byte
	QuestionID []byte
	BallotID   uint64
}

// bytes returns the canonical serialization of the context: each field
// length-prefixed, ballot id as fixed-width big-endian, candidate index
// appended last (or -1 for question-level proofs).
func (c *Context) bytes(candidate int) []byte {
	buf := make([]byte, 0, len(c.ElectionID)+len(c.QuestionID)+24)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.ElectionID)))
	buf = append(buf, c.ElectionID...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.QuestionID)))
	buf = append(buf, c.QuestionID...)
	buf = binary.BigEndian.AppendUint64(buf, c.BallotID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(candidate)))
	return buf
}

// BinaryProof is the transcript of the disjunctive proof for one candidate:
// the sub-challenges and responses of the v=0 and v=1 branches. The four
// commitment points are not stored; verification recomputes them.
type BinaryProof struct {
	C0 *big.Int
	C1 *big.Int
	R0 *big.Int
	R1 *big.Int
}

// SumProof is the transcript of the Schnorr sum proof for one question.
type SumProof struct {
	C *big.Int
	R *big.Int
}

// ProveBinary builds the disjunctive proof that the commitment pair at
// candidate index holds a vote bit in {0,1}.
func ProveBinary(params *Params, ctx *Context, index int, cm Commitment, secret Secret) (*BinaryProof, error) {
	if secret.Vote != 0 && secret.Vote != 1 {
		return nil, fmt.Errorf("%w: vote bit %d", ErrMalformedInput, secret.Vote)
	}
	order := params.H.Order()

	w, err := RandScalar(order)
	if err != nil {
		return nil, err
	}
	// Simulated sub-challenge and response for the false branch.
	cFalse, err := RandScalar(order)
	if err != nil {
		return nil, err
	}
	rFalse, err := RandScalar(order)
	if err != nil {
		return nil, err
	}

	// Honest commitments for the true branch: t1 = w·g1, t2 = w·h.
	t1True := params.H.New()
	t1True.ScalarBaseMult(w)
	t2True := params.H.New()
	t2True.ScalarMult(params.H, w)

	// Simulated commitments for the false branch, built backwards from the
	// verification equations: t1 = r·g1 + c·R, t2 = r·h + c·(C − f·g2).
	falseBit := 1 - secret.Vote
	t1False := params.H.New()
	t1False.ScalarBaseMult(rFalse)
	tmp := params.H.New()
	tmp.ScalarMult(cm.R, cFalse)
	t1False.Add(t1False, tmp)

	t2False := params.H.New()
	t2False.ScalarMult(params.H, rFalse)
	tmp.ScalarMult(branchTarget(params, cm.C, falseBit), cFalse)
	t2False.Add(t2False, tmp)

	// Transcript order is fixed: branch 0 commitments, then branch 1.
	var t10, t20, t11, t21 ecc.Point
	if secret.Vote == 0 {
		t10, t20, t11, t21 = t1True, t2True, t1False, t2False
	} else {
		t10, t20, t11, t21 = t1False, t2False, t1True, t2True
	}
	challenge := challengeScalar(order, binaryProofDST, ctx.bytes(index),
		params.G2, params.H, cm.R, cm.C, t10, t20, t11, t21)

	// Split the challenge and close the honest branch:
	// cTrue = challenge − cFalse, rTrue = w − cTrue·ρ (mod order).
	cTrue := new(big.Int).Sub(challenge, cFalse)
	cTrue.Mod(cTrue, order)
	rTrue := new(big.Int).Mul(cTrue, secret.Rho)
	rTrue.Sub(w, rTrue)
	rTrue.Mod(rTrue, order)

	if secret.Vote == 0 {
		return &BinaryProof{C0: cTrue, C1: cFalse, R0: rTrue, R1: rFalse}, nil
	}
	return &BinaryProof{C0: cFalse, C1: cTrue, R0: rFalse, R1: rTrue}, nil
}

// VerifyBinary checks the disjunctive proof for one candidate. It is a pure
// function of public data and returns ErrProofInvalid on failure.
func VerifyBinary(params *Params, ctx *Context, index int, cm Commitment, proof *BinaryProof) error {
	if proof == nil || proof.C0 == nil || proof.C1 == nil || proof.R0 == nil || proof.R1 == nil {
		return fmt.Errorf("%w: incomplete binary proof", ErrMalformedInput)
	}
	order := params.H.Order()

	// Recompute both branches' commitments from the transcript.
	t10 := recomputeCommitment(params, cm.R, proof.R0, proof.C0, nil)
	t20 := recomputeCommitment(params, branchTarget(params, cm.C, 0), proof.R0, proof.C0, params.H)
	t11 := recomputeCommitment(params, cm.R, proof.R1, proof.C1, nil)
	t21 := recomputeCommitment(params, branchTarget(params, cm.C, 1), proof.R1, proof.C1, params.H)

	challenge := challengeScalar(order, binaryProofDST, ctx.bytes(index),
		params.G2, params.H, cm.R, cm.C, t10, t20, t11, t21)

	sum := new(big.Int).Add(proof.C0, proof.C1)
	sum.Mod(sum, order)
	if sum.Cmp(challenge) != 0 {
		return fmt.Errorf("%w: challenge split does not match", ErrProofInvalid)
	}
	return nil
}

// branchTarget returns C − v·g2, the point whose discrete log wrt h the
// branch claims to know.
func branchTarget(params *Params, c ecc.Point, vote int) ecc.Point {
	if vote == 0 {
		out := params.H.New()
		out.Set(c)
		return out
	}
	negG2 := params.H.New()
	negG2.Neg(params.G2)
	out := params.H.New()
	out.Add(c, negG2)
	return out
}

// recomputeCommitment rebuilds a Σ-protocol commitment from a response and
// sub-challenge: r·base + c·target, where base is g1 (secondBase nil) or h.
func recomputeCommitment(params *Params, target ecc.Point, r, c *big.Int, secondBase ecc.Point) ecc.Point {
	t := params.H.New()
	if secondBase == nil {
		t.ScalarBaseMult(r)
	} else {
		t.ScalarMult(secondBase, r)
	}
	tmp := params.H.New()
	tmp.ScalarMult(target, c)
	t.Add(t, tmp)
	return t
}

// ProveSum builds the Schnorr proof that the ballot's commitments select
// exactly required candidates in total.
func ProveSum(params *Params, ctx *Context, commitments []Commitment, secrets []Secret, required int) (*SumProof, error) {
	if len(commitments) != len(secrets) {
		return nil, fmt.Errorf("%w: %d commitments, %d secrets", ErrMalformedInput, len(commitments), len(secrets))
	}
	order := params.H.Order()

	s := new(big.Int)
	for _, secret := range secrets {
		s.Add(s, secret.Rho)
	}
	s.Mod(s, order)

	sumR, target := sumStatement(params, commitments, required)

	w, err := RandScalar(order)
	if err != nil {
		return nil, err
	}
	t1 := params.H.New()
	t1.ScalarBaseMult(w)
	t2 := params.H.New()
	t2.ScalarMult(params.H, w)

	c := challengeScalar(order, sumProofDST, ctx.bytes(-1),
		params.G2, params.H, sumR, target, t1, t2)
	r := new(big.Int).Mul(c, s)
	r.Sub(w, r)
	r.Mod(r, order)

	return &SumProof{C: c, R: r}, nil
}

// VerifySum checks the sum proof against the commitment vector and the
// question's required selection count.
func VerifySum(params *Params, ctx *Context, commitments []Commitment, required int, proof *SumProof) error {
	if proof == nil || proof.C == nil || proof.R == nil {
		return fmt.Errorf("%w: incomplete sum proof", ErrMalformedInput)
	}
	if len(commitments) == 0 {
		return fmt.Errorf("%w: empty commitment vector", ErrMalformedInput)
	}
	order := params.H.Order()

	sumR, target := sumStatement(params, commitments, required)

	t1 := recomputeCommitment(params, sumR, proof.R, proof.C, nil)
	t2 := recomputeCommitment(params, target, proof.R, proof.C, params.H)

	c := challengeScalar(order, sumProofDST, ctx.bytes(-1),
		params.G2, params.H, sumR, target, t1, t2)
	if c.Cmp(proof.C) != 0 {
		return fmt.Errorf("%w: sum proof challenge does not match", ErrProofInvalid)
	}
	return nil
}

// sumStatement folds the commitment vector into the sum proof statement:
// sumR = ΣR_i and target = ΣC_i − required·g2.
func sumStatement(params *Params, commitments []Commitment, required int) (sumR, target ecc.Point) {
	sumR = params.H.New()
	sumR.SetZero()
	sumC := params.H.New()
	sumC.SetZero()
	for _, cm := range commitments {
		sumR.Add(sumR, cm.R)
		sumC.Add(sumC, cm.C)
	}
	kG2 := params.H.New()
	kG2.ScalarMult(params.G2, big.NewInt(int64(required)))
	negKG2 := params.H.New()
	negKG2.Neg(kG2)
	target = params.H.New()
	target.Add(sumC, negKG2)
	return sumR, target
}

// VerifyBallot runs the full proof verification for one ballot: every
// candidate's binary proof plus the question's sum proof. Structural
// problems are reported as ErrMalformedInput before any arithmetic; proof
// failures as ErrProofInvalid with the offending candidate index.
func VerifyBallot(params *Params, ctx *Context, commitments []Commitment, proofs []*BinaryProof, sum *SumProof, required int) error {
	if len(commitments) == 0 {
		return fmt.Errorf("%w: empty commitment vector", ErrMalformedInput)
	}
	if len(proofs) != len(commitments) {
		return fmt.Errorf("%w: %d commitments, %d proofs", ErrMalformedInput, len(commitments), len(proofs))
	}
	for i, cm := range commitments {
		if cm.R == nil || cm.C == nil {
			return fmt.Errorf("%w: missing commitment at index %d", ErrMalformedInput, i)
		}
	}
	for i := range commitments {
		if err := VerifyBinary(params, ctx, i, commitments[i], proofs[i]); err != nil {
			return fmt.Errorf("candidate %d: %w", i, err)
		}
	}
	return VerifySum(params, ctx, commitments, required, sum)
}

// challengeScalar is the Fiat–Shamir transform: SHA-256 over the domain
// separation tag, the proof context and the marshalled points, every field
// length-prefixed and in fixed argument order, reduced modulo the group
// order.
func challengeScalar(order *big.Int, dst string, ctx []byte, points ...ecc.Point) *big.Int {
	h := sha256.New()
	writeField := func(data []byte) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
		h.Write(lenBuf[:])
		h.Write(data)
	}
	writeField([]byte(dst))
	writeField(ctx)
	for _, p := range points {
		writeField(p.Marshal())
	}
	digest := h.Sum(nil)
	return new(big.Int).Mod(new(big.Int).SetBytes(digest), order)
}
