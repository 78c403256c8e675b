// Package dreip implements the cryptographic core of the DRE-ip voting
// scheme: per-candidate commitments, the non-interactive zero-knowledge
// proofs attached to each ballot, and the public tally equations.
//
// The scheme works over a prime-order group with two generators: the curve's
// fixed base point g1, and a per-question generator g2 derived by hashing the
// question identifier to the curve, so no party knows the discrete log
// relation between them and any verifier can recompute g2 on its own. The
// election public key h = sk·g1 completes the parameters.
//
// Per candidate i of a ballot, the commitment pair is
//
//	R_i = ρ_i·g1
//	C_i = v_i·g2 + ρ_i·h
//
// with v_i ∈ {0,1} the vote bit and ρ_i fresh randomness. Confirmed ballots
// are aggregated by plain group addition; at election close the authority
// reveals T = Σv and S = Σρ per candidate and anyone can check
//
//	S·g1 == ΣR_i  and  T·g2 + S·h == ΣC_i
//
// without decrypting any individual ballot.
package dreip

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/verivote/dreip-node/crypto/ecc"
	"github.com/verivote/dreip-node/crypto/ecc/curves"
)

// questionGeneratorDST is the domain separation tag for deriving the
// per-question generator g2. Changing it invalidates every published ballot.
const questionGeneratorDST = "DREIP-v1-QUESTION-GENERATOR"

// Params carries the public group parameters of one question: the curve, the
// question generator g2 and the election public key h. The base generator g1
// is implicit in the curve.
type Params struct {
	CurveType string
	G2        ecc.Point
	H         ecc.Point
}

// NewParams derives the parameters for a question from its identifier and
// the election public key. g2 is never trusted from storage or an export; it
// is always recomputed here.
func NewParams(curveType string, questionID []byte, publicKey ecc.Point) (*Params, error) {
	if !curves.IsValid(curveType) {
		return nil, fmt.Errorf("%w: unknown curve %q", ErrMalformedInput, curveType)
	}
	g2, err := QuestionGenerator(curveType, questionID)
	if err != nil {
		return nil, err
	}
	if publicKey == nil || publicKey.IsZero() {
		return nil, fmt.Errorf("%w: public key", ErrInvalidGroupElement)
	}
	return &Params{
		CurveType: curveType,
		G2:        g2,
		H:         publicKey,
	}, nil
}

// QuestionGenerator deterministically derives the second generator for a
// question by hashing its identifier to the curve.
func QuestionGenerator(curveType string, questionID []byte) (ecc.Point, error) {
	g2 := curves.New(curveType).New()
	if err := g2.SetHashToPoint(questionID, []byte(questionGeneratorDST)); err != nil {
		return nil, fmt.Errorf("derive question generator: %w", err)
	}
	return g2, nil
}

// GenerateKey generates the election key pair h = sk·g1 on the given curve.
// The private scalar is only ever needed to prove authority over the
// election; the tally itself never decrypts anything.
func GenerateKey(curveType string) (publicKey ecc.Point, privateKey *big.Int, err error) {
	if !curves.IsValid(curveType) {
		return nil, nil, fmt.Errorf("%w: unknown curve %q", ErrMalformedInput, curveType)
	}
	curve := curves.New(curveType)
	d, err := RandScalar(curve.Order())
	if err != nil {
		return nil, nil, fmt.Errorf("generate private key scalar: %w", err)
	}
	publicKey = curve.New()
	publicKey.ScalarBaseMult(d)
	return publicKey, d, nil
}

// RandScalar returns a uniformly random scalar in [1, order-1].
func RandScalar(order *big.Int) (*big.Int, error) {
	for {
		k, err := rand.Int(rand.Reader, order)
		if err != nil {
			return nil, fmt.Errorf("sample random scalar: %w", err)
		}
		if k.Sign() != 0 {
			return k, nil
		}
	}
}

// ParsePoint decodes an untrusted serialized group element. It rejects
// anything that is not a valid non-identity subgroup element, so callers can
// use the result in further arithmetic without re-checking.
func ParsePoint(curveType string, buf []byte) (ecc.Point, error) {
	if !curves.IsValid(curveType) {
		return nil, fmt.Errorf("%w: unknown curve %q", ErrMalformedInput, curveType)
	}
	p := curves.New(curveType).New()
	if err := p.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGroupElement, err)
	}
	if p.IsZero() {
		return nil, fmt.Errorf("%w: identity element", ErrInvalidGroupElement)
	}
	return p, nil
}
