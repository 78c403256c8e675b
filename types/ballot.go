package types

import (
	"time"

	"github.com/google/uuid"
)

// BallotStatus is the lifecycle state of a ballot. The transitions are
// one-shot: a ballot leaves the cast state exactly once, into audited or
// confirmed, never back.
type BallotStatus string

const (
	// BallotStatusCast is the initial state: committed, not yet decided.
	BallotStatusCast BallotStatus = "cast"
	// BallotStatusAudited means the voter challenged the ballot; its
	// secrets are public and it is excluded from the tally.
	BallotStatusAudited BallotStatus = "audited"
	// BallotStatusConfirmed means the ballot counts; its secrets are
	// destroyed.
	BallotStatusConfirmed BallotStatus = "confirmed"
)

// CandidateCommitment is the serialized per-candidate commitment pair
// (R, C) as it appears on the public record and in exports.
type CandidateCommitment struct {
	R HexBytes `json:"r"`
	C HexBytes `json:"c"`
}

// ProofTranscript is the serialized disjunctive proof for one candidate.
type ProofTranscript struct {
	C0 *BigInt `json:"c0"`
	C1 *BigInt `json:"c1"`
	R0 *BigInt `json:"r0"`
	R1 *BigInt `json:"r1"`
}

// SumProofTranscript is the serialized sum proof for one ballot.
type SumProofTranscript struct {
	C *BigInt `json:"c"`
	R *BigInt `json:"r"`
}

// RevealedSecret is one candidate's secret material, published only when the
// ballot is audited.
type RevealedSecret struct {
	Rho  *BigInt `json:"rho"`
	Vote int     `json:"vote"`
}

// Ballot is the public record of one cast ballot. The per-candidate secrets
// are NOT part of it; they are stored in a separate row that is destroyed on
// confirmation. Revealed is populated only for audited ballots. VoterID is
// cleared when the ballot reaches a terminal state so the published record
// does not link ballots to roster entries.
type Ballot struct {
	BallotID   uint64    `json:"ballotId"`
	ElectionID uuid.UUID `json:"electionId"`
	QuestionID uuid.UUID `json:"questionId"`
	VoterID    uuid.UUID `json:"voterId,omitzero"`

	Commitments []CandidateCommitment `json:"commitments"`
	Proofs      []ProofTranscript     `json:"proofs"`
	SumProof    SumProofTranscript    `json:"sumProof"`

	Status BallotStatus `json:"status"`
	CastAt time.Time    `json:"castAt"`

	RandomReceipt   HexBytes `json:"randomReceipt"`
	VoteReceipt     HexBytes `json:"voteReceipt"`
	RandomSignature HexBytes `json:"randomSignature"`
	VoteSignature   HexBytes `json:"voteSignature"`

	Revealed []RevealedSecret `json:"revealed,omitempty"`
}
