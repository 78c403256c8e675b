package types

import (
	"time"

	"github.com/google/uuid"
)

// ExportVersion identifies the export document layout. Bump it on any
// breaking change to the structure below.
const ExportVersion = 1

// ChoiceResult is the announced tally for one choice of a closed election:
// the vote count T, the randomness sum S and the public aggregates it must
// reproduce.
type ChoiceResult struct {
	Index      int      `json:"index"`
	Text       string   `json:"text"`
	Votes      *BigInt  `json:"votes"`
	Randomness *BigInt  `json:"randomness"`
	AggregateR HexBytes `json:"aggregateR"`
	AggregateC HexBytes `json:"aggregateC"`
}

// QuestionResult is one question of an export: the question definition plus
// its per-choice results.
type QuestionResult struct {
	Question Question       `json:"question"`
	Results  []ChoiceResult `json:"results"`
}

// ElectionExport is the self-contained public record of a closed election.
// It carries everything an independent verifier needs: parameters, announced
// results, and every ballot with its proofs. The per-question generators are
// deliberately absent; verifiers derive them from the question IDs.
type ElectionExport struct {
	Version          int       `json:"version"`
	GeneratedAt      time.Time `json:"generatedAt"`
	ElectionID       uuid.UUID `json:"electionId"`
	Title            string    `json:"title"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	CurveType        string    `json:"curveType"`
	PublicKey        HexBytes  `json:"publicKey"`
	AuthorityAddress HexBytes  `json:"authorityAddress"`

	Questions []QuestionResult `json:"questions"`
	Ballots   []Ballot         `json:"ballots"`

	// Signature is the authority's signature over the canonical encoding
	// of the export with this field empty.
	Signature HexBytes `json:"signature,omitempty"`
}
