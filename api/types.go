package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/verivote/dreip-node/types"
)

// ElectionRequest is the body of the election creation endpoint. Question and
// choice IDs are assigned by the server.
type ElectionRequest struct {
	Title     string            `json:"title"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Contact   string            `json:"contact,omitempty"`
	Questions []QuestionRequest `json:"questions"`
}

// QuestionRequest defines one question of a new election. Choices are given
// in ballot order; MaxSelections is the number of choices a voter must pick.
type QuestionRequest struct {
	Query         string   `json:"query"`
	Choices       []string `json:"choices"`
	MaxSelections int      `json:"maxSelections"`
}

// ElectionResponse wraps an election record with its clock-derived status.
type ElectionResponse struct {
	*types.Election
	Status string `json:"status"`
}

// ElectionListResponse is the response of the election listing endpoint.
type ElectionListResponse struct {
	Elections []*ElectionResponse `json:"elections"`
}

// RosterResponse reports how many voters a roster upload registered.
type RosterResponse struct {
	Registered int `json:"registered"`
}

// VoterAuthRequest carries a voter's login credentials.
type VoterAuthRequest struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

// VoterResponse is the public view of a voter record.
type VoterResponse struct {
	VoterID         uuid.UUID `json:"voterId"`
	Username        string    `json:"username"`
	CurrentQuestion int       `json:"currentQuestion"`
	FinishedVoting  bool      `json:"finishedVoting"`
}

// CastRequest is the body of the ballot casting endpoint. Choices holds the
// selected choice indexes for the voter's current question.
type CastRequest struct {
	VoterID    uuid.UUID `json:"voterId"`
	QuestionID uuid.UUID `json:"questionId"`
	Choices    []int     `json:"choices"`
}

// DecisionRequest is the body of the audit and confirm endpoints, addressing
// the voter's single pending ballot for a question.
type DecisionRequest struct {
	VoterID    uuid.UUID `json:"voterId"`
	QuestionID uuid.UUID `json:"questionId"`
}

// BallotResponse wraps a ballot record with short receipt digests for
// display on a confirmation screen.
type BallotResponse struct {
	*types.Ballot
	RandomReceiptShort string `json:"randomReceiptShort,omitempty"`
	VoteReceiptShort   string `json:"voteReceiptShort,omitempty"`
}

// CloseRequest is the body of the election close endpoint. Force closes the
// election before its scheduled end time.
type CloseRequest struct {
	Force bool `json:"force"`
}
