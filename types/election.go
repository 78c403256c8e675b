package types

import (
	"time"

	"github.com/google/uuid"
)

// ElectionStatus is the lifecycle state of an election, derived from the
// clock and the closed flag.
type ElectionStatus string

const (
	// ElectionStatusPending means the election has not started yet.
	ElectionStatusPending ElectionStatus = "PENDING"
	// ElectionStatusOpen means the election is accepting ballots.
	ElectionStatusOpen ElectionStatus = "OPEN"
	// ElectionStatusClosed means the election is over and the tally is
	// public.
	ElectionStatusClosed ElectionStatus = "CLOSED"
)

// Election is the top-level election record. The private tally state and the
// authority's keys are not part of it; they live in their own storage rows.
type Election struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	Contact   string     `json:"contact,omitempty"`
	CurveType string     `json:"curveType"`
	PublicKey HexBytes   `json:"publicKey"`
	Closed    bool       `json:"closed"`
	Questions []Question `json:"questions"`
}

// Status derives the election lifecycle state at the given instant. The
// closed flag wins over the clock: an election force-closed early is CLOSED,
// and one past its end time but not yet closed by the authority stays OPEN
// (no more ballots are accepted, but the tally is not public yet).
func (e *Election) Status(now time.Time) ElectionStatus {
	if e.Closed {
		return ElectionStatusClosed
	}
	if now.Before(e.StartTime) {
		return ElectionStatusPending
	}
	return ElectionStatusOpen
}

// AcceptsBallots reports whether ballots may be cast at the given instant.
func (e *Election) AcceptsBallots(now time.Time) bool {
	return !e.Closed && !now.Before(e.StartTime) && now.Before(e.EndTime)
}

// Question is one ballot question: a query with an ordered list of choices,
// of which exactly MaxSelections must be selected. The second generator g2
// is never stored; it is always derived from the question ID.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ElectionID    uuid.UUID `json:"electionId"`
	Query         string    `json:"query"`
	Choices       []Choice  `json:"choices"`
	MaxSelections int       `json:"maxSelections"`
}

// Choice is one selectable option of a question. Index is the stable
// position inside the question's choice array and is what commitment vectors
// are ordered by.
type Choice struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}
