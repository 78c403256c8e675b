package authority

import "errors"

var (
	// ErrStateConflict is returned when an operation conflicts with the
	// current lifecycle state: a repeated audit/confirm on a decided
	// ballot, a decision without a pending ballot, a question answered
	// out of order or a close on an already closed election. Conflicts
	// are never retried; the first transition wins.
	ErrStateConflict = errors.New("operation conflicts with current state")

	// ErrBallotPending is returned when a voter tries to cast while an
	// undecided ballot of theirs exists for the same question.
	ErrBallotPending = errors.New("voter has an undecided ballot for this question")

	// ErrElectionNotOpen is returned when the election is outside its
	// voting window or already closed.
	ErrElectionNotOpen = errors.New("election is not open for voting")

	// ErrVoterFinished is returned when a voter who confirmed every
	// question tries to vote again.
	ErrVoterFinished = errors.New("voter has finished voting")

	// ErrUnauthorized is returned when a voter's credential does not
	// match the roster entry.
	ErrUnauthorized = errors.New("invalid credentials")
)
