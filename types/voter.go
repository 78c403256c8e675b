package types

import "github.com/google/uuid"

// Voter is one roster entry of an election. CurrentQuestion is the index of
// the question the voter is on: it stays put when a ballot is audited (the
// voter answers the same question again with fresh randomness) and advances
// on confirmation. FinishedVoting is set when the last question is
// confirmed.
//
// CredentialHash must never reach API responses, hence the json skip tag.
// The cbor tag keeps the field in the stored row: the cbor codec falls back
// to json tags, and without it the skip tag would drop the hash on encode.
type Voter struct {
	ID              uuid.UUID `json:"id"`
	ElectionID      uuid.UUID `json:"electionId"`
	Username        string    `json:"username"`
	CredentialHash  HexBytes  `json:"-" cbor:"credentialHash"`
	CurrentQuestion int       `json:"currentQuestion"`
	FinishedVoting  bool      `json:"finishedVoting"`
}
