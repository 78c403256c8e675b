package api

import (
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/verivote/dreip-node/census"
	"github.com/verivote/dreip-node/log"
)

// uploadRoster parses a delimited voter roster and registers its voters.
// The request body is the raw roster file; the delimiter query parameter
// defaults to a comma.
// POST /elections/{electionId}/voters
func (a *API) uploadRoster(w http.ResponseWriter, r *http.Request) {
	electionID, err := urlParamUUID(r, ElectionURLParam)
	if err != nil {
		ErrMalformedElectionID.Withf("could not parse election ID: %v", err).Write(w)
		return
	}

	delimiter := ','
	if d := r.URL.Query().Get(RosterDelimiterQueryParam); d != "" {
		if utf8.RuneCountInString(d) != 1 {
			ErrMalformedParam.Withf("delimiter must be a single character, got %q", d).Write(w)
			return
		}
		delimiter, _ = utf8.DecodeRuneInString(d)
	}

	records, err := census.ParseRoster(r.Body, delimiter)
	if err != nil {
		ErrInvalidRoster.WithErr(err).Write(w)
		return
	}
	voters, err := a.authority.RegisterVoters(electionID, records)
	if err != nil {
		domainError(err).Write(w)
		return
	}
	log.Infow("roster registered", "election", electionID.String(), "voters", len(voters))
	httpWriteJSON(w, &RosterResponse{Registered: len(voters)})
}

// authenticateVoter checks a voter's credentials and returns their voting
// progress.
// POST /elections/{electionId}/auth
func (a *API) authenticateVoter(w http.ResponseWriter, r *http.Request) {
	electionID, err := urlParamUUID(r, ElectionURLParam)
	if err != nil {
		ErrMalformedElectionID.Withf("could not parse election ID: %v", err).Write(w)
		return
	}
	req := &VoterAuthRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	voter, err := a.authority.Authenticate(electionID, req.Username, req.Credential)
	if err != nil {
		domainError(err).Write(w)
		return
	}
	httpWriteJSON(w, &VoterResponse{
		VoterID:         voter.ID,
		Username:        voter.Username,
		CurrentQuestion: voter.CurrentQuestion,
		FinishedVoting:  voter.FinishedVoting,
	})
}
