package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/verivote/dreip-node/storage"
)

// castBallot commits to the voter's selections and returns the ballot record
// with its receipts. The ballot stays pending until audited or confirmed.
// POST /elections/{electionId}/ballots
func (a *API) castBallot(w http.ResponseWriter, r *http.Request) {
	electionID, err := urlParamUUID(r, ElectionURLParam)
	if err != nil {
		ErrMalformedElectionID.Withf("could not parse election ID: %v", err).Write(w)
		return
	}
	req := &CastRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	ballot, err := a.authority.CastBallot(electionID, req.VoterID, req.QuestionID, req.Choices)
	if err != nil {
		domainError(err).Write(w)
		return
	}
	httpWriteJSON(w, ballotResponse(ballot))
}

// ballot returns the public record of a single ballot
// GET /elections/{electionId}/ballots/{ballotId}
func (a *API) ballot(w http.ResponseWriter, r *http.Request) {
	electionID, err := urlParamUUID(r, ElectionURLParam)
	if err != nil {
		ErrMalformedElectionID.Withf("could not parse election ID: %v", err).Write(w)
		return
	}
	ballotID, err := strconv.ParseUint(chi.URLParam(r, BallotURLParam), 10, 64)
	if err != nil {
		ErrMalformedParam.Withf("could not parse ballot ID: %v", err).Write(w)
		return
	}
	ballot, err := a.authority.Storage().Ballot(electionID, ballotID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrResourceNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, ballotResponse(ballot))
}

// auditBallot reveals the voter's pending ballot secrets and spoils it
// POST /elections/{electionId}/ballots/audit
func (a *API) auditBallot(w http.ResponseWriter, r *http.Request) {
	electionID, err := urlParamUUID(r, ElectionURLParam)
	if err != nil {
		ErrMalformedElectionID.Withf("could not parse election ID: %v", err).Write(w)
		return
	}
	req := &DecisionRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	ballot, err := a.authority.AuditBallot(electionID, req.VoterID, req.QuestionID)
	if err != nil {
		domainError(err).Write(w)
		return
	}
	httpWriteJSON(w, ballotResponse(ballot))
}

// confirmBallot folds the voter's pending ballot into the running tally
// POST /elections/{electionId}/ballots/confirm
func (a *API) confirmBallot(w http.ResponseWriter, r *http.Request) {
	electionID, err := urlParamUUID(r, ElectionURLParam)
	if err != nil {
		ErrMalformedElectionID.Withf("could not parse election ID: %v", err).Write(w)
		return
	}
	req := &DecisionRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	ballot, err := a.authority.ConfirmBallot(electionID, req.VoterID, req.QuestionID)
	if err != nil {
		domainError(err).Write(w)
		return
	}
	httpWriteJSON(w, ballotResponse(ballot))
}
