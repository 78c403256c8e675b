package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/verivote/dreip-node/crypto/dreip"
	"github.com/verivote/dreip-node/log"
	"github.com/verivote/dreip-node/storage"
	"github.com/verivote/dreip-node/types"
)

// newElection creates a new election from its definition
// POST /elections
func (a *API) newElection(w http.ResponseWriter, r *http.Request) {
	req := &ElectionRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}

	election := &types.Election{
		Title:     req.Title,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Contact:   req.Contact,
		Questions: make([]types.Question, len(req.Questions)),
	}
	for i, q := range req.Questions {
		choices := make([]types.Choice, len(q.Choices))
		for j, text := range q.Choices {
			choices[j] = types.Choice{Index: j, Text: text}
		}
		election.Questions[i] = types.Question{
			Query:         q.Query,
			Choices:       choices,
			MaxSelections: q.MaxSelections,
		}
	}

	created, err := a.authority.CreateElection(election)
	if err != nil {
		if errors.Is(err, dreip.ErrMalformedInput) {
			ErrMalformedElection.WithErr(err).Write(w)
			return
		}
		domainError(err).Write(w)
		return
	}
	httpWriteJSON(w, &ElectionResponse{
		Election: created,
		Status:   string(created.Status(time.Now())),
	})
}

// listElections returns the stored elections with their current status
// GET /elections
func (a *API) listElections(w http.ResponseWriter, r *http.Request) {
	ids, err := a.authority.Storage().ListElections()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	now := time.Now()
	elections := make([]*ElectionResponse, 0, len(ids))
	for _, id := range ids {
		election, err := a.authority.Storage().Election(id)
		if err != nil {
			log.Warnw("could not load election", "election", id.String(), "error", err)
			continue
		}
		elections = append(elections, &ElectionResponse{
			Election: election,
			Status:   string(election.Status(now)),
		})
	}
	httpWriteJSON(w, &ElectionListResponse{Elections: elections})
}

// election returns a single election record
// GET /elections/{electionId}
func (a *API) election(w http.ResponseWriter, r *http.Request) {
	electionID, err := urlParamUUID(r, ElectionURLParam)
	if err != nil {
		ErrMalformedElectionID.Withf("could not parse election ID: %v", err).Write(w)
		return
	}
	election, err := a.authority.Storage().Election(electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrElectionNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &ElectionResponse{
		Election: election,
		Status:   string(election.Status(time.Now())),
	})
}

// closeElection closes an election and reveals the per-choice tallies
// POST /elections/{electionId}/close
func (a *API) closeElection(w http.ResponseWriter, r *http.Request) {
	electionID, err := urlParamUUID(r, ElectionURLParam)
	if err != nil {
		ErrMalformedElectionID.Withf("could not parse election ID: %v", err).Write(w)
		return
	}
	req := &CloseRequest{}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
			return
		}
	}
	if err := a.authority.CloseElection(electionID, req.Force); err != nil {
		domainError(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// exportElection returns the signed, self-contained election export
// GET /elections/{electionId}/export
func (a *API) exportElection(w http.ResponseWriter, r *http.Request) {
	electionID, err := urlParamUUID(r, ElectionURLParam)
	if err != nil {
		ErrMalformedElectionID.Withf("could not parse election ID: %v", err).Write(w)
		return
	}
	export, err := a.authority.Export(electionID)
	if err != nil {
		domainError(err).Write(w)
		return
	}
	httpWriteJSON(w, export)
}
