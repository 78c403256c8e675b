package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/verivote/dreip-node/authority"
	"github.com/verivote/dreip-node/crypto/dreip"
	"github.com/verivote/dreip-node/log"
	"github.com/verivote/dreip-node/storage"
	"github.com/verivote/dreip-node/types"
)

// shortReceiptLen is how many hex characters of a receipt digest are shown
// on confirmation screens. The full digest is always in the response too.
const shortReceiptLen = 10

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
		return
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
		return
	}
	if !DisabledLogging && log.Level() == log.LogLevelDebug {
		log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
	}
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// urlParamUUID extracts a UUID from the given URL parameter.
func urlParamUUID(r *http.Request, param string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, param))
}

// shortReceipt returns a truncated hex digest for display purposes.
func shortReceipt(receipt types.HexBytes) string {
	h := hex.EncodeToString(receipt)
	if len(h) > shortReceiptLen {
		return h[:shortReceiptLen] + "..."
	}
	return h
}

// ballotResponse wraps a ballot with its display receipts.
func ballotResponse(ballot *types.Ballot) *BallotResponse {
	return &BallotResponse{
		Ballot:             ballot,
		RandomReceiptShort: shortReceipt(ballot.RandomReceipt),
		VoteReceiptShort:   shortReceipt(ballot.VoteReceipt),
	}
}

// domainError maps the authority and dreip error taxonomy to the API error
// catalogue. Unrecognized errors become internal server errors.
func domainError(err error) Error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrResourceNotFound.WithErr(err)
	case errors.Is(err, authority.ErrUnauthorized):
		return ErrUnauthorized
	case errors.Is(err, authority.ErrBallotPending):
		return ErrBallotPending.WithErr(err)
	case errors.Is(err, authority.ErrElectionNotOpen):
		return ErrElectionNotOpen.WithErr(err)
	case errors.Is(err, authority.ErrVoterFinished):
		return ErrVoterFinished.WithErr(err)
	case errors.Is(err, authority.ErrStateConflict):
		return ErrStateConflict.WithErr(err)
	case errors.Is(err, dreip.ErrInvalidSelection):
		return ErrInvalidBallotChoices.WithErr(err)
	case errors.Is(err, dreip.ErrMalformedInput):
		return ErrMalformedBody.WithErr(err)
	default:
		return ErrGenericInternalServerError.WithErr(err)
	}
}
