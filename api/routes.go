package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Route constants for the API endpoints

const (
	// Health endpoints
	PingEndpoint = "/ping" // Health check endpoint

	// Election endpoints
	ElectionURLParam       = "electionId"                                      // URL parameter for election ID
	ElectionsEndpoint      = "/elections"                                      // GET: List elections, POST: Create election
	ElectionEndpoint       = ElectionsEndpoint + "/{" + ElectionURLParam + "}" // GET: Get election info
	ElectionCloseEndpoint  = ElectionEndpoint + "/close"                       // POST: Close the election and reveal tallies
	ElectionExportEndpoint = ElectionEndpoint + "/export"                      // GET: Download the signed election export

	// Voter endpoints
	VotersEndpoint    = ElectionEndpoint + "/voters" // POST: Upload a voter roster, GET: List voters
	VoterAuthEndpoint = ElectionEndpoint + "/auth"   // POST: Authenticate a voter

	// Ballot endpoints
	BallotURLParam        = "ballotId"                                    // URL parameter for ballot ID
	BallotsEndpoint       = ElectionEndpoint + "/ballots"                 // POST: Cast a ballot
	BallotEndpoint        = BallotsEndpoint + "/{" + BallotURLParam + "}" // GET: Get a public ballot record
	BallotAuditEndpoint   = BallotsEndpoint + "/audit"                    // POST: Audit the pending ballot
	BallotConfirmEndpoint = BallotsEndpoint + "/confirm"                  // POST: Confirm the pending ballot

	// Roster query params
	RosterDelimiterQueryParam = "delimiter" // URL query param for the roster field delimiter
)

// EndpointWithParam creates an endpoint URL by replacing the parameter
// placeholder with the actual value. Used to build fully qualified
// endpoint URLs.
func EndpointWithParam(path, key, param string) string {
	rawKey := fmt.Sprintf("{%s}", key)

	// Always try to replace the placeholder, even if it's after the '?'
	if strings.Contains(path, rawKey) {
		return strings.Replace(path, rawKey, url.PathEscape(param), 1)
	}

	// Fallback: add as query param
	escapedKey := url.QueryEscape(key)
	escapedVal := url.QueryEscape(param)

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return fmt.Sprintf("%s%s%s=%s", path, sep, escapedKey, escapedVal)
}

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	PingEndpoint,
}
