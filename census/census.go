// Package census imports voter rosters from delimited files. The checks are
// deliberately basic: whoever creates the election is responsible for
// gathering correct voter details, so beyond structural validation (headers,
// field counts, date format, unique usernames) nothing is second-guessed.
package census

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/verivote/dreip-node/types"
)

const (
	// DOBFormat is the expected date-of-birth layout (DD-MM-YYYY).
	DOBFormat = "02-01-2006"

	firstNameMaxLength = 35
	lastNameMaxLength  = 35
	postcodeMaxLength  = 8
)

// expected headers, case-insensitive, any order.
var rosterHeaders = []string{"dob", "fname", "lname", "pass", "postcode", "uname"}

// Record is one parsed roster row. The password never leaves this package in
// the clear: it is hashed into CredentialHash at parse time.
type Record struct {
	FirstName      string
	LastName       string
	Postcode       string
	Username       string
	DateOfBirth    time.Time
	CredentialHash types.HexBytes
}

// HashCredential hashes a voter password for storage and comparison.
func HashCredential(credential string) types.HexBytes {
	h := sha256.Sum256([]byte(credential))
	return h[:]
}

// CheckCredential compares a presented password against a stored hash in
// constant time.
func CheckCredential(credential string, hash types.HexBytes) bool {
	presented := HashCredential(credential)
	return subtle.ConstantTimeCompare(presented, hash) == 1
}

// ParseRoster reads a delimited voter roster. The first row must contain
// exactly the headers fname, lname, postcode, uname, dob and pass, in any
// order and case. Long name fields are truncated rather than rejected; a
// duplicate username, a missing field or a badly-formed date of birth fails
// the whole import.
func ParseRoster(r io.Reader, delimiter rune) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read roster header: %w", err)
	}
	index, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	var records []Record
	seen := make(map[string]bool)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("roster line %d: %w", line, err)
		}
		record, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("roster line %d: %w", line, err)
		}
		if seen[record.Username] {
			return nil, fmt.Errorf("roster line %d: duplicate username %q", line, record.Username)
		}
		seen[record.Username] = true
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("roster contains no voters")
	}
	return records, nil
}

func headerIndex(header []string) (map[string]int, error) {
	normalized := make([]string, len(header))
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		normalized[i] = name
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate roster header %q", name)
		}
		index[name] = i
	}
	slices.Sort(normalized)
	if !slices.Equal(normalized, rosterHeaders) {
		return nil, fmt.Errorf("roster headers must be exactly %v, got %v (wrong delimiter or misspelled header?)",
			rosterHeaders, normalized)
	}
	return index, nil
}

func parseRow(row []string, index map[string]int) (Record, error) {
	if len(row) != len(index) {
		return Record{}, fmt.Errorf("expected %d fields, got %d", len(index), len(row))
	}
	field := func(name string) string {
		return strings.TrimSpace(row[index[name]])
	}
	for _, name := range rosterHeaders {
		if field(name) == "" {
			return Record{}, fmt.Errorf("empty %s field", name)
		}
	}
	dob, err := time.Parse(DOBFormat, field("dob"))
	if err != nil {
		return Record{}, fmt.Errorf("badly-formed date of birth %q (want DD-MM-YYYY)", field("dob"))
	}
	return Record{
		FirstName:      truncate(field("fname"), firstNameMaxLength),
		LastName:       truncate(field("lname"), lastNameMaxLength),
		Postcode:       truncate(field("postcode"), postcodeMaxLength),
		Username:       field("uname"),
		DateOfBirth:    dob,
		CredentialHash: HashCredential(field("pass")),
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
