package census

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

const validRoster = `fname,lname,postcode,uname,dob,pass
Alice,Anderson,AB1 2CD,alice,01-02-1990,hunter2
Bob,Brown,EF3 4GH,bob,15-06-1985,secret
`

func TestParseRoster(t *testing.T) {
	c := qt.New(t)

	records, err := ParseRoster(strings.NewReader(validRoster), ',')
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 2)
	c.Assert(records[0].Username, qt.Equals, "alice")
	c.Assert(records[0].FirstName, qt.Equals, "Alice")
	c.Assert(records[0].DateOfBirth.Year(), qt.Equals, 1990)
	c.Assert(records[0].CredentialHash, qt.HasLen, 32)
	c.Assert(records[1].Username, qt.Equals, "bob")

	// The password is never stored in the clear.
	c.Assert(CheckCredential("hunter2", records[0].CredentialHash), qt.IsTrue)
	c.Assert(CheckCredential("wrong", records[0].CredentialHash), qt.IsFalse)
}

func TestParseRosterHeaderOrderInsensitive(t *testing.T) {
	c := qt.New(t)

	roster := "PASS;UNAME;DOB;POSTCODE;LNAME;FNAME\nhunter2;alice;01-02-1990;AB1 2CD;Anderson;Alice\n"
	records, err := ParseRoster(strings.NewReader(roster), ';')
	c.Assert(err, qt.IsNil)
	c.Assert(records, qt.HasLen, 1)
	c.Assert(records[0].Username, qt.Equals, "alice")
}

func TestParseRosterRejections(t *testing.T) {
	c := qt.New(t)

	// Wrong headers (or wrong delimiter).
	_, err := ParseRoster(strings.NewReader(validRoster), ';')
	c.Assert(err, qt.ErrorMatches, "roster headers must be exactly.*")

	// Duplicate username.
	dup := validRoster + "Carol,Clark,IJ5 6KL,alice,02-03-1992,pw\n"
	_, err = ParseRoster(strings.NewReader(dup), ',')
	c.Assert(err, qt.ErrorMatches, ".*duplicate username \"alice\".*")

	// Bad date of birth.
	bad := "fname,lname,postcode,uname,dob,pass\nAlice,Anderson,AB1 2CD,alice,1990-02-01,pw\n"
	_, err = ParseRoster(strings.NewReader(bad), ',')
	c.Assert(err, qt.ErrorMatches, ".*badly-formed date of birth.*")

	// Empty field.
	empty := "fname,lname,postcode,uname,dob,pass\nAlice,,AB1 2CD,alice,01-02-1990,pw\n"
	_, err = ParseRoster(strings.NewReader(empty), ',')
	c.Assert(err, qt.ErrorMatches, ".*empty lname field.*")

	// No voters at all.
	_, err = ParseRoster(strings.NewReader("fname,lname,postcode,uname,dob,pass\n"), ',')
	c.Assert(err, qt.ErrorMatches, "roster contains no voters")
}

func TestParseRosterTruncatesLongNames(t *testing.T) {
	c := qt.New(t)

	long := strings.Repeat("x", 60)
	roster := "fname,lname,postcode,uname,dob,pass\n" + long + "," + long + ",AB1 2CD,alice,01-02-1990,pw\n"
	records, err := ParseRoster(strings.NewReader(roster), ',')
	c.Assert(err, qt.IsNil)
	c.Assert(records[0].FirstName, qt.HasLen, 35)
	c.Assert(records[0].LastName, qt.HasLen, 35)
}
