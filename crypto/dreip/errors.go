package dreip

import "errors"

var (
	// ErrMalformedInput is returned when public data is structurally
	// invalid (wrong vector length, undecodable group element). It is
	// raised before any arithmetic is attempted.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInvalidGroupElement is returned when a serialized element is not
	// a valid member of the group (off curve, out of the subgroup, or the
	// identity element).
	ErrInvalidGroupElement = errors.New("invalid group element")

	// ErrInvalidSelection is returned when a selection vector does not
	// contain exactly the number of choices the question requires. This is
	// a caller bug, not a protocol failure.
	ErrInvalidSelection = errors.New("invalid selection count")

	// ErrProofInvalid is returned when a zero-knowledge proof fails
	// verification. It is evidence of tampering or a faulty client and
	// must never be swallowed.
	ErrProofInvalid = errors.New("proof verification failed")

	// ErrTallyMismatch is returned when the revealed totals do not satisfy
	// the public tally equations. It is fatal to the election's
	// verifiability claim.
	ErrTallyMismatch = errors.New("tally verification failed")
)
