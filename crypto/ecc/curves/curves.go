// Package curves instantiates ecc.Point implementations by type name.
package curves

import (
	"slices"

	"github.com/verivote/dreip-node/crypto/ecc"
	"github.com/verivote/dreip-node/crypto/ecc/bn254"
)

// DefaultCurveType is the curve used when no explicit choice is made.
const DefaultCurveType = bn254.CurveType

// New creates a new instance of a curve implementation based on the provided
// type string. If the type is not supported, it will panic. Use IsValid() to
// check a type from an untrusted source first.
func New(curveType string) ecc.Point {
	switch curveType {
	case bn254.CurveType:
		return &bn254.G1{}
	default:
		panic("unsupported curve type: " + curveType)
	}
}

// Curves returns the list of supported curve types.
func Curves() []string {
	return []string{
		bn254.CurveType,
	}
}

// IsValid reports whether the given curve type is supported.
func IsValid(curveType string) bool {
	return slices.Contains(Curves(), curveType)
}
