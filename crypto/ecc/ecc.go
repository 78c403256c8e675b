// Package ecc defines the common operations that can be performed on
// elliptic curve group elements. It represents the affine coordinates of a
// point on an elliptic curve and provides methods for arithmetic operations,
// serialization, and comparison.
package ecc

import (
	"math/big"
)

// Point is a group element of a prime-order elliptic curve subgroup.
type Point interface {
	// New returns a new elliptic curve point.
	New() Point

	// Order returns the order of the elliptic curve group.
	Order() *big.Int

	// Add adds two elliptic curve group elements and stores the result in
	// the receiver.
	Add(a, b Point)

	// SafeAdd adds two elliptic curve group elements and stores the result
	// in the receiver. It is thread-safe, ensuring exclusive access to the
	// receiver during the operation.
	SafeAdd(a, b Point)

	// ScalarMult multiplies the group element a by the scalar value and
	// stores the result in the receiver.
	ScalarMult(a Point, scalar *big.Int)

	// ScalarBaseMult multiplies the generator point by a scalar value and
	// stores the result in the receiver.
	ScalarBaseMult(scalar *big.Int)

	// Marshal serializes the elliptic curve element into a byte slice.
	Marshal() []byte

	// Unmarshal deserializes a byte slice into an elliptic curve element.
	// The input buf must represent a valid point of the subgroup, or an
	// error will be returned.
	Unmarshal(buf []byte) error

	// Equal checks if two elliptic curve elements are equal.
	Equal(a Point) bool

	// Neg negates an elliptic curve element, effectively computing its
	// inverse.
	Neg(a Point)

	// IsZero reports whether the element is the identity (point at
	// infinity).
	IsZero() bool

	// SetZero sets the elliptic curve element to the zero value (point at
	// infinity), the identity element of the group.
	SetZero()

	// Set sets the value of the receiver to be equal to another elliptic
	// curve element.
	Set(a Point)

	// SetGenerator sets the elliptic curve element to the fixed generator
	// point of the subgroup.
	SetGenerator()

	// SetHashToPoint deterministically maps msg to a point of the subgroup
	// using the curve's hash-to-curve construction under the given domain
	// separation tag. Any party with msg and dst derives the same point,
	// and its discrete log with respect to the generator is unknown.
	SetHashToPoint(msg, dst []byte) error

	// String returns the hexadecimal string representation of the element.
	String() string

	// Point returns the X and Y coordinates of the elliptic curve element.
	Point() (*big.Int, *big.Int)

	// SetPoint sets the X and Y coordinates of the elliptic curve element.
	SetPoint(x, y *big.Int) Point

	// Type returns the curve type identifier.
	Type() string
}
