// Package ethereum provides ECDSA signatures in the Ethereum message format,
// used for authority signatures on receipts and election exports.
package ethereum

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/verivote/dreip-node/types"
)

const (
	// SignatureLength is the size of an ECDSA signature in bytes.
	SignatureLength = ethcrypto.SignatureLength
	// SigningPrefix is the prefix added when hashing Ethereum messages.
	SigningPrefix = "Ethereum Signed Message:\n"
)

// ECDSASignature represents an Ethereum ECDSA signature with R and S
// components. The components are stored as big.Int values within the
// secp256k1 curve field.
type ECDSASignature struct {
	R        *big.Int `json:"r"`
	S        *big.Int `json:"s"`
	recovery byte
}

// BytesToSignature creates a new ECDSASignature from a raw signature byte
// payload.
func BytesToSignature(signature []byte) (*ECDSASignature, error) {
	if len(signature) < SignatureLength-1 {
		return nil, fmt.Errorf("signature length is less than %d", SignatureLength-1)
	}
	sig := new(ECDSASignature).SetBytes(signature)
	if sig == nil {
		return nil, fmt.Errorf("wrong signature bytes")
	}
	return sig, nil
}

// HexToSignature decodes the provided hex string and then decodes the bytes
// to an ECDSASignature using BytesToSignature.
func HexToSignature(hexSignature string) (*ECDSASignature, error) {
	bSignature, err := types.HexStringToHexBytes(hexSignature)
	if err != nil {
		return nil, err
	}
	return BytesToSignature(bSignature)
}

// Valid checks if the ECDSASignature is valid. A signature is valid if both
// R and S values are not nil.
func (sig *ECDSASignature) Valid() bool {
	return sig.R != nil && sig.S != nil
}

// Bytes returns the binary representation of the signature: the R and S
// values padded to 32 bytes each, followed by the recovery byte.
func (sig *ECDSASignature) Bytes() []byte {
	rBytes := sig.R.Bytes()
	sBytes := sig.S.Bytes()

	r := make([]byte, 32)
	s := make([]byte, 32)
	copy(r[32-len(rBytes):], rBytes)
	copy(s[32-len(sBytes):], sBytes)

	v := sig.recovery
	if v > 1 {
		v -= 27
	}
	return append(r, append(s, v)...)
}

// SetBytes sets the ECDSASignature from a byte slice of at least 64 bytes,
// where the first 64 bytes are the R and S values. Returns nil on a
// malformed payload.
func (sig *ECDSASignature) SetBytes(signature []byte) *ECDSASignature {
	if len(signature) < SignatureLength-1 {
		return nil
	}
	sig.R = new(big.Int).SetBytes(signature[:32])
	sig.S = new(big.Int).SetBytes(signature[32:64])

	if len(signature) == SignatureLength {
		v := signature[64]
		// Normalize Ethereum's 27/28 recovery values to 0-3.
		if v >= 27 {
			v -= 27
		}
		if v > 3 {
			return nil
		}
		sig.recovery = v
	} else {
		sig.recovery = 0
	}
	return sig
}

// Verify checks that sig is a valid signature of message produced by
// expectedAddress, by recovering the public key and comparing its derived
// address.
func (sig *ECDSASignature) Verify(message []byte, expectedAddress common.Address) bool {
	if !sig.Valid() {
		return false
	}
	pubKey, err := ethcrypto.SigToPub(HashMessage(message), sig.Bytes())
	if err != nil {
		return false
	}
	return bytes.Equal(ethcrypto.PubkeyToAddress(*pubKey).Bytes(), expectedAddress.Bytes())
}

// String returns a string representation of the ECDSASignature.
func (sig *ECDSASignature) String() string {
	return fmt.Sprintf("R: %s, S: %s, Recovery: %d", sig.R.String(), sig.S.String(), sig.recovery)
}

// AddrFromSignature recovers the Ethereum address that created the signature
// of a message.
func AddrFromSignature(message []byte, signature *ECDSASignature) (common.Address, error) {
	if signature == nil || !signature.Valid() {
		return common.Address{}, fmt.Errorf("signature is nil")
	}
	pubKey, err := ethcrypto.SigToPub(HashMessage(message), signature.Bytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("sigToPub %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}
