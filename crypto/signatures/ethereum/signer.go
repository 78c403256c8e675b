package ethereum

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/verivote/dreip-node/types"
)

// Signer is the authority's ECDSA signing key. Every receipt and the final
// election export are signed with it, so a voter or verifier holding the
// authority address can check that published artifacts really come from the
// authority. The message is hashed (keccak256) with the Ethereum Signed
// Message prefix before signing.
type Signer ecdsa.PrivateKey

// Address returns the Ethereum address derived from the public key of the
// signer.
func (s *Signer) Address() common.Address {
	return ethcrypto.PubkeyToAddress(s.PublicKey)
}

// HexPrivateKey returns the hex-encoded representation of the ECDSA private
// key.
func (s *Signer) HexPrivateKey() types.HexBytes {
	return types.HexBytes(ethcrypto.FromECDSA((*ecdsa.PrivateKey)(s)))
}

// Sign signs a message using the ECDSA private key and returns the signature.
// The message is hashed with the Ethereum prefix before signing.
func (s *Signer) Sign(msg []byte) (*ECDSASignature, error) {
	ethSignature, err := ethcrypto.Sign(HashMessage(msg), (*ecdsa.PrivateKey)(s))
	if err != nil {
		return nil, fmt.Errorf("could not sign message: %w", err)
	}
	sig := new(ECDSASignature).SetBytes(ethSignature)
	if sig == nil {
		return nil, fmt.Errorf("could not decode produced signature")
	}
	return sig, nil
}

// NewSigner creates a new ECDSA private key for signing.
func NewSigner() (*Signer, error) {
	s, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return (*Signer)(s), nil
}

// NewSignerFromHex creates a new ECDSA private key from a hex-encoded string.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	s, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("could not decode key: %w", err)
	}
	return (*Signer)(s), nil
}

// NewSignerFromBytes restores an ECDSA private key from its raw byte
// representation, as stored in the database.
func NewSignerFromBytes(key []byte) (*Signer, error) {
	s, err := ethcrypto.ToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("could not decode key: %w", err)
	}
	return (*Signer)(s), nil
}

// HashMessage performs a keccak256 hash over the data adding the Ethereum
// Message prefix.
func HashMessage(data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s%d%s", SigningPrefix, len(data), data)
	return ethcrypto.Keccak256(buf.Bytes())
}
