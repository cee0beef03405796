// Package signing provides the Ed25519 keypair operations used to sign
// and verify orders. Its method shapes (GenerateKey, FromPrivateKeyHex,
// Sign, VerifySignature) mirror the secp256k1 signer this module
// replaced, re-keyed to the Ed25519/base58 account model the on-chain
// program expects.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Signer wraps an Ed25519 keypair and exposes the operations order
// submission and testing need.
type Signer struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateKey creates a new random Ed25519 keypair.
func GenerateKey() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signing: generate key: %w", err)
	}
	return &Signer{public: pub, private: priv}, nil
}

// FromPrivateKeyHex reconstructs a Signer from a hex-encoded 64-byte
// Ed25519 seed+public-key private key, the same format
// ed25519.GenerateKey returns.
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signing: decode hex private key: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	priv := ed25519.PrivateKey(b)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("signing: could not derive public key")
	}
	return &Signer{public: pub, private: priv}, nil
}

// AccountID returns the raw 32-byte account identifier (the public
// key) this signer signs on behalf of.
func (s *Signer) AccountID() [32]byte {
	var id [32]byte
	copy(id[:], s.public)
	return id
}

// AccountIDBase58 is the display form of AccountID.
func (s *Signer) AccountIDBase58() string {
	return base58.Encode(s.public)
}

// PrivateKeyHex returns the hex-encoded private key; callers must treat
// this as a secret.
func (s *Signer) PrivateKeyHex() string {
	return hex.EncodeToString(s.private)
}

// Sign signs an arbitrary message (typically an order hash) and
// returns the 64-byte Ed25519 signature.
func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.private, message)
}

// VerifySignature checks a signature against a raw 32-byte account
// identifier, independent of any Signer instance.
func VerifySignature(accountID [32]byte, message, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(accountID[:]), message, signature)
}
