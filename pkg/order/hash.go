package order

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// Hash computes the domain-separated fingerprint
// SHA-256(domain || serialize(order)). It is stable across encoders and
// is the primary key for every stored signed order.
func Hash(o Order) [32]byte {
	ser := Serialize(o)
	h := sha256.New()
	h.Write([]byte(Domain))
	h.Write(ser[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// FingerprintString base58-encodes a hash for use as a string key or in
// JSON responses.
func FingerprintString(hash [32]byte) string {
	return base58.Encode(hash[:])
}

// ParseFingerprint decodes a base58 fingerprint back into a 32-byte
// hash, rejecting anything that doesn't round-trip to exactly 32 bytes.
func ParseFingerprint(s string) ([32]byte, error) {
	var out [32]byte
	b, err := base58.Decode(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, &ValidationError{Kind: ErrInvalidOrder, Reason: "fingerprint has wrong decoded length"}
	}
	copy(out[:], b)
	return out, nil
}

// AccountString base58-encodes a 32-byte account identifier (maker,
// signer, taker, market).
func AccountString(id [32]byte) string {
	return base58.Encode(id[:])
}

// ParseAccount decodes a base58 account identifier into its 32 raw
// bytes.
func ParseAccount(s string) ([32]byte, error) {
	var out [32]byte
	b, err := base58.Decode(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, &ValidationError{Kind: ErrInvalidOrder, Reason: "account id has wrong decoded length"}
	}
	copy(out[:], b)
	return out, nil
}
