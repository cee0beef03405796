// Package order implements the canonical order codec, domain-separated
// hash, signature verification, and validation predicates that every
// other component in this module builds on.
package order

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
)

// Domain is prepended to the serialized order before hashing, so a hash
// collision with any other signing context in this ecosystem is
// infeasible.
const Domain = "Catallaxyz Exchange v1"

// PriceScale is the fixed-point scale used by Price.
const PriceScale = 1_000_000

// Side values.
const (
	SideBuy  uint8 = 0
	SideSell uint8 = 1
)

// TokenID values.
const (
	TokenQuote uint8 = 0
	TokenYes   uint8 = 1
	TokenNo    uint8 = 2
)

// MaxFeeRateBps is the highest fee rate accepted at intake (10%).
const MaxFeeRateBps = 1000

// EncodedSize is the fixed wire size of a serialized Order.
const EncodedSize = 172

// Order is immutable once signed. Account identifiers are raw 32-byte
// Ed25519 public keys; callers base58-encode them for display.
type Order struct {
	Salt        uint64
	Maker       [32]byte
	Signer      [32]byte
	Taker       [32]byte
	Market      [32]byte
	TokenID     uint8
	MakerAmount uint64
	TakerAmount uint64
	Expiration  int64
	Nonce       uint64
	FeeRateBps  uint16
	Side        uint8
}

// ErrKind distinguishes the validation failures intake must surface
// with a stable code.
type ErrKind string

const (
	ErrInvalidOrder     ErrKind = "INVALID_ORDER"
	ErrOrderExpired     ErrKind = "ORDER_EXPIRED"
	ErrInvalidSignature ErrKind = "INVALID_SIGNATURE"
)

// ValidationError carries a stable kind alongside a human-readable
// reason; callers map Kind to an external error code and keep Reason in
// logs only.
type ValidationError struct {
	Kind   ErrKind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Serialize produces the canonical 172-byte little-endian layout from
// the fields in the order they are declared above. Any deviation in
// endianness, field order, or width is a protocol break.
func Serialize(o Order) [EncodedSize]byte {
	var b [EncodedSize]byte
	off := 0

	binary.LittleEndian.PutUint64(b[off:], o.Salt)
	off += 8
	copy(b[off:], o.Maker[:])
	off += 32
	copy(b[off:], o.Signer[:])
	off += 32
	copy(b[off:], o.Taker[:])
	off += 32
	copy(b[off:], o.Market[:])
	off += 32
	b[off] = o.TokenID
	off++
	binary.LittleEndian.PutUint64(b[off:], o.MakerAmount)
	off += 8
	binary.LittleEndian.PutUint64(b[off:], o.TakerAmount)
	off += 8
	binary.LittleEndian.PutUint64(b[off:], uint64(o.Expiration))
	off += 8
	binary.LittleEndian.PutUint64(b[off:], o.Nonce)
	off += 8
	binary.LittleEndian.PutUint16(b[off:], o.FeeRateBps)
	off += 2
	b[off] = o.Side
	off++

	if off != EncodedSize {
		panic("order: serialize layout drifted from EncodedSize")
	}
	return b
}

// Deserialize parses the canonical layout back into an Order. It is the
// exact inverse of Serialize: parse(serialize(o)) == o for every field.
func Deserialize(b []byte) (Order, error) {
	if len(b) != EncodedSize {
		return Order{}, fmt.Errorf("order: expected %d bytes, got %d", EncodedSize, len(b))
	}
	var o Order
	off := 0

	o.Salt = binary.LittleEndian.Uint64(b[off:])
	off += 8
	copy(o.Maker[:], b[off:off+32])
	off += 32
	copy(o.Signer[:], b[off:off+32])
	off += 32
	copy(o.Taker[:], b[off:off+32])
	off += 32
	copy(o.Market[:], b[off:off+32])
	off += 32
	o.TokenID = b[off]
	off++
	o.MakerAmount = binary.LittleEndian.Uint64(b[off:])
	off += 8
	o.TakerAmount = binary.LittleEndian.Uint64(b[off:])
	off += 8
	o.Expiration = int64(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	o.Nonce = binary.LittleEndian.Uint64(b[off:])
	off += 8
	o.FeeRateBps = binary.LittleEndian.Uint16(b[off:])
	off += 2
	o.Side = b[off]
	off++

	return o, nil
}

// Validate rejects orders that violate the static invariants from the
// data model: fee rate, token id, side, and nonzero amounts.
func Validate(o Order) error {
	if o.FeeRateBps > MaxFeeRateBps {
		return &ValidationError{Kind: ErrInvalidOrder, Reason: "feeRateBps exceeds maximum"}
	}
	if o.TokenID > TokenNo {
		return &ValidationError{Kind: ErrInvalidOrder, Reason: "tokenId out of range"}
	}
	if o.Side > SideSell {
		return &ValidationError{Kind: ErrInvalidOrder, Reason: "side out of range"}
	}
	if o.MakerAmount == 0 {
		return &ValidationError{Kind: ErrInvalidOrder, Reason: "makerAmount is zero"}
	}
	if o.TakerAmount == 0 {
		return &ValidationError{Kind: ErrInvalidOrder, Reason: "takerAmount is zero"}
	}
	return nil
}

// IsExpired reports whether the order's expiration has passed.
// expiration == 0 means the order never expires.
func IsExpired(o Order, nowSeconds int64) bool {
	return o.Expiration > 0 && o.Expiration < nowSeconds
}

// Price returns the order's limit price in PriceScale fixed point,
// floor-divided. BUY and SELL use symmetric formulas: both express the
// price of the minority (non-quote) token in quote units.
func Price(o Order) uint64 {
	if o.Side == SideBuy {
		return o.MakerAmount * PriceScale / o.TakerAmount
	}
	return o.TakerAmount * PriceScale / o.MakerAmount
}

// Hash computes the domain-separated fingerprint SHA-256(domain ||
// serialize(order)); see hash.go for the implementation and the
// base58 encoding helpers.

// Verify checks an Ed25519 signature over Hash(o) against the order's
// signer field. It returns an error rather than a bare bool so callers
// can distinguish malformed input from a bad signature.
func Verify(o Order, signature []byte) error {
	if len(signature) != ed25519.SignatureSize {
		return &ValidationError{Kind: ErrInvalidSignature, Reason: "signature has wrong length"}
	}
	h := Hash(o)
	pub := ed25519.PublicKey(o.Signer[:])
	if !ed25519.Verify(pub, h[:], signature) {
		return &ValidationError{Kind: ErrInvalidSignature, Reason: "signature does not verify"}
	}
	return nil
}

// DefaultTaker is the all-zero sentinel meaning "any counterparty may
// fill this order."
var DefaultTaker [32]byte

// IsOpenTaker reports whether an order's taker field is the "any
// counterparty" sentinel.
func IsOpenTaker(taker [32]byte) bool {
	return taker == DefaultTaker
}

// ErrNotFound is returned by stores when a fingerprint is unknown.
var ErrNotFound = errors.New("order: not found")
