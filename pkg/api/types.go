package api

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
)

// wireOrder is the client-facing JSON shape spec.md §6 names: 32-byte
// account fields base58-encoded, 64-bit fields string-encoded so large
// unsigned values survive JSON's float64 number type untouched.
type wireOrder struct {
	Salt        string `json:"salt"`
	Maker       string `json:"maker"`
	Signer      string `json:"signer"`
	Taker       string `json:"taker"`
	Market      string `json:"market"`
	TokenID     uint8  `json:"tokenId"`
	MakerAmount string `json:"makerAmount"`
	TakerAmount string `json:"takerAmount"`
	Expiration  string `json:"expiration"`
	Nonce       string `json:"nonce"`
	FeeRateBps  uint16 `json:"feeRateBps"`
	Side        uint8  `json:"side"`
}

func (w wireOrder) toOrder() (order.Order, error) {
	maker, err := order.ParseAccount(w.Maker)
	if err != nil {
		return order.Order{}, fmt.Errorf("maker: %w", err)
	}
	signer, err := order.ParseAccount(w.Signer)
	if err != nil {
		return order.Order{}, fmt.Errorf("signer: %w", err)
	}
	taker := order.DefaultTaker
	if w.Taker != "" {
		taker, err = order.ParseAccount(w.Taker)
		if err != nil {
			return order.Order{}, fmt.Errorf("taker: %w", err)
		}
	}
	market, err := order.ParseAccount(w.Market)
	if err != nil {
		return order.Order{}, fmt.Errorf("market: %w", err)
	}
	salt, err := strconv.ParseUint(w.Salt, 10, 64)
	if err != nil {
		return order.Order{}, fmt.Errorf("salt: %w", err)
	}
	makerAmount, err := strconv.ParseUint(w.MakerAmount, 10, 64)
	if err != nil {
		return order.Order{}, fmt.Errorf("makerAmount: %w", err)
	}
	takerAmount, err := strconv.ParseUint(w.TakerAmount, 10, 64)
	if err != nil {
		return order.Order{}, fmt.Errorf("takerAmount: %w", err)
	}
	expiration, err := strconv.ParseInt(w.Expiration, 10, 64)
	if err != nil {
		return order.Order{}, fmt.Errorf("expiration: %w", err)
	}
	nonce, err := strconv.ParseUint(w.Nonce, 10, 64)
	if err != nil {
		return order.Order{}, fmt.Errorf("nonce: %w", err)
	}

	return order.Order{
		Salt:        salt,
		Maker:       maker,
		Signer:      signer,
		Taker:       taker,
		Market:      market,
		TokenID:     w.TokenID,
		MakerAmount: makerAmount,
		TakerAmount: takerAmount,
		Expiration:  expiration,
		Nonce:       nonce,
		FeeRateBps:  w.FeeRateBps,
		Side:        w.Side,
	}, nil
}

func fromOrder(o order.Order) wireOrder {
	taker := ""
	if !order.IsOpenTaker(o.Taker) {
		taker = order.AccountString(o.Taker)
	}
	return wireOrder{
		Salt:        strconv.FormatUint(o.Salt, 10),
		Maker:       order.AccountString(o.Maker),
		Signer:      order.AccountString(o.Signer),
		Taker:       taker,
		Market:      order.AccountString(o.Market),
		TokenID:     o.TokenID,
		MakerAmount: strconv.FormatUint(o.MakerAmount, 10),
		TakerAmount: strconv.FormatUint(o.TakerAmount, 10),
		Expiration:  strconv.FormatInt(o.Expiration, 10),
		Nonce:       strconv.FormatUint(o.Nonce, 10),
		FeeRateBps:  o.FeeRateBps,
		Side:        o.Side,
	}
}

// signedOrderRequest is the signed-order submission envelope.
type signedOrderRequest struct {
	Order     wireOrder       `json:"order"`
	Signature json.RawMessage `json:"signature"`
}

// signedOrderResponse echoes the accepted order alongside its
// fingerprint and the intake outcome.
type signedOrderResponse struct {
	OrderHash string    `json:"orderHash"`
	Status    string    `json:"status"`
	Order     wireOrder `json:"order"`
}

// operatorMatchRequest lets the settlement worker (or a test) submit an
// explicit crossing between a taker and up to five makers, bypassing
// the book scan in pkg/matching — used when the caller already knows
// which resting orders should cross, not discovered via price-time
// priority.
type operatorMatchRequest struct {
	TakerOrder       wireOrder   `json:"takerOrder"`
	MakerOrders      []wireOrder `json:"makerOrders"`
	TakerFillAmount  string      `json:"takerFillAmount,omitempty"`
	MakerFillAmounts []string    `json:"makerFillAmounts,omitempty"`
}

type operatorMatchResponse struct {
	TakerOrderHash string   `json:"takerOrderHash"`
	MakerOrderHash []string `json:"makerOrderHashes"`
	Status         string   `json:"status"`
}

// statusResponse is the fingerprint lookup response spec.md §6 names.
type statusResponse struct {
	Exists              bool   `json:"exists"`
	IsFilledOrCancelled bool   `json:"isFilledOrCancelled"`
	Remaining           uint64 `json:"remaining"`
	Status              string `json:"status"`
}

// nonceResponse is the wallet nonce lookup response.
type nonceResponse struct {
	Nonce uint64 `json:"nonce"`
}

// errorResponse is the stable error body every failure path returns.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeSignature accepts a base58 string, a hex string (with or
// without an "0x" prefix), or a JSON byte array, per spec.md §6's
// "base58 or hex or byte array, 64 bytes after decode".
func decodeSignature(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if b, err := base58.Decode(s); err == nil && len(b) == ed25519.SignatureSize {
			return b, nil
		}
		if b, err := hex.DecodeString(strings.TrimPrefix(s, "0x")); err == nil && len(b) == ed25519.SignatureSize {
			return b, nil
		}
		return nil, fmt.Errorf("signature string is neither valid base58 nor hex of the expected length")
	}

	var arr []byte
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == ed25519.SignatureSize {
			return arr, nil
		}
		return nil, fmt.Errorf("signature byte array has wrong length: got %d, want %d", len(arr), ed25519.SignatureSize)
	}

	return nil, fmt.Errorf("signature must be a base58/hex string or a byte array")
}

// hexID is the internal stream/ledger encoding for a 32-byte
// identifier, matching pkg/settlement/worker.go's publishFill
// convention (distinct from the base58 encoding client-facing JSON
// uses for the same fields).
func hexID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}
