// Package obstore maintains the ordered per-(market, token, side)
// indices of resting orders and their mutable records. It is the
// synchronization point between the matching engine and any
// cancellation path: decrement is the single compare-and-set boundary
// concurrent matchers rely on.
package obstore

import (
	"context"
	"errors"
	"time"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
)

// Status is the lifecycle state of a resting order record.
type Status string

const (
	StatusOpen      Status = "open"
	StatusPartial   Status = "partial"
	StatusMatched   Status = "matched"
	StatusSettled   Status = "settled"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Side selects which half of the book an operation targets.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

// SideOf maps an order.Order's BUY/SELL side to the book side it rests
// on: a BUY order rests on the bid side, a SELL order on the ask side.
func SideOf(orderSide uint8) Side {
	if orderSide == order.SideBuy {
		return SideBid
	}
	return SideAsk
}

// Record is the full resting-order record held by the store: the
// signed order plus its mutable fill state.
type Record struct {
	OrderHash       [32]byte
	Order           order.Order
	Signature       []byte
	Status          Status
	FilledAmount    uint64
	RemainingAmount uint64
	CreatedAt       time.Time
}

// BestEntry is one row of a BestN result: enough to attempt a fill
// without a second round trip.
type BestEntry struct {
	OrderHash       [32]byte
	Price           uint64
	RemainingAmount uint64
	Owner           [32]byte
}

// ErrDuplicateInsert names a duplicate-fingerprint insert. Neither store
// implementation returns it: both return nil for a duplicate, which is
// a no-op.
var ErrDuplicateInsert = errors.New("obstore: duplicate insert")

// Store is the contract the matching engine and HTTP layer depend on.
// Both the Redis-backed implementation and the in-memory memstore
// implementation satisfy it.
type Store interface {
	// Insert writes a new resting-order record, adds it to the side
	// index and the maker's user index, and sets its expiry. A
	// duplicate fingerprint is a no-op, not an error.
	Insert(ctx context.Context, rec Record) error

	// BestN returns up to n best-priced open orders (remaining > 0)
	// for (market, token, side), in price-time priority order.
	BestN(ctx context.Context, market [32]byte, token uint8, side Side, n int) ([]BestEntry, error)

	// Decrement conditionally reduces an order's remaining amount by
	// delta. It fails (ok=false) if the current remaining is less than
	// delta, so two concurrent matchers can never oversell the same
	// resting order.
	Decrement(ctx context.Context, hash [32]byte, delta uint64) (newRemaining uint64, newStatus Status, ok bool, err error)

	// Remove deletes an order from its side index and the user index.
	// If cancelled is true the record's status becomes "cancelled" and
	// is retained for history; otherwise the record itself is deleted
	// as well.
	Remove(ctx context.Context, hash [32]byte, cancelled bool) error

	// Get fetches the full record for a fingerprint.
	Get(ctx context.Context, hash [32]byte) (Record, error)

	// UserOrders lists the outstanding fingerprints for a maker.
	UserOrders(ctx context.Context, maker [32]byte) ([][32]byte, error)

	// SetStatus overwrites a record's terminal settlement status
	// (settled or failed) without touching its remaining amount or side
	// indices, which Decrement/Remove already retired it from once it
	// reached StatusMatched.
	SetStatus(ctx context.Context, hash [32]byte, status Status) error
}
