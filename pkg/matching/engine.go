// Package matching implements the price-time-priority crossing
// algorithm, generalized from the teacher's
// pkg/app/core/orderbook.OrderBook.Place walk from direct map/heap
// mutation to calls against the obstore.Store CAS contract, so
// multiple matcher processes can run concurrently without oversizing
// a resting order.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
)

// MaxBatchLegs is the batch size this pipeline enforces: the most maker
// legs one settlement job carries.
const MaxBatchLegs = 5

// Fill is one matched leg: the resting order's price wins, per the
// maker-price-priority design rationale.
type Fill struct {
	TakerOrderHash [32]byte
	MakerOrderHash [32]byte
	TakerOwner     [32]byte
	MakerOwner     [32]byte
	Market         [32]byte
	TokenID        uint8
	Side           uint8
	Price          uint64
	Size           uint64
	TimestampMs    int64
}

// Job is a match job ready for the settlement queue: one taker leg and
// up to MaxBatchLegs maker legs.
type Job struct {
	TakerOrderHash    [32]byte
	TakerFillAmount   uint64
	MakerOrderHashes  [][32]byte
	MakerFillAmounts  []uint64
}

// Result is what TryMatch returns: whether anything matched, the fills
// produced (for stream publication), and the resulting match jobs
// (split at MaxBatchLegs per spec.md's overflow rule).
type Result struct {
	Matched bool
	Fills   []Fill
	Jobs    []Job
}

// Engine runs the crossing algorithm against a Store. It holds no
// state of its own; all synchronization lives in the Store's CAS
// decrement.
type Engine struct {
	store obstore.Store
	now   func() time.Time
}

// New builds an Engine over store. now defaults to time.Now; tests may
// override it for deterministic timestamps.
func New(store obstore.Store, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, now: now}
}

// TryMatch walks the opposing side of the book in price-time order for
// a taker order already validated and inserted into the book upstream,
// attempting fills against each head candidate until the taker is
// exhausted or the price no longer crosses. A single call may produce
// more than one Job: whenever the current job already holds
// MaxBatchLegs maker legs and the taker still has crossing liquidity
// to consume, that job is closed off and a new one started for the
// residual (spec.md's overflow-split rule — a sixth crossing maker
// spills into a second job rather than going unfilled). A BUY taker's
// size is its TakerAmount (outcome tokens wanted); a SELL taker's is its
// MakerAmount (outcome tokens offered). TryMatch decrements only the
// maker legs it fills; the taker's own book record is left to the caller.
func (e *Engine) TryMatch(ctx context.Context, taker order.Order, takerHash [32]byte) (Result, error) {
	opposingSide := obstore.SideAsk
	if taker.Side == order.SideSell {
		opposingSide = obstore.SideBid
	}

	takerPrice := order.Price(taker)
	takerRemaining := taker.MakerAmount
	if taker.Side == order.SideBuy {
		takerRemaining = taker.TakerAmount
	}

	var fills []Fill
	var jobs []Job
	curJob := Job{TakerOrderHash: takerHash}

scan:
	for takerRemaining > 0 {
		candidates, err := e.store.BestN(ctx, taker.Market, taker.TokenID, opposingSide, 8)
		if err != nil {
			return Result{}, fmt.Errorf("matching: bestN: %w", err)
		}

		advanced := false
		for _, cand := range candidates {
			if !crosses(taker.Side, takerPrice, cand.Price) {
				// Head (and everything after it in price order) no
				// longer crosses; stop scanning entirely.
				break scan
			}

			if cand.Owner == taker.Maker {
				// Self-trade: skip this head, keep scanning others.
				continue
			}

			fillSize := cand.RemainingAmount
			if takerRemaining < fillSize {
				fillSize = takerRemaining
			}
			if fillSize == 0 {
				continue
			}

			_, _, ok, err := e.store.Decrement(ctx, cand.OrderHash, fillSize)
			if err != nil {
				return Result{}, fmt.Errorf("matching: decrement %x: %w", cand.OrderHash, err)
			}
			if !ok {
				// Another matcher took this head first; price-time
				// order is still honoured on the next scan.
				continue
			}

			if len(curJob.MakerOrderHashes) >= MaxBatchLegs {
				jobs = append(jobs, curJob)
				curJob = Job{TakerOrderHash: takerHash}
			}

			fills = append(fills, Fill{
				TakerOrderHash: takerHash,
				MakerOrderHash: cand.OrderHash,
				TakerOwner:     taker.Maker,
				MakerOwner:     cand.Owner,
				Market:         taker.Market,
				TokenID:        taker.TokenID,
				Side:           taker.Side,
				Price:          cand.Price,
				Size:           fillSize,
				TimestampMs:    e.now().UnixMilli(),
			})
			curJob.MakerOrderHashes = append(curJob.MakerOrderHashes, cand.OrderHash)
			curJob.MakerFillAmounts = append(curJob.MakerFillAmounts, fillSize)
			curJob.TakerFillAmount += fillSize

			takerRemaining -= fillSize
			advanced = true

			if takerRemaining == 0 {
				break
			}
		}

		if !advanced {
			break
		}
	}

	if len(curJob.MakerOrderHashes) > 0 {
		jobs = append(jobs, curJob)
	}

	if len(fills) == 0 {
		return Result{Matched: false}, nil
	}
	return Result{Matched: true, Fills: fills, Jobs: jobs}, nil
}

// crosses implements the stop predicate from spec.md §4.3 step 2: for
// a BUY taker, the head must be priced at or below the taker's limit;
// for SELL, at or above.
func crosses(takerSide uint8, takerPrice, headPrice uint64) bool {
	if takerSide == order.SideBuy {
		return takerPrice >= headPrice
	}
	return takerPrice <= headPrice
}
