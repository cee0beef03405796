// Package memstore is an in-process implementation of obstore.Store,
// adapted from the teacher's orderbook.go/heap.go price-level
// structure (heap-of-prices plus FIFO maps keyed by price). It backs
// unit tests and single-process development when no cache is
// configured.
package memstore

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/order"
)

type bookKey struct {
	market [32]byte
	token  uint8
}

type level struct {
	bidHeap MaxPriceHeap
	askHeap MinPriceHeap
	bids    map[uint64][][32]byte // price -> FIFO of order hashes
	asks    map[uint64][][32]byte
}

func newLevel() *level {
	return &level{
		bids: make(map[uint64][][32]byte),
		asks: make(map[uint64][][32]byte),
	}
}

// Store is a sync.RWMutex-guarded in-memory Store, mirroring the
// teacher's OrderBook's locking granularity (one mutex per store
// instance; the teacher uses one per market, this one spans all
// markets since test/dev scale doesn't need per-market sharding).
type Store struct {
	mu         sync.RWMutex
	books      map[bookKey]*level
	records    map[[32]byte]*obstore.Record
	orderPrice map[[32]byte]uint64 // fingerprint -> price, for O(1) level lookup on removal
	userOrders map[[32]byte]map[[32]byte]struct{}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		books:      make(map[bookKey]*level),
		records:    make(map[[32]byte]*obstore.Record),
		orderPrice: make(map[[32]byte]uint64),
		userOrders: make(map[[32]byte]map[[32]byte]struct{}),
	}
}

func (s *Store) bookFor(market [32]byte, token uint8) *level {
	k := bookKey{market: market, token: token}
	lv, ok := s.books[k]
	if !ok {
		lv = newLevel()
		s.books[k] = lv
	}
	return lv
}

// Insert adds a new resting-order record to its book and user index. A
// duplicate fingerprint is a no-op, matching the CAS-free idempotent
// insert contract.
func (s *Store) Insert(_ context.Context, rec obstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.OrderHash]; exists {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	cp := rec
	s.records[rec.OrderHash] = &cp

	price := order.Price(rec.Order)
	s.orderPrice[rec.OrderHash] = price

	lv := s.bookFor(rec.Order.Market, rec.Order.TokenID)
	side := obstore.SideOf(rec.Order.Side)
	if side == obstore.SideBid {
		if _, ok := lv.bids[price]; !ok {
			heap.Push(&lv.bidHeap, price)
		}
		lv.bids[price] = append(lv.bids[price], rec.OrderHash)
	} else {
		if _, ok := lv.asks[price]; !ok {
			heap.Push(&lv.askHeap, price)
		}
		lv.asks[price] = append(lv.asks[price], rec.OrderHash)
	}

	um, ok := s.userOrders[rec.Order.Maker]
	if !ok {
		um = make(map[[32]byte]struct{})
		s.userOrders[rec.Order.Maker] = um
	}
	um[rec.OrderHash] = struct{}{}

	return nil
}

// BestN returns up to n best-priced open orders for (market, token,
// side), walking the heap root-first and draining each price level's
// FIFO queue in arrival order.
func (s *Store) BestN(_ context.Context, market [32]byte, token uint8, side obstore.Side, n int) ([]obstore.BestEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lv, ok := s.books[bookKey{market: market, token: token}]
	if !ok {
		return nil, nil
	}

	var prices []uint64
	var fifo map[uint64][][32]byte
	if side == obstore.SideBid {
		prices = append([]uint64(nil), lv.bidHeap...)
		sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })
		fifo = lv.bids
	} else {
		prices = append([]uint64(nil), lv.askHeap...)
		sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
		fifo = lv.asks
	}

	var out []obstore.BestEntry
	for _, p := range prices {
		for _, h := range fifo[p] {
			rec, ok := s.records[h]
			if !ok || rec.RemainingAmount == 0 {
				continue
			}
			out = append(out, obstore.BestEntry{
				OrderHash:       h,
				Price:           p,
				RemainingAmount: rec.RemainingAmount,
				Owner:           rec.Order.Maker,
			})
			if len(out) >= n {
				return out, nil
			}
		}
	}
	return out, nil
}

// Decrement conditionally reduces remaining by delta; it is the single
// CAS point concurrent matchers rely on. Because this store is
// single-process and mutex-guarded, the CAS is simply the critical
// section under the same lock Insert/Remove use.
func (s *Store) Decrement(_ context.Context, hash [32]byte, delta uint64) (uint64, obstore.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[hash]
	if !ok {
		return 0, "", false, order.ErrNotFound
	}
	if rec.RemainingAmount < delta {
		return rec.RemainingAmount, rec.Status, false, nil
	}

	rec.RemainingAmount -= delta
	rec.FilledAmount += delta
	switch {
	case rec.RemainingAmount == 0:
		rec.Status = obstore.StatusMatched
		s.removeFromSideLocked(rec)
	case rec.FilledAmount > 0:
		rec.Status = obstore.StatusPartial
	}

	return rec.RemainingAmount, rec.Status, true, nil
}

// removeFromSideLocked drops hash from its price-level FIFO queue and,
// if the level empties, pops the price from the heap. Caller must hold
// s.mu.
func (s *Store) removeFromSideLocked(rec *obstore.Record) {
	lv, ok := s.books[bookKey{market: rec.Order.Market, token: rec.Order.TokenID}]
	if !ok {
		return
	}
	price := s.orderPrice[rec.OrderHash]
	side := obstore.SideOf(rec.Order.Side)

	var fifo map[uint64][][32]byte
	if side == obstore.SideBid {
		fifo = lv.bids
	} else {
		fifo = lv.asks
	}

	queue := fifo[price]
	for i, h := range queue {
		if h == rec.OrderHash {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(fifo, price)
		if side == obstore.SideBid {
			removeHeapPrice(&lv.bidHeap, price)
		} else {
			removeHeapPrice(&lv.askHeap, price)
		}
	} else {
		fifo[price] = queue
	}
	delete(s.orderPrice, rec.OrderHash)
}

func removeHeapPrice(h interface{}, price uint64) {
	switch v := h.(type) {
	case *MaxPriceHeap:
		for i, p := range *v {
			if p == price {
				heap.Remove(v, i)
				return
			}
		}
	case *MinPriceHeap:
		for i, p := range *v {
			if p == price {
				heap.Remove(v, i)
				return
			}
		}
	}
}

// Remove takes an order out of its side index and the user index. If
// cancelled is true the record's status becomes "cancelled" and is
// retained; otherwise the record is deleted outright.
func (s *Store) Remove(_ context.Context, hash [32]byte, cancelled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[hash]
	if !ok {
		return nil
	}
	s.removeFromSideLocked(rec)
	if um, ok := s.userOrders[rec.Order.Maker]; ok {
		delete(um, hash)
	}

	if cancelled {
		rec.Status = obstore.StatusCancelled
	} else {
		delete(s.records, hash)
	}
	return nil
}

// Get fetches the full record for a fingerprint.
func (s *Store) Get(_ context.Context, hash [32]byte) (obstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[hash]
	if !ok {
		return obstore.Record{}, order.ErrNotFound
	}
	return *rec, nil
}

// SetStatus overwrites a record's terminal status after settlement
// succeeds or exhausts its retries. The record has already left the
// side index by the time this is called (Decrement did that on the
// transition into StatusMatched), so this only touches the record map.
func (s *Store) SetStatus(_ context.Context, hash [32]byte, status obstore.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[hash]
	if !ok {
		return order.ErrNotFound
	}
	rec.Status = status
	return nil
}

// UserOrders lists the outstanding fingerprints for a maker.
func (s *Store) UserOrders(_ context.Context, maker [32]byte) ([][32]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	um, ok := s.userOrders[maker]
	if !ok {
		return nil, nil
	}
	out := make([][32]byte, 0, len(um))
	for h := range um {
		out = append(out, h)
	}
	return out, nil
}
