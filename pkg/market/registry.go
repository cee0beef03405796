// Package market is an in-process cache of the lookup-only markets
// table (spec.md §6): title and active status, consulted by order
// intake to reject orders against an unknown or inactive market without
// a ledger round trip on every submission.
package market

import (
	"context"
	"fmt"
	"sync"
)

// Market is a lookup-only row mirroring ledger.Market's columns.
type Market struct {
	ID     string
	Title  string
	Active bool
}

// Loader fetches the current set of markets, typically backed by
// ledger.Ledger's GORM queries.
type Loader interface {
	ListMarkets(ctx context.Context) ([]Market, error)
}

// Registry holds every known market in memory, adapted from the
// teacher's pkg/app/core/market.MarketRegistry (same RWMutex-guarded
// map-by-symbol shape) and simplified to the spec's read-only columns —
// no status-transition state machine, since markets here are never
// mutated by this module, only reflected from the ledger.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]Market
}

// NewRegistry returns an empty registry; call Refresh to populate it.
func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]Market)}
}

// Refresh replaces the registry's contents with what loader reports,
// meant to run once at startup and then on a periodic timer.
func (r *Registry) Refresh(ctx context.Context, loader Loader) error {
	markets, err := loader.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("market: refresh: %w", err)
	}

	next := make(map[string]Market, len(markets))
	for _, m := range markets {
		next[m.ID] = m
	}

	r.mu.Lock()
	r.markets = next
	r.mu.Unlock()
	return nil
}

// Get looks up a market by ID.
func (r *Registry) Get(id string) (Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	return m, ok
}

// IsActive reports whether id names a known, currently active market —
// the predicate order intake uses to accept or reject a signed order.
func (r *Registry) IsActive(id string) bool {
	m, ok := r.Get(id)
	return ok && m.Active
}

// List returns every known market.
func (r *Registry) List() []Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	return out
}

// Count reports how many markets the registry currently holds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
