// Package marketstate holds the shared market state written by the feed
// ingestors and read by the coordinator. It is the only structure touched by
// more than one goroutine: each per-asset price ring and per-contract odds
// trail has exactly one writer (its owning ingestor) and its own narrow lock,
// so ingestion never serializes against evaluation.
package marketstate

import (
	"sync"
	"time"

	"github.com/strikelab/strikebot/internal/domain"
)

// Store holds bounded rolling price history per tracked asset and a bounded
// odds trail per tracked contract. Capacities are fixed at construction;
// eviction is FIFO by time.
type Store struct {
	priceCap int
	oddsCap  int

	mu     sync.RWMutex // guards the maps only, never held during ring I/O
	prices map[string]*priceRing
	odds   map[string]*oddsTrail
}

// NewStore creates a Store with the given per-asset price capacity and
// per-contract odds capacity. The price capacity should cover the volatility
// window at one sample per second (e.g. 900 for a 15-minute ring).
func NewStore(priceCap, oddsCap int, assets []string) *Store {
	s := &Store{
		priceCap: priceCap,
		oddsCap:  oddsCap,
		prices:   make(map[string]*priceRing, len(assets)),
		odds:     make(map[string]*oddsTrail),
	}
	for _, a := range assets {
		s.prices[a] = newPriceRing(priceCap)
	}
	return s
}

// RecordPrice appends a price sample to the asset's ring. Unknown assets are
// ignored: the tracked asset set is fixed at construction.
func (s *Store) RecordPrice(asset string, ts time.Time, price float64) {
	s.mu.RLock()
	ring := s.prices[asset]
	s.mu.RUnlock()
	if ring == nil {
		return
	}
	ring.append(domain.PriceSample{Time: ts, Price: price})
}

// RecordOdds appends an odds sample to the contract's trail. The trail must
// have been registered via TrackContract first.
func (s *Store) RecordOdds(conditionID string, ts time.Time, yesAsk, noAsk float64) {
	s.mu.RLock()
	trail := s.odds[conditionID]
	s.mu.RUnlock()
	if trail == nil {
		return
	}
	trail.append(domain.OddsSample{Time: ts, YesAsk: yesAsk, NoAsk: noAsk})
}

// TrackContract registers an odds trail for the contract. Idempotent.
func (s *Store) TrackContract(conditionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.odds[conditionID]; !ok {
		s.odds[conditionID] = newOddsTrail(s.oddsCap)
	}
}

// DropContract removes the contract's odds trail after terminal processing.
func (s *Store) DropContract(conditionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.odds, conditionID)
}

// PriceSnapshot returns an immutable copy of the asset's price state. The
// copy is internally consistent: it reflects all writes up to a single point.
func (s *Store) PriceSnapshot(asset string) domain.PriceSnapshot {
	s.mu.RLock()
	ring := s.prices[asset]
	s.mu.RUnlock()

	snap := domain.PriceSnapshot{Asset: asset}
	if ring == nil {
		return snap
	}
	snap.History = ring.snapshot()
	if n := len(snap.History); n > 0 {
		snap.Last = snap.History[n-1]
	}
	return snap
}

// OddsSnapshot returns an immutable copy of the contract's odds trail.
func (s *Store) OddsSnapshot(conditionID string) domain.OddsSnapshot {
	s.mu.RLock()
	trail := s.odds[conditionID]
	s.mu.RUnlock()

	snap := domain.OddsSnapshot{ConditionID: conditionID}
	if trail == nil {
		return snap
	}
	snap.Samples = trail.snapshot()
	return snap
}

// LatestPrice returns the freshest price sample for the asset.
func (s *Store) LatestPrice(asset string) (domain.PriceSample, bool) {
	s.mu.RLock()
	ring := s.prices[asset]
	s.mu.RUnlock()
	if ring == nil {
		return domain.PriceSample{}, false
	}
	return ring.last()
}

// TrackedContracts returns the IDs of every contract with a registered trail.
func (s *Store) TrackedContracts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.odds))
	for id := range s.odds {
		out = append(out, id)
	}
	return out
}
