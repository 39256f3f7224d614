// Package oracle tracks live oracle prices, predicts heartbeat update
// timing, and monitors DualOracle tier transitions for LST assets.
package oracle

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Type tags the price-feed mechanism behind an oracle address.
type Type int

const (
	// Standard is a plain Chainlink-compatible aggregator.
	Standard Type = iota
	// RedStone is a RedStone push feed.
	RedStone
	// Pyth is a pull-based Pyth feed.
	Pyth
	// DualOracleFeed is a 3-tier Primary/Secondary/Emergency fallback feed.
	DualOracleFeed
	// PendlePT is a Pendle principal-token maturity-convergence feed.
	PendlePT
)

// Price is one write-through cache entry: the last observed value for an
// oracle, with the metadata needed to reason about staleness.
type Price struct {
	Price      *uint256.Int
	UpdatedAt  int64 // unix seconds
	Block      uint64
	OracleType Type
}

// Monitor is a lock-free-read, write-through price cache keyed by asset
// address.
type Monitor struct {
	mu     sync.RWMutex
	prices map[common.Address]Price
}

// NewMonitor returns an empty oracle price monitor.
func NewMonitor() *Monitor {
	return &Monitor{prices: make(map[common.Address]Price)}
}

// Update writes a new price observation for asset.
func (m *Monitor) Update(asset common.Address, price Price) {
	m.mu.Lock()
	m.prices[asset] = price
	m.mu.Unlock()
}

// Get returns the cached price for asset, if any.
func (m *Monitor) Get(asset common.Address) (Price, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prices[asset]
	return p, ok
}

// Snapshot returns a copy of every cached price, keyed by asset.
func (m *Monitor) Snapshot() map[common.Address]Price {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[common.Address]Price, len(m.prices))
	for k, v := range m.prices {
		out[k] = v
	}
	return out
}

// IsStale reports whether asset's cached price is older than threshold.
// Returns true if no price has ever been observed.
func (m *Monitor) IsStale(asset common.Address, threshold time.Duration) bool {
	p, ok := m.Get(asset)
	if !ok {
		return true
	}
	age := time.Since(time.Unix(p.UpdatedAt, 0))
	return age > threshold
}
