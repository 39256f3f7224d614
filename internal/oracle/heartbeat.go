package oracle

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const heartbeatHistoryLimit = 10

// lastUpdate is the (timestamp, block) pair recorded on the most recent
// oracle update.
type lastUpdate struct {
	timestamp int64
	block     uint64
}

// HeartbeatPredictor predicts when the next oracle update is likely, since
// chains with no mempool give no other way to anticipate price movement.
type HeartbeatPredictor struct {
	mu                sync.RWMutex
	lastUpdates       map[common.Address]lastUpdate
	observedIntervals map[common.Address][]time.Duration
	expectedStaleness map[common.Address]time.Duration
	averageIntervals  map[common.Address]time.Duration
}

// NewHeartbeatPredictor returns a predictor seeded with each asset's
// configured staleness threshold, keyed by oracle address.
func NewHeartbeatPredictor(expectedStaleness map[common.Address]time.Duration) *HeartbeatPredictor {
	seeded := make(map[common.Address]time.Duration, len(expectedStaleness))
	for k, v := range expectedStaleness {
		seeded[k] = v
	}
	return &HeartbeatPredictor{
		lastUpdates:       make(map[common.Address]lastUpdate),
		observedIntervals: make(map[common.Address][]time.Duration),
		expectedStaleness: seeded,
		averageIntervals:  make(map[common.Address]time.Duration),
	}
}

// RecordUpdate records an oracle update, deriving the interval from the
// previous update and rolling the last-10-observation average.
func (h *HeartbeatPredictor) RecordUpdate(oracle common.Address, timestamp int64, block uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.lastUpdates[oracle]; ok {
		interval := timestamp - prev.timestamp
		if interval < 0 {
			interval = 0
		}
		h.observedIntervals[oracle] = append(h.observedIntervals[oracle], time.Duration(interval)*time.Second)
		h.updateAverageLocked(oracle)
	}

	h.lastUpdates[oracle] = lastUpdate{timestamp: timestamp, block: block}
}

// updateAverageLocked recomputes the rolling mean from the last 10
// observations. Caller must hold h.mu.
func (h *HeartbeatPredictor) updateAverageLocked(oracle common.Address) {
	intervals := h.observedIntervals[oracle]
	if len(intervals) > heartbeatHistoryLimit {
		intervals = intervals[len(intervals)-heartbeatHistoryLimit:]
		h.observedIntervals[oracle] = intervals
	}
	if len(intervals) == 0 {
		return
	}
	var total time.Duration
	for _, d := range intervals {
		total += d
	}
	h.averageIntervals[oracle] = total / time.Duration(len(intervals))
}

// effectiveIntervalLocked prefers the observed average when available,
// falling back to the configured staleness threshold.
func (h *HeartbeatPredictor) effectiveIntervalLocked(oracle common.Address) (time.Duration, bool) {
	if avg, ok := h.averageIntervals[oracle]; ok && avg > 0 {
		return avg, true
	}
	d, ok := h.expectedStaleness[oracle]
	return d, ok
}

// TimeSinceUpdate returns how long ago oracle last reported a price.
func (h *HeartbeatPredictor) TimeSinceUpdate(oracle common.Address) (time.Duration, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	last, ok := h.lastUpdates[oracle]
	if !ok {
		return 0, false
	}
	return time.Duration(time.Now().Unix()-last.timestamp) * time.Second, true
}

// StalenessPct returns elapsed time since the last update as a percentage of
// the effective interval.
func (h *HeartbeatPredictor) StalenessPct(oracle common.Address) (float64, bool) {
	elapsed, ok := h.TimeSinceUpdate(oracle)
	if !ok {
		return 0, false
	}
	h.mu.RLock()
	expected, ok := h.effectiveIntervalLocked(oracle)
	h.mu.RUnlock()
	if !ok || expected <= 0 {
		return 0, false
	}
	return elapsed.Seconds() / expected.Seconds() * 100.0, true
}

// IsStale reports whether oracle is past its expected staleness threshold.
func (h *HeartbeatPredictor) IsStale(oracle common.Address) bool {
	pct, ok := h.StalenessPct(oracle)
	return ok && pct > 100.0
}

// IsUpdateImminent reports whether the next predicted update for oracle
// falls within window from now.
func (h *HeartbeatPredictor) IsUpdateImminent(oracle common.Address, window time.Duration) bool {
	h.mu.RLock()
	last, ok := h.lastUpdates[oracle]
	if !ok {
		h.mu.RUnlock()
		return false
	}
	interval, ok := h.effectiveIntervalLocked(oracle)
	h.mu.RUnlock()
	if !ok {
		return false
	}

	nextUpdate := time.Unix(last.timestamp, 0).Add(interval)
	return !time.Now().Add(window).Before(nextUpdate)
}

// IsUpdateImminentDefault checks imminence using the default 400ms window
// (roughly two blocks on a 200ms-block chain).
func (h *HeartbeatPredictor) IsUpdateImminentDefault(oracle common.Address) bool {
	return h.IsUpdateImminent(oracle, 400*time.Millisecond)
}

// ApproachingStale returns oracles past 80% of their expected interval.
func (h *HeartbeatPredictor) ApproachingStale() []common.Address {
	h.mu.RLock()
	oracles := make([]common.Address, 0, len(h.lastUpdates))
	for o := range h.lastUpdates {
		oracles = append(oracles, o)
	}
	h.mu.RUnlock()

	var out []common.Address
	for _, o := range oracles {
		if pct, ok := h.StalenessPct(o); ok && pct > 80.0 {
			out = append(out, o)
		}
	}
	return out
}

// StaleOracles returns every oracle past its staleness threshold.
func (h *HeartbeatPredictor) StaleOracles() []common.Address {
	h.mu.RLock()
	oracles := make([]common.Address, 0, len(h.lastUpdates))
	for o := range h.lastUpdates {
		oracles = append(oracles, o)
	}
	h.mu.RUnlock()

	var out []common.Address
	for _, o := range oracles {
		if h.IsStale(o) {
			out = append(out, o)
		}
	}
	return out
}
