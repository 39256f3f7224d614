package oracle

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DualOracleTier is one rung of the Primary/Secondary/Emergency fallback
// chain used for LST assets.
type DualOracleTier int

const (
	// Primary is the RedStone fundamental-rate feed.
	Primary DualOracleTier = iota
	// Secondary is the Chainlink fundamental-rate feed.
	Secondary
	// Emergency is the market-rate fallback feed.
	Emergency
)

func (t DualOracleTier) String() string {
	switch t {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "emergency"
	}
}

// NextTier returns the next tier in the fallback sequence, and false if t is
// already Emergency.
func (t DualOracleTier) NextTier() (DualOracleTier, bool) {
	switch t {
	case Primary:
		return Secondary, true
	case Secondary:
		return Emergency, true
	default:
		return 0, false
	}
}

// StalenessThreshold returns how long this tier tolerates going without an
// update before it is considered stale.
func (t DualOracleTier) StalenessThreshold() time.Duration {
	switch t {
	case Primary:
		return 30 * time.Minute
	case Secondary:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Priority returns the tier's fallback priority; lower is preferred.
func (t DualOracleTier) Priority() uint8 {
	return uint8(t)
}

// TierTransition describes a pending or active fallback from one DualOracle
// tier to the next.
type TierTransition struct {
	Oracle              common.Address
	From                DualOracleTier
	To                  DualOracleTier
	ExpectedPriceImpact *float64
	TimeUntil           *time.Duration // nil once already transitioning
}

// TierStaleness is the staleness state of one (oracle, tier) pair.
type TierStaleness struct {
	LastUpdate    int64
	Staleness     time.Duration
	StalenessPct  float64
	IsStale       bool
}

type tierKey struct {
	oracle common.Address
	tier   DualOracleTier
}

// DualOracleMonitor tracks which fallback tier each LST oracle currently
// reads from and flags transitions before they happen.
type DualOracleMonitor struct {
	mu            sync.RWMutex
	currentTiers  map[common.Address]DualOracleTier
	tierUpdates   map[tierKey]int64
	tierDeviation map[common.Address]float64
	dualOracles   []common.Address
}

// NewDualOracleMonitor returns a monitor for the given set of LST oracles,
// all starting on Primary.
func NewDualOracleMonitor(dualOracles []common.Address) *DualOracleMonitor {
	m := &DualOracleMonitor{
		currentTiers:  make(map[common.Address]DualOracleTier, len(dualOracles)),
		tierUpdates:   make(map[tierKey]int64),
		tierDeviation: make(map[common.Address]float64),
		dualOracles:   append([]common.Address(nil), dualOracles...),
	}
	for _, o := range dualOracles {
		m.currentTiers[o] = Primary
	}
	return m
}

// RecordTierUpdate records that a (oracle, tier) pair reported a price at
// timestamp.
func (m *DualOracleMonitor) RecordTierUpdate(oracle common.Address, tier DualOracleTier, timestamp int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tierUpdates[tierKey{oracle, tier}] = timestamp
}

// SetCurrentTier records the active tier for oracle.
func (m *DualOracleMonitor) SetCurrentTier(oracle common.Address, tier DualOracleTier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTiers[oracle] = tier
}

// CurrentTier returns the active tier for oracle, if known.
func (m *DualOracleMonitor) CurrentTier(oracle common.Address) (DualOracleTier, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.currentTiers[oracle]
	return t, ok
}

// RecordTierDeviation records the observed price deviation between tiers
// for oracle.
func (m *DualOracleMonitor) RecordTierDeviation(oracle common.Address, deviationPct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tierDeviation[oracle] = deviationPct
}

// GetTierStaleness returns staleness info for (oracle, tier), if an update
// has ever been recorded for that pair.
func (m *DualOracleMonitor) GetTierStaleness(oracle common.Address, tier DualOracleTier) (TierStaleness, bool) {
	m.mu.RLock()
	lastUpdate, ok := m.tierUpdates[tierKey{oracle, tier}]
	m.mu.RUnlock()
	if !ok {
		return TierStaleness{}, false
	}

	threshold := tier.StalenessThreshold()
	now := time.Now().Unix()
	stalenessSecs := now - lastUpdate
	if stalenessSecs < 0 {
		stalenessSecs = 0
	}
	staleness := time.Duration(stalenessSecs) * time.Second

	return TierStaleness{
		LastUpdate:   lastUpdate,
		Staleness:    staleness,
		StalenessPct: float64(stalenessSecs) / threshold.Seconds() * 100.0,
		IsStale:      staleness > threshold,
	}, true
}

// CheckTransition reports a pending or active transition for oracle, if its
// current tier has passed 80% of its staleness budget.
func (m *DualOracleMonitor) CheckTransition(oracle common.Address) (TierTransition, bool) {
	m.mu.RLock()
	current, ok := m.currentTiers[oracle]
	m.mu.RUnlock()
	if !ok {
		return TierTransition{}, false
	}
	next, ok := current.NextTier()
	if !ok {
		return TierTransition{}, false
	}

	staleness, ok := m.GetTierStaleness(oracle, current)
	if !ok {
		return TierTransition{}, false
	}

	m.mu.RLock()
	deviation, hasDeviation := m.tierDeviation[oracle]
	m.mu.RUnlock()
	var deviationPtr *float64
	if hasDeviation {
		d := deviation
		deviationPtr = &d
	}

	if staleness.IsStale {
		return TierTransition{
			Oracle:              oracle,
			From:                current,
			To:                  next,
			ExpectedPriceImpact: deviationPtr,
			TimeUntil:           nil,
		}, true
	}

	if staleness.StalenessPct > 80.0 {
		remaining := current.StalenessThreshold() - staleness.Staleness
		if remaining < 0 {
			remaining = 0
		}
		return TierTransition{
			Oracle:              oracle,
			From:                current,
			To:                  next,
			ExpectedPriceImpact: deviationPtr,
			TimeUntil:           &remaining,
		}, true
	}

	return TierTransition{}, false
}

// ApproachingTransitions returns transitions that have not yet become
// active (TimeUntil is set).
func (m *DualOracleMonitor) ApproachingTransitions() []TierTransition {
	var out []TierTransition
	for _, o := range m.oraclesSnapshot() {
		if t, ok := m.CheckTransition(o); ok && t.TimeUntil != nil {
			out = append(out, t)
		}
	}
	return out
}

// ActiveTransitions returns transitions already past their staleness
// threshold (TimeUntil is nil).
func (m *DualOracleMonitor) ActiveTransitions() []TierTransition {
	var out []TierTransition
	for _, o := range m.oraclesSnapshot() {
		if t, ok := m.CheckTransition(o); ok && t.TimeUntil == nil {
			out = append(out, t)
		}
	}
	return out
}

func (m *DualOracleMonitor) oraclesSnapshot() []common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]common.Address(nil), m.dualOracles...)
}

// Stats summarizes the distribution of oracles across tiers and how many
// are approaching or actively transitioning.
type Stats struct {
	TotalOracles          int
	OnPrimary             int
	OnSecondary           int
	OnEmergency           int
	ApproachingTransition int
	ActivelyTransitioning int
}

// Stats computes a snapshot of tier distribution across all tracked
// oracles.
func (m *DualOracleMonitor) Stats() Stats {
	m.mu.RLock()
	tiers := make(map[common.Address]DualOracleTier, len(m.currentTiers))
	for k, v := range m.currentTiers {
		tiers[k] = v
	}
	total := len(m.dualOracles)
	m.mu.RUnlock()

	s := Stats{TotalOracles: total}
	for _, t := range tiers {
		switch t {
		case Primary:
			s.OnPrimary++
		case Secondary:
			s.OnSecondary++
		case Emergency:
			s.OnEmergency++
		}
	}
	s.ApproachingTransition = len(m.ApproachingTransitions())
	s.ActivelyTransitioning = len(m.ActiveTransitions())
	return s
}
