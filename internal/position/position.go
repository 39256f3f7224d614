// Package position holds the per-user data model the rest of the engine
// tracks: assets, collateral/debt entries, and the tiered tracked position
// they compose into.
package position

import (
	"hash/fnv"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sentinel/pkg/fixedpoint"
)

// Tier is the urgency classification of a tracked position.
type Tier int

const (
	// Cold positions are far from liquidation; refreshed infrequently.
	Cold Tier = iota
	// Warm positions get periodic trigger re-derivation.
	Warm
	// Hot positions get periodic sensitivity refresh and swap-route caching.
	Hot
	// Critical positions are pre-staged and refreshed on the tightest cadence.
	Critical
)

func (t Tier) String() string {
	switch t {
	case Critical:
		return "critical"
	case Hot:
		return "hot"
	case Warm:
		return "warm"
	default:
		return "cold"
	}
}

// TierThresholds configures the HF and trigger-distance cutoffs used to
// classify a position into a tier.
type TierThresholds struct {
	CriticalHF              float64
	HotHF                   float64
	WarmHF                  float64
	CriticalTriggerDistance float64
	HotTriggerDistance      float64
	WarmTriggerDistance     float64
}

// DefaultTierThresholds returns the spec's default tier cutoffs.
func DefaultTierThresholds() TierThresholds {
	return TierThresholds{
		CriticalHF:              1.02,
		HotHF:                   1.08,
		WarmHF:                  1.15,
		CriticalTriggerDistance: 1.0,
		HotTriggerDistance:      3.0,
		WarmTriggerDistance:     7.0,
	}
}

// TierIntervals configures the re-evaluation cadence per tier.
type TierIntervals struct {
	Critical time.Duration
	Hot      time.Duration
	Warm     time.Duration
	Cold     time.Duration
}

// DefaultTierIntervals returns the spec's default per-tier cadences.
func DefaultTierIntervals() TierIntervals {
	return TierIntervals{
		Critical: 100 * time.Millisecond,
		Hot:      500 * time.Millisecond,
		Warm:     2 * time.Second,
		Cold:     10 * time.Second,
	}
}

// ClassifyByHF returns the tier implied solely by health factor.
func ClassifyByHF(hf float64, t TierThresholds) Tier {
	switch {
	case hf < t.CriticalHF:
		return Critical
	case hf < t.HotHF:
		return Hot
	case hf < t.WarmHF:
		return Warm
	default:
		return Cold
	}
}

// ClassifyByTriggerDistance returns the tier implied solely by the minimum
// trigger distance percentage.
func ClassifyByTriggerDistance(distancePct float64, t TierThresholds) Tier {
	switch {
	case distancePct < t.CriticalTriggerDistance:
		return Critical
	case distancePct < t.HotTriggerDistance:
		return Hot
	case distancePct < t.WarmTriggerDistance:
		return Warm
	default:
		return Cold
	}
}

// Classify returns the more urgent of the HF-based and trigger-distance-based
// classifications.
func Classify(hf, triggerDistancePct float64, t TierThresholds) Tier {
	byHF := ClassifyByHF(hf, t)
	byTrigger := ClassifyByTriggerDistance(triggerDistancePct, t)
	if byHF > byTrigger {
		return byHF
	}
	return byTrigger
}

// UpdateInterval returns how often a position in this tier should be
// re-evaluated.
func (t Tier) UpdateInterval(intervals TierIntervals) time.Duration {
	switch t {
	case Critical:
		return intervals.Critical
	case Hot:
		return intervals.Hot
	case Warm:
		return intervals.Warm
	default:
		return intervals.Cold
	}
}

// ShouldPreStage reports whether positions in this tier get pre-built
// liquidation calldata.
func (t Tier) ShouldPreStage() bool {
	return t == Critical
}

// ShouldCacheSwaps reports whether positions in this tier keep a cached
// swap route warm.
func (t Tier) ShouldCacheSwaps() bool {
	return t == Critical || t == Hot
}

// CollateralData is a single collateral entry within a tracked position.
type CollateralData struct {
	Asset                common.Address
	Amount               *uint256.Int
	Price                *uint256.Int
	Decimals             uint8
	ValueUSD             float64
	LiquidationThreshold uint16 // basis points, e.g. 8000 = 80%
	Enabled              bool
}

// LTDecimal returns the liquidation threshold as a fraction, e.g. 0.80.
func (c CollateralData) LTDecimal() float64 {
	return float64(c.LiquidationThreshold) / 10000.0
}

// RiskAdjustedValue returns value_usd * LT.
func (c CollateralData) RiskAdjustedValue() float64 {
	return c.ValueUSD * c.LTDecimal()
}

// CalculateUSDValue computes the USD float value of an amount at a price,
// for display and aggregate math; hot-path gating uses fixedpoint directly.
func CalculateUSDValue(amount, price *uint256.Int, decimals uint8) float64 {
	return fixedpoint.UsdFloat(amount, price, decimals)
}

// DebtData is a single debt entry within a tracked position.
type DebtData struct {
	Asset    common.Address
	Amount   *uint256.Int
	Price    *uint256.Int
	Decimals uint8
	ValueUSD float64
}

// TrackedPosition is the full monitored state for one borrower.
type TrackedPosition struct {
	User                  common.Address
	HealthFactor          float64
	Tier                  Tier
	MinTriggerDistancePct float64
	Collaterals           []CollateralAt
	Debts                 []DebtAt
	Sensitivity           Sensitivity
	LastUpdated           time.Time
	StateHash             uint64
}

// CollateralAt pairs an asset address with its collateral entry, mirroring
// the original (asset, data) tuple shape.
type CollateralAt struct {
	Asset common.Address
	Data  CollateralData
}

// DebtAt pairs an asset address with its debt entry.
type DebtAt struct {
	Asset common.Address
	Data  DebtData
}

// Sensitivity is the minimal surface position needs from the sensitivity
// estimator; the concrete type lives in package sensitivity and embeds this
// via composition at the call sites that need the full API.
type Sensitivity interface {
	IsComputed() bool
}

// New returns an empty tracked position for user, with HF seeded at
// +infinity (no debt yet observed) and tier Cold.
func New(user common.Address) *TrackedPosition {
	return &TrackedPosition{
		User:                  user,
		HealthFactor:          math.MaxFloat64,
		Tier:                  Cold,
		MinTriggerDistancePct: 100.0,
		LastUpdated:           time.Now(),
	}
}

// CalculateHealthFactor recomputes HF from enabled collaterals and debts.
// Returns +infinity when total debt is zero.
func (p *TrackedPosition) CalculateHealthFactor() float64 {
	var totalCollateralAdjusted float64
	for _, c := range p.Collaterals {
		if c.Data.Enabled {
			totalCollateralAdjusted += c.Data.RiskAdjustedValue()
		}
	}

	var totalDebt float64
	for _, d := range p.Debts {
		totalDebt += d.Data.ValueUSD
	}

	if totalDebt == 0 {
		return math.MaxFloat64
	}
	return totalCollateralAdjusted / totalDebt
}

// TotalCollateralUSD sums all collateral USD values, enabled or not.
func (p *TrackedPosition) TotalCollateralUSD() float64 {
	var total float64
	for _, c := range p.Collaterals {
		total += c.Data.ValueUSD
	}
	return total
}

// TotalDebtUSD sums all debt USD values.
func (p *TrackedPosition) TotalDebtUSD() float64 {
	var total float64
	for _, d := range p.Debts {
		total += d.Data.ValueUSD
	}
	return total
}

// IsLiquidatable reports HF < 1.0.
func (p *TrackedPosition) IsLiquidatable() bool {
	return p.HealthFactor < 1.0
}

// BadDebtConfig configures the thresholds IsBadDebt checks.
type BadDebtConfig struct {
	DustThresholdUSD  float64
	BadDebtHFThreshold float64
}

// DefaultBadDebtConfig returns the spec's default bad-debt thresholds.
func DefaultBadDebtConfig() BadDebtConfig {
	return BadDebtConfig{DustThresholdUSD: 0.10, BadDebtHFThreshold: 0.01}
}

// IsBadDebt reports whether this position should never be staged or
// dispatched for liquidation: dust collateral, already-bad HF,
// self-collateralization, or largest collateral == largest debt asset.
func (p *TrackedPosition) IsBadDebt(cfg BadDebtConfig) bool {
	if p.TotalCollateralUSD() < cfg.DustThresholdUSD {
		return true
	}
	if p.HealthFactor < cfg.BadDebtHFThreshold {
		return true
	}
	if len(p.Collaterals) == 1 && len(p.Debts) == 1 && p.Collaterals[0].Asset == p.Debts[0].Asset {
		return true
	}
	lc, okC := p.LargestCollateral()
	ld, okD := p.LargestDebt()
	if okC && okD && lc.Asset == ld.Asset {
		return true
	}
	return false
}

// LargestCollateral returns the enabled collateral entry with the highest
// USD value.
func (p *TrackedPosition) LargestCollateral() (CollateralAt, bool) {
	var best CollateralAt
	found := false
	for _, c := range p.Collaterals {
		if !c.Data.Enabled {
			continue
		}
		if !found || c.Data.ValueUSD > best.Data.ValueUSD {
			best = c
			found = true
		}
	}
	return best, found
}

// LargestDebt returns the debt entry with the highest USD value.
func (p *TrackedPosition) LargestDebt() (DebtAt, bool) {
	var best DebtAt
	found := false
	for _, d := range p.Debts {
		if !found || d.Data.ValueUSD > best.Data.ValueUSD {
			best = d
			found = true
		}
	}
	return best, found
}

// ComputeStateHash fingerprints (asset, amount) pairs across collaterals and
// debts so callers can detect balance changes cheaply.
func (p *TrackedPosition) ComputeStateHash() uint64 {
	h := fnv.New64a()
	for _, c := range p.Collaterals {
		h.Write(c.Asset.Bytes())
		h.Write([]byte(c.Data.Amount.Dec()))
	}
	for _, d := range p.Debts {
		h.Write(d.Asset.Bytes())
		h.Write([]byte(d.Data.Amount.Dec()))
	}
	return h.Sum64()
}

// UpdateTier recomputes Tier from the current HealthFactor and
// MinTriggerDistancePct.
func (p *TrackedPosition) UpdateTier(thresholds TierThresholds) {
	p.Tier = Classify(p.HealthFactor, p.MinTriggerDistancePct, thresholds)
}

// NeedsUpdate reports whether this position's tier-driven refresh interval
// has elapsed since LastUpdated.
func (p *TrackedPosition) NeedsUpdate(intervals TierIntervals) bool {
	return time.Since(p.LastUpdated) >= p.Tier.UpdateInterval(intervals)
}
