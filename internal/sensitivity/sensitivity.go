// Package sensitivity computes a linear dHF/d(%price) approximation per
// position so the scanner can estimate health factor in nanoseconds instead
// of re-running the full collateral/debt sum on every price tick.
package sensitivity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sentinel/internal/oracle"
	"sentinel/internal/position"
	"sentinel/pkg/fixedpoint"
)

// coefficient is one asset's contribution to dHF/d(%price).
type coefficient struct {
	asset common.Address
	value float64
}

// snapshotPrice pairs an asset with the oracle price observed when the
// sensitivity was computed.
type snapshotPrice struct {
	asset common.Address
	price *uint256.Int
}

// PositionSensitivity holds pre-computed per-asset HF coefficients for one
// user, valid until the underlying prices drift too far.
type PositionSensitivity struct {
	User           common.Address
	BaseHF         float64
	coefficients   []coefficient
	priceSnapshot  []snapshotPrice
	ComputedAt     time.Time
}

// IsComputed reports whether this sensitivity carries any coefficients,
// satisfying position.Sensitivity.
func (s *PositionSensitivity) IsComputed() bool {
	return s != nil && len(s.coefficients) > 0
}

// Compute derives sensitivity coefficients for pos from its current
// collateral/debt composition and the live prices cache.
func Compute(pos *position.TrackedPosition, prices *oracle.Monitor) *PositionSensitivity {
	var totalDebt float64
	for _, d := range pos.Debts {
		totalDebt += d.Data.ValueUSD
	}

	out := &PositionSensitivity{
		User:       pos.User,
		BaseHF:     pos.HealthFactor,
		ComputedAt: time.Now(),
	}

	if totalDebt <= 0 {
		return out
	}

	for _, c := range pos.Collaterals {
		if !c.Data.Enabled {
			continue
		}
		sens := (c.Data.ValueUSD * c.Data.LTDecimal()) / totalDebt / 100.0
		out.coefficients = append(out.coefficients, coefficient{asset: c.Asset, value: sens})
		if p, ok := prices.Get(c.Asset); ok {
			out.priceSnapshot = append(out.priceSnapshot, snapshotPrice{asset: c.Asset, price: p.Price})
		}
	}

	for _, d := range pos.Debts {
		sens := -pos.HealthFactor * d.Data.ValueUSD / totalDebt / 100.0

		merged := false
		for i := range out.coefficients {
			if out.coefficients[i].asset == d.Asset {
				out.coefficients[i].value += sens
				merged = true
				break
			}
		}
		if !merged {
			out.coefficients = append(out.coefficients, coefficient{asset: d.Asset, value: sens})
			if p, ok := prices.Get(d.Asset); ok {
				out.priceSnapshot = append(out.priceSnapshot, snapshotPrice{asset: d.Asset, price: p.Price})
			}
		}
	}

	return out
}

// PriceChange is a percentage move in one asset's price, used as input to
// EstimateHF.
type PriceChange struct {
	Asset      common.Address
	PctChange  float64
}

// EstimateHF applies the linear coefficients to a set of percentage price
// changes and returns the estimated health factor.
func (s *PositionSensitivity) EstimateHF(changes []PriceChange) float64 {
	hf := s.BaseHF
	for _, change := range changes {
		for _, c := range s.coefficients {
			if c.asset == change.Asset {
				hf += c.value * change.PctChange
				break
			}
		}
	}
	return hf
}

// NewPrice is an absolute oracle price used as input to
// EstimateHFFromPrices.
type NewPrice struct {
	Asset common.Address
	Price *uint256.Int
}

// EstimateHFFromPrices converts absolute new prices to percentage changes
// against the stored snapshot, then delegates to EstimateHF.
func (s *PositionSensitivity) EstimateHFFromPrices(newPrices []NewPrice) float64 {
	var changes []PriceChange
	for _, np := range newPrices {
		oldPrice, ok := s.snapshotPriceFor(np.Asset)
		if !ok || oldPrice.IsZero() {
			continue
		}
		bps := fixedpoint.PctDiffBps(oldPrice, np.Price)
		changes = append(changes, PriceChange{Asset: np.Asset, PctChange: float64(bps) / 100.0})
	}
	return s.EstimateHF(changes)
}

func (s *PositionSensitivity) snapshotPriceFor(asset common.Address) (*uint256.Int, bool) {
	for _, sp := range s.priceSnapshot {
		if sp.asset == asset {
			return sp.price, true
		}
	}
	return nil, false
}

// IsStale reports whether any snapshot price has drifted more than
// thresholdPct from the live cache.
func (s *PositionSensitivity) IsStale(prices *oracle.Monitor, thresholdPct float64) bool {
	thresholdBps := int64(thresholdPct * 100.0)
	for _, sp := range s.priceSnapshot {
		if sp.price.IsZero() {
			continue
		}
		current, ok := prices.Get(sp.asset)
		if !ok {
			continue
		}
		drift := fixedpoint.PctDiffBps(sp.price, current.Price)
		if drift < 0 {
			drift = -drift
		}
		if drift > thresholdBps {
			return true
		}
	}
	return false
}

// MostSensitiveAsset returns the asset with the largest-magnitude
// coefficient.
func (s *PositionSensitivity) MostSensitiveAsset() (common.Address, float64, bool) {
	var best coefficient
	found := false
	for _, c := range s.coefficients {
		if !found || absf(c.value) > absf(best.value) {
			best = c
			found = true
		}
	}
	return best.asset, best.value, found
}

// CriticalAssets returns assets whose own move, within maxMovePct, would
// push HF below 1.0 — "what move kills this position".
func (s *PositionSensitivity) CriticalAssets(maxMovePct float64) []PriceChange {
	threshold := 1.0 - s.BaseHF

	var out []PriceChange
	for _, c := range s.coefficients {
		if c.value == 0 {
			continue
		}
		requiredMove := threshold / c.value
		if absf(requiredMove) <= maxMovePct {
			out = append(out, PriceChange{Asset: c.asset, PctChange: requiredMove})
		}
	}
	return out
}

// Age returns how long ago this sensitivity was computed.
func (s *PositionSensitivity) Age() time.Duration {
	return time.Since(s.ComputedAt)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
