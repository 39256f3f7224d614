// Package trigger maps each oracle asset to the set of positions that would
// cross HF=1.0 at a given price level, giving the scanner O(k) detection of
// newly liquidatable positions on every price update.
package trigger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sentinel/internal/position"
	"sentinel/pkg/fixedpoint"
)

// PriceDirection is the direction of price movement that crosses a trigger.
type PriceDirection int

const (
	// Down means a falling collateral price triggers liquidation.
	Down PriceDirection = iota
	// Up means a rising debt price triggers liquidation.
	Up
)

// Entry is one trigger price for one user on one asset.
type Entry struct {
	User         common.Address
	TriggerPrice *uint256.Int
	Direction    PriceDirection
	CurrentHF    float64
}

// IsTriggered reports whether moving from oldPrice to newPrice crosses this
// entry. Equality at the trigger price counts as crossed.
func (e Entry) IsTriggered(oldPrice, newPrice *uint256.Int) bool {
	switch e.Direction {
	case Down:
		return newPrice.Cmp(e.TriggerPrice) <= 0 && oldPrice.Cmp(e.TriggerPrice) > 0
	default: // Up
		return newPrice.Cmp(e.TriggerPrice) >= 0 && oldPrice.Cmp(e.TriggerPrice) < 0
	}
}

// DistancePct returns the signed distance, in percent, from currentPrice to
// this trigger, floored at zero (a trigger already crossed reports 0, never
// negative).
func (e Entry) DistancePct(currentPrice *uint256.Int) float64 {
	if currentPrice.IsZero() || e.TriggerPrice.IsZero() {
		return 100.0
	}

	var bps int64
	switch e.Direction {
	case Down:
		if currentPrice.Cmp(e.TriggerPrice) > 0 {
			bps = fixedpoint.PctDiffBps(currentPrice, e.TriggerPrice)
			if bps < 0 {
				bps = -bps
			}
		}
	default: // Up
		if e.TriggerPrice.Cmp(currentPrice) > 0 {
			bps = fixedpoint.PctDiffBps(currentPrice, e.TriggerPrice)
			if bps < 0 {
				bps = -bps
			}
		}
	}

	pct := float64(bps) / 100.0
	if pct < 0 {
		return 0
	}
	return pct
}

// Index maps asset address to the set of trigger entries referencing it.
type Index struct {
	mu             sync.RWMutex
	triggersByAsset map[common.Address][]Entry
}

// NewIndex returns an empty trigger index.
func NewIndex() *Index {
	return &Index{triggersByAsset: make(map[common.Address][]Entry)}
}

// GetLiquidatableAt returns the users whose trigger on asset is crossed by a
// price move from oldPrice to newPrice.
func (idx *Index) GetLiquidatableAt(asset common.Address, newPrice, oldPrice *uint256.Int) []common.Address {
	idx.mu.RLock()
	entries := idx.triggersByAsset[asset]
	idx.mu.RUnlock()

	var out []common.Address
	for _, e := range entries {
		if e.IsTriggered(oldPrice, newPrice) {
			out = append(out, e.User)
		}
	}
	return out
}

// GetAffectedUsers returns every user with a trigger referencing asset.
func (idx *Index) GetAffectedUsers(asset common.Address) []common.Address {
	idx.mu.RLock()
	entries := idx.triggersByAsset[asset]
	idx.mu.RUnlock()

	out := make([]common.Address, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.User)
	}
	return out
}

// Rebuild clears and reconstructs the entire index from positions.
func (idx *Index) Rebuild(positions []*position.TrackedPosition) {
	idx.mu.Lock()
	idx.triggersByAsset = make(map[common.Address][]Entry)
	idx.mu.Unlock()

	for _, p := range positions {
		idx.addPositionTriggers(p)
	}
}

// UpdatePosition replaces all trigger entries for pos.User with freshly
// derived ones.
func (idx *Index) UpdatePosition(pos *position.TrackedPosition) {
	idx.RemoveUser(pos.User)
	idx.addPositionTriggers(pos)
}

// RemoveUser deletes all trigger entries for user. A no-op if the user has
// none.
func (idx *Index) RemoveUser(user common.Address) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for asset, entries := range idx.triggersByAsset {
		filtered := entries[:0]
		for _, e := range entries {
			if e.User != user {
				filtered = append(filtered, e)
			}
		}
		idx.triggersByAsset[asset] = filtered
	}
}

// addPositionTriggers derives and inserts trigger entries for every
// collateral (downward trigger) and debt (upward trigger) in pos.
func (idx *Index) addPositionTriggers(pos *position.TrackedPosition) {
	var totalDebt float64
	for _, d := range pos.Debts {
		totalDebt += d.Data.ValueUSD
	}
	if totalDebt <= 0 {
		return
	}

	additions := make(map[common.Address][]Entry)

	for _, c := range pos.Collaterals {
		if !c.Data.Enabled || c.Data.ValueUSD <= 0 {
			continue
		}

		var otherCollateralAdjusted float64
		for _, other := range pos.Collaterals {
			if other.Asset != c.Asset && other.Data.Enabled {
				otherCollateralAdjusted += other.Data.RiskAdjustedValue()
			}
		}

		requiredValue := totalDebt - otherCollateralAdjusted
		if requiredValue <= 0 {
			continue
		}

		amountFloat := fixedpoint.ToFloat(c.Data.Amount)
		lt := c.Data.LTDecimal()
		if amountFloat <= 0 || lt <= 0 {
			continue
		}

		decimalsScale := pow10Float(int(c.Data.Decimals))
		triggerPriceFloat := requiredValue * 1e8 * decimalsScale / (amountFloat * lt)
		if !validTriggerPrice(triggerPriceFloat) {
			continue
		}

		entry := Entry{
			User:         pos.User,
			TriggerPrice: fixedpoint.FloatToU256(triggerPriceFloat),
			Direction:    Down,
			CurrentHF:    pos.HealthFactor,
		}
		additions[c.Asset] = append(additions[c.Asset], entry)
	}

	for _, d := range pos.Debts {
		if d.Data.ValueUSD <= 0 {
			continue
		}

		var totalCollateralAdjusted float64
		for _, c := range pos.Collaterals {
			if c.Data.Enabled {
				totalCollateralAdjusted += c.Data.RiskAdjustedValue()
			}
		}

		var otherDebt float64
		for _, other := range pos.Debts {
			if other.Asset != d.Asset {
				otherDebt += other.Data.ValueUSD
			}
		}

		triggerDebtValue := totalCollateralAdjusted - otherDebt
		if triggerDebtValue <= 0 {
			continue
		}

		amountWad := new(uint256.Int).Mul(d.Data.Amount, fixedpoint.Pow10(18-int(d.Data.Decimals)))
		amountFloat := fixedpoint.WadToFloat(amountWad)
		if amountFloat <= 0 {
			continue
		}

		decimalsScale := pow10Float(int(d.Data.Decimals))
		triggerPriceFloat := triggerDebtValue * 1e8 * decimalsScale / amountFloat
		if !validTriggerPrice(triggerPriceFloat) {
			continue
		}

		entry := Entry{
			User:         pos.User,
			TriggerPrice: fixedpoint.FloatToU256(triggerPriceFloat),
			Direction:    Up,
			CurrentHF:    pos.HealthFactor,
		}
		additions[d.Asset] = append(additions[d.Asset], entry)
	}

	if len(additions) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for asset, entries := range additions {
		idx.triggersByAsset[asset] = append(idx.triggersByAsset[asset], entries...)
	}
}

// Len returns the total number of trigger entries across all assets.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	total := 0
	for _, entries := range idx.triggersByAsset {
		total += len(entries)
	}
	return total
}

// IsEmpty reports whether the index has no entries.
func (idx *Index) IsEmpty() bool {
	return idx.Len() == 0
}

// AssetCount returns the number of distinct assets carrying at least one
// trigger entry.
func (idx *Index) AssetCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.triggersByAsset)
}

func validTriggerPrice(v float64) bool {
	return v > 0 && !isNaNOrInf(v)
}

func isNaNOrInf(v float64) bool {
	return v != v || v > 1e300 || v < -1e300
}

func pow10Float(exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= 10
	}
	return result
}

