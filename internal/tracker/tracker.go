// Package tracker holds the tiered position store: per-tier buckets, reverse
// indices for fast asset-affected lookups, and the pass-through price and
// staged-transaction caches the scanner reads on every cycle.
package tracker

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"sentinel/internal/oracle"
	"sentinel/internal/position"
	"sentinel/internal/trigger"
)

// CriticalCap is the maximum number of positions held in the Critical tier
// before overflow spills into Hot.
const CriticalCap = 64

// StagedTx is the minimal surface the tracker needs from a staged
// liquidation; package prestage holds the concrete type.
type StagedTx interface {
	IsValid() bool
}

// Tracker is the tiered position store for every monitored borrower.
type Tracker struct {
	mu sync.RWMutex

	critical []*position.TrackedPosition
	hot      map[common.Address]*position.TrackedPosition
	warm     map[common.Address]*position.TrackedPosition
	cold     map[common.Address]*position.TrackedPosition

	// collateralHolders/debtHolders map an asset to the set of users whose
	// position references it, for O(1) "who does this price move affect".
	collateralHolders map[common.Address]map[common.Address]struct{}
	debtHolders       map[common.Address]map[common.Address]struct{}

	prices  *oracle.Monitor
	trigger *trigger.Index

	thresholds position.TierThresholds

	stagedMu sync.RWMutex
	staged   map[common.Address]StagedTx
}

// New returns an empty tracker wired to the given price cache and trigger
// index.
func New(prices *oracle.Monitor, triggerIndex *trigger.Index) *Tracker {
	return &Tracker{
		hot:               make(map[common.Address]*position.TrackedPosition),
		warm:              make(map[common.Address]*position.TrackedPosition),
		cold:              make(map[common.Address]*position.TrackedPosition),
		collateralHolders: make(map[common.Address]map[common.Address]struct{}),
		debtHolders:       make(map[common.Address]map[common.Address]struct{}),
		prices:            prices,
		trigger:           triggerIndex,
		thresholds:        position.DefaultTierThresholds(),
		staged:            make(map[common.Address]StagedTx),
	}
}

// tierBucket returns the map a non-Critical tier lives in.
func (t *Tracker) tierBucket(tier position.Tier) map[common.Address]*position.TrackedPosition {
	switch tier {
	case position.Hot:
		return t.hot
	case position.Warm:
		return t.warm
	default:
		return t.cold
	}
}

// Upsert inserts or replaces pos, placing it in the tier bucket implied by
// pos.Tier. A position classified Critical overflows into Hot once the
// Critical bucket is full, oldest-inserted-first.
func (t *Tracker) Upsert(pos *position.TrackedPosition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removeLocked(pos.User)

	if pos.Tier == position.Critical {
		if len(t.critical) >= CriticalCap {
			overflow := t.critical[0]
			t.critical = t.critical[1:]
			overflow.Tier = position.Hot
			t.hot[overflow.User] = overflow
		}
		t.critical = append(t.critical, pos)
	} else {
		t.tierBucket(pos.Tier)[pos.User] = pos
	}

	t.updateReverseIndicesLocked(pos)
	t.trigger.UpdatePosition(pos)
}

// Remove deletes user from every tier bucket and reverse index.
func (t *Tracker) Remove(user common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(user)
	t.trigger.RemoveUser(user)
}

func (t *Tracker) removeLocked(user common.Address) {
	for i, p := range t.critical {
		if p.User == user {
			t.critical = append(t.critical[:i], t.critical[i+1:]...)
			break
		}
	}
	delete(t.hot, user)
	delete(t.warm, user)
	delete(t.cold, user)

	for _, holders := range t.collateralHolders {
		delete(holders, user)
	}
	for _, holders := range t.debtHolders {
		delete(holders, user)
	}
}

// Get returns the tracked position for user, searching Critical first.
func (t *Tracker) Get(user common.Address) (*position.TrackedPosition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.critical {
		if p.User == user {
			return p, true
		}
	}
	if p, ok := t.hot[user]; ok {
		return p, true
	}
	if p, ok := t.warm[user]; ok {
		return p, true
	}
	if p, ok := t.cold[user]; ok {
		return p, true
	}
	return nil, false
}

// GetTier returns which tier bucket currently holds user.
func (t *Tracker) GetTier(user common.Address) (position.Tier, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.critical {
		if p.User == user {
			return position.Critical, true
		}
	}
	if _, ok := t.hot[user]; ok {
		return position.Hot, true
	}
	if _, ok := t.warm[user]; ok {
		return position.Warm, true
	}
	if _, ok := t.cold[user]; ok {
		return position.Cold, true
	}
	return 0, false
}

// ReTier moves user into newTier if it is not already there, respecting the
// Critical overflow rule.
func (t *Tracker) ReTier(user common.Address, newTier position.Tier) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.findLocked(user)
	if !ok || current.Tier == newTier {
		return false
	}

	t.removeLocked(user)
	current.Tier = newTier

	if newTier == position.Critical {
		if len(t.critical) >= CriticalCap {
			overflow := t.critical[0]
			t.critical = t.critical[1:]
			overflow.Tier = position.Hot
			t.hot[overflow.User] = overflow
		}
		t.critical = append(t.critical, current)
	} else {
		t.tierBucket(newTier)[user] = current
	}

	t.updateReverseIndicesLocked(current)
	return true
}

func (t *Tracker) findLocked(user common.Address) (*position.TrackedPosition, bool) {
	for _, p := range t.critical {
		if p.User == user {
			return p, true
		}
	}
	if p, ok := t.hot[user]; ok {
		return p, true
	}
	if p, ok := t.warm[user]; ok {
		return p, true
	}
	if p, ok := t.cold[user]; ok {
		return p, true
	}
	return nil, false
}

// CriticalPositions returns every Critical-tier position.
func (t *Tracker) CriticalPositions() []*position.TrackedPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*position.TrackedPosition(nil), t.critical...)
}

// HotPositions returns every Hot-tier position.
func (t *Tracker) HotPositions() []*position.TrackedPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return mapValues(t.hot)
}

// WarmPositions returns every Warm-tier position.
func (t *Tracker) WarmPositions() []*position.TrackedPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return mapValues(t.warm)
}

// ColdPositions returns every Cold-tier position.
func (t *Tracker) ColdPositions() []*position.TrackedPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return mapValues(t.cold)
}

// AllPositions returns every tracked position across all tiers.
func (t *Tracker) AllPositions() []*position.TrackedPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := append([]*position.TrackedPosition(nil), t.critical...)
	out = append(out, mapValues(t.hot)...)
	out = append(out, mapValues(t.warm)...)
	out = append(out, mapValues(t.cold)...)
	return out
}

func mapValues(m map[common.Address]*position.TrackedPosition) []*position.TrackedPosition {
	out := make([]*position.TrackedPosition, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// UsersWithCollateral returns every user holding asset as collateral.
func (t *Tracker) UsersWithCollateral(asset common.Address) []common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return setKeys(t.collateralHolders[asset])
}

// UsersWithDebt returns every user holding asset as debt.
func (t *Tracker) UsersWithDebt(asset common.Address) []common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return setKeys(t.debtHolders[asset])
}

// UsersAffectedByAsset returns the union of collateral and debt holders for
// asset, the set a price move on that asset needs to re-evaluate.
func (t *Tracker) UsersAffectedByAsset(asset common.Address) []common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[common.Address]struct{})
	for u := range t.collateralHolders[asset] {
		seen[u] = struct{}{}
	}
	for u := range t.debtHolders[asset] {
		seen[u] = struct{}{}
	}
	return setKeys(seen)
}

func setKeys(m map[common.Address]struct{}) []common.Address {
	out := make([]common.Address, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// updateReverseIndicesLocked rebuilds the collateral/debt holder sets for
// pos.User from its current composition. Caller must hold t.mu.
func (t *Tracker) updateReverseIndicesLocked(pos *position.TrackedPosition) {
	for _, holders := range t.collateralHolders {
		delete(holders, pos.User)
	}
	for _, holders := range t.debtHolders {
		delete(holders, pos.User)
	}

	for _, c := range pos.Collaterals {
		holders, ok := t.collateralHolders[c.Asset]
		if !ok {
			holders = make(map[common.Address]struct{})
			t.collateralHolders[c.Asset] = holders
		}
		holders[pos.User] = struct{}{}
	}
	for _, d := range pos.Debts {
		holders, ok := t.debtHolders[d.Asset]
		if !ok {
			holders = make(map[common.Address]struct{})
			t.debtHolders[d.Asset] = holders
		}
		holders[pos.User] = struct{}{}
	}
}

// UpdatePrice forwards a price observation to the shared oracle cache.
func (t *Tracker) UpdatePrice(asset common.Address, price oracle.Price) {
	t.prices.Update(asset, price)
}

// GetPrice returns the cached price for asset, if any.
func (t *Tracker) GetPrice(asset common.Address) (oracle.Price, bool) {
	return t.prices.Get(asset)
}

// Prices returns a snapshot of every cached price.
func (t *Tracker) Prices() map[common.Address]oracle.Price {
	return t.prices.Snapshot()
}

// TriggerIndex returns the shared trigger index.
func (t *Tracker) TriggerIndex() *trigger.Index {
	return t.trigger
}

// StageTx records a staged liquidation for user.
func (t *Tracker) StageTx(user common.Address, tx StagedTx) {
	t.stagedMu.Lock()
	defer t.stagedMu.Unlock()
	t.staged[user] = tx
}

// GetStagedTx returns the staged liquidation for user, if any.
func (t *Tracker) GetStagedTx(user common.Address) (StagedTx, bool) {
	t.stagedMu.RLock()
	defer t.stagedMu.RUnlock()
	tx, ok := t.staged[user]
	return tx, ok
}

// RemoveStagedTx deletes the staged liquidation for user, if any.
func (t *Tracker) RemoveStagedTx(user common.Address) {
	t.stagedMu.Lock()
	defer t.stagedMu.Unlock()
	delete(t.staged, user)
}

// InvalidateStaged drops every staged liquidation that is no longer valid.
func (t *Tracker) InvalidateStaged() int {
	t.stagedMu.Lock()
	defer t.stagedMu.Unlock()
	removed := 0
	for user, tx := range t.staged {
		if !tx.IsValid() {
			delete(t.staged, user)
			removed++
		}
	}
	return removed
}

// Stats summarizes per-tier population and cache sizes.
type Stats struct {
	CriticalCount int
	HotCount      int
	WarmCount     int
	ColdCount     int
	StagedCount   int
	TriggerCount  int
	PriceCount    int
}

// TotalPositions returns the sum of every tier's population.
func (s Stats) TotalPositions() int {
	return s.CriticalCount + s.HotCount + s.WarmCount + s.ColdCount
}

// Stats computes a fresh snapshot of tracker population and cache sizes.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	s := Stats{
		CriticalCount: len(t.critical),
		HotCount:      len(t.hot),
		WarmCount:     len(t.warm),
		ColdCount:     len(t.cold),
	}
	t.mu.RUnlock()

	t.stagedMu.RLock()
	s.StagedCount = len(t.staged)
	t.stagedMu.RUnlock()

	s.TriggerCount = t.trigger.Len()
	s.PriceCount = len(t.prices.Snapshot())
	return s
}

// RebuildTriggerIndex rederives the entire trigger index from current
// positions, used after a bulk re-classification or at startup.
func (t *Tracker) RebuildTriggerIndex() {
	t.trigger.Rebuild(t.AllPositions())
}
