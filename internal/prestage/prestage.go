// Package prestage builds and maintains ready-to-send liquidation calldata
// for Critical-tier positions ahead of time, so the scanner can fire a
// liquidation the instant a trigger crosses instead of building the
// transaction on the hot path.
package prestage

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sentinel/internal/swaprouter"
	"sentinel/pkg/fixedpoint"
)

// PriceDeviationExceedsBps reports whether newPrice has drifted from
// oldPrice by more than thresholdBps. A zero old or new price is always
// treated as deviated/stale, since there is nothing meaningful to compare
// against.
func PriceDeviationExceedsBps(oldPrice, newPrice *uint256.Int, thresholdBps int64) bool {
	if oldPrice.IsZero() || newPrice.IsZero() {
		return true
	}
	return fixedpoint.PriceDeviationExceedsBps(oldPrice, newPrice, uint16(thresholdBps))
}

// StagedLiquidation is a pre-built liquidation ready to send, valid until it
// expires, its position changes, or its staged prices drift too far.
type StagedLiquidation struct {
	User              common.Address
	CollateralAsset   common.Address
	DebtAsset         common.Address
	DebtToCover       *uint256.Int
	ExpectedProfitUSD float64
	Calldata          []byte
	SwapRoute         *swaprouter.SwapRoute
	PriceAtStaging    map[common.Address]*uint256.Int
	PositionStateHash uint64
	StagedAt          time.Time
	TTL               time.Duration
}

// IsValid reports whether the staged liquidation is still within its TTL.
// Satisfies the tracker package's StagedTx interface.
func (s *StagedLiquidation) IsValid() bool {
	return s.Age() < s.TTL
}

// Age returns how long ago this liquidation was staged.
func (s *StagedLiquidation) Age() time.Duration {
	return time.Since(s.StagedAt)
}

// TimeRemaining returns how much of the TTL is left, floored at zero.
func (s *StagedLiquidation) TimeRemaining() time.Duration {
	remaining := s.TTL - s.Age()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsPriceStale reports whether any asset's live price has drifted from its
// staged snapshot by more than thresholdBps.
func (s *StagedLiquidation) IsPriceStale(livePrices map[common.Address]*uint256.Int, thresholdBps int64) bool {
	for asset, staged := range s.PriceAtStaging {
		live, ok := livePrices[asset]
		if !ok {
			continue
		}
		if PriceDeviationExceedsBps(staged, live, thresholdBps) {
			return true
		}
	}
	return false
}

// IsPositionChanged reports whether the position's live state hash no
// longer matches the hash recorded at staging time.
func (s *StagedLiquidation) IsPositionChanged(liveStateHash uint64) bool {
	return s.PositionStateHash != liveStateHash
}

// HasPrecomputedCalldata reports whether this liquidation already carries
// ABI-encoded calldata, as opposed to only a swap route.
func (s *StagedLiquidation) HasPrecomputedCalldata() bool {
	return len(s.Calldata) > 0
}

// GetCalldata returns the precomputed calldata, if any.
func (s *StagedLiquidation) GetCalldata() ([]byte, bool) {
	if !s.HasPrecomputedCalldata() {
		return nil, false
	}
	return s.Calldata, true
}

// IsReadyForInstantExecution reports whether this liquidation is both valid
// and carries precomputed calldata, i.e. can be dispatched with no further
// building.
func (s *StagedLiquidation) IsReadyForInstantExecution() bool {
	return s.IsValid() && s.HasPrecomputedCalldata()
}

// PreStagingConfig configures when a position qualifies for staging and how
// long a staged liquidation stays valid.
type PreStagingConfig struct {
	StagingHFThreshold         float64
	StagedTxTTL                time.Duration
	PriceDeviationThresholdBps int64
	MinDebtUSDToStage          float64
}

// DefaultPreStagingConfig returns the spec's default pre-staging thresholds.
func DefaultPreStagingConfig() PreStagingConfig {
	return PreStagingConfig{
		StagingHFThreshold:         1.05,
		StagedTxTTL:                15 * time.Second,
		PriceDeviationThresholdBps: 50, // 0.5%
		MinDebtUSDToStage:          1.0,
	}
}

// routeKey identifies a cached swap route by token pair.
type routeKey struct {
	tokenIn  common.Address
	tokenOut common.Address
}

// PreStager maintains the set of staged liquidations and their associated
// cached swap routes.
type PreStager struct {
	mu     sync.RWMutex
	staged map[common.Address]*StagedLiquidation
	routes map[routeKey]swaprouter.SwapRoute
	config PreStagingConfig
}

// NewPreStager returns a PreStager using the default configuration.
func NewPreStager() *PreStager {
	return WithConfig(DefaultPreStagingConfig())
}

// WithConfig returns a PreStager using the given configuration.
func WithConfig(cfg PreStagingConfig) *PreStager {
	return &PreStager{
		staged: make(map[common.Address]*StagedLiquidation),
		routes: make(map[routeKey]swaprouter.SwapRoute),
		config: cfg,
	}
}

// Config returns the PreStager's current configuration.
func (p *PreStager) Config() PreStagingConfig {
	return p.config
}

// ShouldStage reports whether a position with the given HF, bad-debt status,
// and total debt qualifies for pre-staging.
func (p *PreStager) ShouldStage(hf float64, isBadDebt bool, totalDebtUSD float64) bool {
	if isBadDebt {
		return false
	}
	if hf > p.config.StagingHFThreshold {
		return false
	}
	return totalDebtUSD >= p.config.MinDebtUSDToStage
}

// Stage records a staged liquidation without calldata, a swap route only.
func (p *PreStager) Stage(user common.Address, sl *StagedLiquidation) {
	sl.User = user
	sl.StagedAt = time.Now()
	sl.TTL = p.config.StagedTxTTL
	p.mu.Lock()
	p.staged[user] = sl
	p.mu.Unlock()
}

// StageWithCalldata is Stage plus precomputed ABI calldata, making the
// result instantly dispatchable.
func (p *PreStager) StageWithCalldata(user common.Address, sl *StagedLiquidation, calldata []byte) {
	sl.Calldata = calldata
	p.Stage(user, sl)
}

// UpdateCalldata attaches calldata to an already-staged liquidation without
// resetting its TTL.
func (p *PreStager) UpdateCalldata(user common.Address, calldata []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sl, ok := p.staged[user]
	if !ok {
		return false
	}
	sl.Calldata = calldata
	return true
}

// GetStaged returns the raw staged liquidation for user regardless of
// validity.
func (p *PreStager) GetStaged(user common.Address) (*StagedLiquidation, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sl, ok := p.staged[user]
	return sl, ok
}

// GetValidStaged returns the staged liquidation for user only if it is
// still within its TTL.
func (p *PreStager) GetValidStaged(user common.Address) (*StagedLiquidation, bool) {
	sl, ok := p.GetStaged(user)
	if !ok || !sl.IsValid() {
		return nil, false
	}
	return sl, true
}

// HasValidStaged reports whether user has a currently-valid staged
// liquidation.
func (p *PreStager) HasValidStaged(user common.Address) bool {
	_, ok := p.GetValidStaged(user)
	return ok
}

// Invalidate removes the staged liquidation for user, if any.
func (p *PreStager) Invalidate(user common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.staged, user)
}

// InvalidateByAsset removes every staged liquidation referencing asset as
// collateral or debt, used when that asset's price moves sharply.
func (p *PreStager) InvalidateByAsset(asset common.Address) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for user, sl := range p.staged {
		if sl.CollateralAsset == asset || sl.DebtAsset == asset {
			delete(p.staged, user)
			removed++
		}
	}
	return removed
}

// GetSwapRoute returns the cached swap route for a token pair, if any.
func (p *PreStager) GetSwapRoute(tokenIn, tokenOut common.Address) (swaprouter.SwapRoute, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	route, ok := p.routes[routeKey{tokenIn, tokenOut}]
	return route, ok
}

// CacheSwapRoute stores a swap route for a token pair.
func (p *PreStager) CacheSwapRoute(tokenIn, tokenOut common.Address, route swaprouter.SwapRoute) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[routeKey{tokenIn, tokenOut}] = route
}

// CleanupExpired removes every staged liquidation past its TTL and returns
// the count removed.
func (p *PreStager) CleanupExpired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for user, sl := range p.staged {
		if !sl.IsValid() {
			delete(p.staged, user)
			removed++
		}
	}
	return removed
}

// ValidationKind classifies the outcome of ValidateStaged.
type ValidationKind int

const (
	// NotStaged means no staged liquidation exists for the user.
	NotStaged ValidationKind = iota
	// Expired means the staged liquidation's TTL has elapsed.
	Expired
	// PositionChanged means the position's balances moved since staging.
	PositionChanged
	// PriceStale means a referenced asset's price drifted past threshold.
	PriceStale
	// Valid means the staged liquidation can be used as-is.
	Valid
)

// ValidationResult is the outcome of checking a staged liquidation against
// live state, in the precedence order NotStaged > Expired > PositionChanged
// > PriceStale > Valid.
type ValidationResult struct {
	Kind   ValidationKind
	Staged *StagedLiquidation
}

// IsValid reports whether the result is Valid.
func (r ValidationResult) IsValid() bool {
	return r.Kind == Valid
}

// IntoStaged returns the staged liquidation if the result is Valid.
func (r ValidationResult) IntoStaged() (*StagedLiquidation, bool) {
	if r.Kind != Valid {
		return nil, false
	}
	return r.Staged, true
}

// ValidateStaged checks the staged liquidation for user against the live
// position state hash and current prices, in order: not staged, expired,
// position changed, price stale, valid.
func (p *PreStager) ValidateStaged(user common.Address, liveStateHash uint64, livePrices map[common.Address]*uint256.Int) ValidationResult {
	sl, ok := p.GetStaged(user)
	if !ok {
		return ValidationResult{Kind: NotStaged}
	}
	if !sl.IsValid() {
		return ValidationResult{Kind: Expired}
	}
	if sl.IsPositionChanged(liveStateHash) {
		return ValidationResult{Kind: PositionChanged}
	}
	if sl.IsPriceStale(livePrices, p.config.PriceDeviationThresholdBps) {
		return ValidationResult{Kind: PriceStale}
	}
	return ValidationResult{Kind: Valid, Staged: sl}
}

// Stats summarizes the staging pipeline's current population.
type Stats struct {
	TotalStaged      int
	ValidStaged      int
	ExpiredStaged    int
	SwapRoutesCached int
}

// Stats computes a fresh snapshot of staging population.
func (p *PreStager) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Stats{TotalStaged: len(p.staged), SwapRoutesCached: len(p.routes)}
	for _, sl := range p.staged {
		if sl.IsValid() {
			s.ValidStaged++
		} else {
			s.ExpiredStaged++
		}
	}
	return s
}
