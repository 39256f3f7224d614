// Package scanner wires the tracker, pre-stager, liquidator, and oracle
// monitors to the chain adapters and orchestrates the bootstrap cycle, the
// per-tier refresh cycles, and the event-driven liquidation dispatch loop.
package scanner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sentinel/internal/adapter"
	"sentinel/internal/liquidator"
	"sentinel/internal/oracle"
	"sentinel/internal/position"
	"sentinel/internal/prestage"
	"sentinel/internal/sensitivity"
	"sentinel/internal/swaprouter"
	"sentinel/internal/tracker"
)

// Recorder persists liquidation attempts and tier transitions. Both methods
// are optional audit-log side effects; the scanner never depends on their
// results.
type Recorder interface {
	RecordLiquidation(user common.Address, tier string, collateralAsset, debtAsset common.Address, debtToCover *uint256.Int, netProfitUSD float64, liquidationTx, rescueTx common.Hash, success bool, attemptErr error) error
	RecordTierTransition(subject common.Address, kind, from, to string) error
}

// Config sets the cadence of every background cycle and the bootstrap seed
// parameters.
type Config struct {
	SeedHFMax          float64
	SeedLimit          int
	BootstrapInterval  time.Duration
	CriticalInterval   time.Duration
	HotInterval        time.Duration
	WarmInterval       time.Duration
	ColdInterval       time.Duration
	DualOracleInterval time.Duration
	HeartbeatInterval  time.Duration
	MaxRetries         int
	DispatchCapacity   int
	ReconnectDelay     time.Duration
}

// DefaultConfig returns the spec's default scanner cadence.
func DefaultConfig() Config {
	return Config{
		SeedHFMax:          1.25,
		SeedLimit:          500,
		BootstrapInterval:  60 * time.Second,
		CriticalInterval:   position.DefaultTierIntervals().Critical,
		HotInterval:        position.DefaultTierIntervals().Hot,
		WarmInterval:       position.DefaultTierIntervals().Warm,
		ColdInterval:       position.DefaultTierIntervals().Cold,
		DualOracleInterval: 5 * time.Second,
		HeartbeatInterval:  time.Second,
		MaxRetries:         3,
		DispatchCapacity:   100,
		ReconnectDelay:     5 * time.Second,
	}
}

// Scanner orchestrates every component against live chain adapters.
type Scanner struct {
	tracker           *tracker.Tracker
	oracleMonitor     *oracle.Monitor
	dualOracleMonitor *oracle.DualOracleMonitor
	heartbeat         *oracle.HeartbeatPredictor
	preStager         *prestage.PreStager
	liquidator        *liquidator.Liquidator
	swapRouter        *swaprouter.Registry
	chainID           uint64

	chainProvider adapter.ChainProvider
	eventSource   adapter.EventSource
	discovery     adapter.PositionDiscovery // may be nil

	badDebtCfg position.BadDebtConfig
	thresholds position.TierThresholds
	cfg        Config

	recorder Recorder // may be nil
}

// New returns a Scanner wired to its dependencies. discovery may be nil; the
// scanner falls back to pool-event-only discovery after bootstrap.
func New(
	t *tracker.Tracker,
	oracleMonitor *oracle.Monitor,
	dualOracleMonitor *oracle.DualOracleMonitor,
	heartbeat *oracle.HeartbeatPredictor,
	preStager *prestage.PreStager,
	liq *liquidator.Liquidator,
	swapRouter *swaprouter.Registry,
	chainID uint64,
	chainProvider adapter.ChainProvider,
	eventSource adapter.EventSource,
	discovery adapter.PositionDiscovery,
	cfg Config,
) *Scanner {
	return &Scanner{
		tracker:           t,
		oracleMonitor:     oracleMonitor,
		dualOracleMonitor: dualOracleMonitor,
		heartbeat:         heartbeat,
		preStager:         preStager,
		liquidator:        liq,
		swapRouter:        swapRouter,
		chainID:           chainID,
		chainProvider:     chainProvider,
		eventSource:       eventSource,
		discovery:         discovery,
		badDebtCfg:        position.DefaultBadDebtConfig(),
		thresholds:        position.DefaultTierThresholds(),
		cfg:               cfg,
	}
}

// WithRecorder attaches an audit-log recorder; subsequent liquidations and
// tier transitions are persisted through it.
func (s *Scanner) WithRecorder(r Recorder) *Scanner {
	s.recorder = r
	return s
}

// Bootstrap seeds the tracker from position discovery (if configured),
// rebuilds the trigger index, pre-stages critical positions, and executes
// any liquidation that is already overdue.
func (s *Scanner) Bootstrap(ctx context.Context) error {
	log.Printf("scanner: bootstrap starting")

	candidates := s.seedCandidates(ctx)
	log.Printf("scanner: bootstrap seeded %d candidate users", len(candidates))

	users := make([]common.Address, len(candidates))
	for i, c := range candidates {
		users[i] = c.User
	}

	results, err := s.chainProvider.PositionsBatch(ctx, users, 20)
	if err != nil {
		return fmt.Errorf("scanner: bootstrap batch fetch: %w", err)
	}

	successCount, errorCount := 0, 0
	for _, r := range results {
		if r.Err != nil {
			log.Printf("scanner: bootstrap fetch failed user=%s err=%v", r.User, r.Err)
			errorCount++
			continue
		}
		if err := s.updatePositionFromData(r.User, r.Collaterals, r.Debts); err != nil {
			log.Printf("scanner: bootstrap process failed user=%s err=%v", r.User, err)
			errorCount++
			continue
		}
		successCount++
	}
	log.Printf("scanner: bootstrap processed %d wallets (%d ok, %d errors)", len(results), successCount, errorCount)

	s.tracker.RebuildTriggerIndex()
	s.logDiscoveryStats()

	critical := s.tracker.CriticalPositions()
	log.Printf("scanner: pre-staging %d critical positions", len(critical))
	for _, pos := range critical {
		if err := s.stagePosition(ctx, pos); err != nil {
			log.Printf("scanner: pre-stage failed user=%s err=%v", pos.User, err)
		}
	}

	liquidatedCount := 0
	for _, pos := range s.tracker.CriticalPositions() {
		if pos.IsLiquidatable() && !pos.IsBadDebt(s.badDebtCfg) {
			if err := s.executeLiquidation(ctx, pos.User); err != nil {
				log.Printf("scanner: immediate liquidation failed user=%s err=%v", pos.User, err)
				continue
			}
			liquidatedCount++
		}
	}
	log.Printf("scanner: bootstrap complete, %d immediate liquidations", liquidatedCount)

	return nil
}

// logDiscoveryStats logs the wallet-inventory tier distribution and the
// bad-debt vs at-risk split after a bootstrap seed. Informational only; it
// never gates bootstrap.
func (s *Scanner) logDiscoveryStats() {
	critical := s.tracker.CriticalPositions()
	hot := s.tracker.HotPositions()
	warm := s.tracker.WarmPositions()
	cold := s.tracker.ColdPositions()

	badDebt, atRisk := 0, 0
	for _, pos := range critical {
		if pos.IsBadDebt(s.badDebtCfg) {
			badDebt++
		} else if pos.IsLiquidatable() {
			atRisk++
		}
	}

	log.Printf("scanner: wallet inventory critical=%d hot=%d warm=%d cold=%d, critical bad_debt=%d at_risk=%d",
		len(critical), len(hot), len(warm), len(cold), badDebt, atRisk)
}

// seedCandidates pulls every page from position discovery, if configured.
func (s *Scanner) seedCandidates(ctx context.Context) []adapter.CandidateUser {
	if s.discovery == nil {
		return nil
	}

	var out []adapter.CandidateUser
	page := 0
	for len(out) < s.cfg.SeedLimit {
		candidates, hasMore, err := s.discovery.CandidatesBelowHF(ctx, s.cfg.SeedHFMax, page, 100)
		if err != nil {
			log.Printf("scanner: position discovery page %d failed: %v", page, err)
			break
		}
		out = append(out, candidates...)
		if !hasMore {
			break
		}
		page++
	}
	if len(out) > s.cfg.SeedLimit {
		out = out[:s.cfg.SeedLimit]
	}
	return out
}

// Run starts every background task and blocks draining the liquidation
// dispatch channel until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	log.Printf("scanner: starting event loop")

	dispatch := make(chan common.Address, s.cfg.DispatchCapacity)

	go s.reconnectLoop(ctx, "oracle", func(ctx context.Context) error { return s.oracleEventLoop(ctx, dispatch) })
	go s.reconnectLoop(ctx, "pool", s.poolEventLoop)

	go s.tickLoop(ctx, s.cfg.CriticalInterval, s.criticalCycle)
	go s.tickLoop(ctx, s.cfg.HotInterval, s.hotCycle)
	go s.tickLoop(ctx, s.cfg.WarmInterval, s.warmCycle)
	go s.tickLoop(ctx, s.cfg.ColdInterval, s.coldCycle)
	go s.tickLoop(ctx, s.cfg.BootstrapInterval, s.bootstrapResync)
	go s.tickLoop(ctx, s.cfg.DualOracleInterval, s.dualOracleCycle)
	go s.tickLoop(ctx, s.cfg.HeartbeatInterval, s.heartbeatCycle)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case user := <-dispatch:
			if err := s.executeLiquidation(ctx, user); err != nil {
				log.Printf("scanner: liquidation failed user=%s err=%v", user, err)
			}
		}
	}
}

// reconnectLoop runs fn repeatedly, reconnecting after cfg.ReconnectDelay
// whenever it returns (stream ended or errored). Event loops never
// propagate errors past this wrapper.
func (s *Scanner) reconnectLoop(ctx context.Context, name string, fn func(context.Context) error) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := fn(ctx); err != nil {
			log.Printf("scanner: %s event loop failed, reconnecting in %s: %v", name, s.cfg.ReconnectDelay, err)
		} else {
			log.Printf("scanner: %s event loop ended, reconnecting in %s", name, s.cfg.ReconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

// tickLoop runs fn on every tick of interval until ctx is cancelled.
func (s *Scanner) tickLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *Scanner) oracleEventLoop(ctx context.Context, dispatch chan<- common.Address) error {
	updates, err := s.eventSource.OracleUpdates(ctx)
	if err != nil {
		return fmt.Errorf("subscribe oracle updates: %w", err)
	}
	for update := range updates {
		s.onOracleUpdate(update, dispatch)
	}
	return nil
}

func (s *Scanner) poolEventLoop(ctx context.Context) error {
	events, err := s.eventSource.PoolEvents(ctx)
	if err != nil {
		return fmt.Errorf("subscribe pool events: %w", err)
	}
	for event := range events {
		s.onPoolEvent(ctx, event)
	}
	return nil
}

// onOracleUpdate absorbs its own errors: event handlers log and continue.
func (s *Scanner) onOracleUpdate(update adapter.OracleUpdate, dispatch chan<- common.Address) {
	oldPriceValue := uint256.NewInt(0)
	if cached, ok := s.tracker.GetPrice(update.Asset); ok && cached.Price != nil {
		oldPriceValue = cached.Price
	}

	s.tracker.UpdatePrice(update.Asset, oracle.Price{
		Price:      update.Price,
		UpdatedAt:  update.Timestamp,
		Block:      update.Block,
		OracleType: oracle.Type(update.OracleType),
	})
	s.heartbeat.RecordUpdate(update.Oracle, update.Timestamp, update.Block)

	liquidatable := s.tracker.TriggerIndex().GetLiquidatableAt(update.Asset, update.Price, oldPriceValue)
	for _, user := range liquidatable {
		pos, ok := s.tracker.Get(user)
		if !ok || pos.IsBadDebt(s.badDebtCfg) {
			continue
		}
		dispatch <- user
	}

	affected := s.tracker.UsersAffectedByAsset(update.Asset)
	for _, user := range affected {
		pos, ok := s.tracker.Get(user)
		if !ok {
			continue
		}
		sens, ok := pos.Sensitivity.(*sensitivity.PositionSensitivity)
		if !ok || sens == nil {
			continue
		}

		newHF := sens.EstimateHFFromPrices([]sensitivity.NewPrice{{Asset: update.Asset, Price: update.Price}})
		newTier := position.Classify(newHF, pos.MinTriggerDistancePct, s.thresholds)
		if newTier != pos.Tier {
			fromTier := pos.Tier
			if s.tracker.ReTier(user, newTier) && s.recorder != nil {
				if err := s.recorder.RecordTierTransition(user, "position", fromTier.String(), newTier.String()); err != nil {
					log.Printf("scanner: record tier transition failed user=%s err=%v", user, err)
				}
			}
		}
		if newHF < 1.0 && !pos.IsBadDebt(s.badDebtCfg) {
			dispatch <- user
		}
	}

	s.preStager.InvalidateByAsset(update.Asset)
}

func (s *Scanner) onPoolEvent(ctx context.Context, event adapter.PoolEvent) {
	if err := s.processWallet(ctx, event.User); err != nil {
		log.Printf("scanner: pool event refresh failed user=%s err=%v", event.User, err)
	}
	s.preStager.Invalidate(event.User)
}

// executeLiquidation prefers a valid staged transaction, falling back to a
// fresh build, then removes the user from the tracker once submitted.
func (s *Scanner) executeLiquidation(ctx context.Context, user common.Address) error {
	tier := position.Cold
	if pos, ok := s.tracker.Get(user); ok {
		tier = pos.Tier
	}

	var result liquidator.Result
	var execErr error
	if staged, ok := s.preStager.GetValidStaged(user); ok {
		result, execErr = s.liquidator.ExecuteStaged(ctx, staged)
	} else if pos, ok := s.tracker.Get(user); ok {
		result, execErr = s.liquidator.ExecuteWithRetry(ctx, pos, s.badDebtCfg, s.cfg.MaxRetries)
	}

	s.recordLiquidation(user, tier, result, execErr)
	if execErr != nil {
		return execErr
	}
	s.tracker.Remove(user)
	return nil
}

// recordLiquidation is a best-effort audit-log write; a failure to record
// never affects liquidation outcome.
func (s *Scanner) recordLiquidation(user common.Address, tier position.Tier, result liquidator.Result, execErr error) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordLiquidation(user, tier.String(), result.CollateralAsset, result.DebtAsset, result.DebtCovered, result.NetProfitUSD, result.LiquidationTx, result.RescueTx, execErr == nil, execErr); err != nil {
		log.Printf("scanner: record liquidation failed user=%s err=%v", user, err)
	}
}

// Background cycles

func (s *Scanner) criticalCycle(ctx context.Context) {
	for _, pos := range s.tracker.CriticalPositions() {
		if !s.preStager.HasValidStaged(pos.User) {
			if err := s.stagePosition(ctx, pos); err != nil {
				log.Printf("scanner: re-stage failed user=%s err=%v", pos.User, err)
			}
		}
	}
}

func (s *Scanner) hotCycle(ctx context.Context) {
	for _, pos := range s.tracker.HotPositions() {
		if pos.NeedsUpdate(position.DefaultTierIntervals()) {
			pos.Sensitivity = sensitivity.Compute(pos, s.oracleMonitor)
			pos.LastUpdated = time.Now()
		}
	}
}

func (s *Scanner) warmCycle(ctx context.Context) {
	for _, pos := range s.tracker.WarmPositions() {
		if pos.NeedsUpdate(position.DefaultTierIntervals()) {
			s.tracker.TriggerIndex().UpdatePosition(pos)
			pos.LastUpdated = time.Now()
		}
	}
}

func (s *Scanner) coldCycle(ctx context.Context) {
	for _, pos := range s.tracker.ColdPositions() {
		if pos.NeedsUpdate(position.DefaultTierIntervals()) {
			if err := s.processWallet(ctx, pos.User); err != nil {
				log.Printf("scanner: cold refresh failed user=%s err=%v", pos.User, err)
			}
		}
	}
}

func (s *Scanner) bootstrapResync(ctx context.Context) {
	if err := s.Bootstrap(ctx); err != nil {
		log.Printf("scanner: bootstrap resync failed: %v", err)
	}
}

func (s *Scanner) dualOracleCycle(ctx context.Context) {
	for _, transition := range s.dualOracleMonitor.ActiveTransitions() {
		log.Printf("scanner: dual oracle tier transition oracle=%s from=%s to=%s", transition.Oracle, transition.From, transition.To)
		if s.recorder == nil {
			continue
		}
		if err := s.recorder.RecordTierTransition(transition.Oracle, "dual_oracle", transition.From.String(), transition.To.String()); err != nil {
			log.Printf("scanner: record dual oracle transition failed oracle=%s err=%v", transition.Oracle, err)
		}
	}
}

func (s *Scanner) heartbeatCycle(ctx context.Context) {
	for _, o := range s.heartbeat.ApproachingStale() {
		log.Printf("scanner: oracle update imminent oracle=%s", o)
	}
	for _, o := range s.heartbeat.StaleOracles() {
		log.Printf("scanner: oracle stale oracle=%s", o)
	}
}

// processWallet re-fetches user's position from the chain provider and
// upserts the result into the tracker.
func (s *Scanner) processWallet(ctx context.Context, user common.Address) error {
	collaterals, debts, err := s.chainProvider.PositionData(ctx, user)
	if err != nil {
		return fmt.Errorf("fetch position data: %w", err)
	}
	if len(collaterals) == 0 && len(debts) == 0 {
		s.tracker.Remove(user)
		return nil
	}
	return s.updatePositionFromData(user, collaterals, debts)
}

// updatePositionFromData builds a TrackedPosition from already-fetched
// chain data, classifies it, computes sensitivity for hot-path tiers, and
// upserts it, skipping bad-debt positions entirely.
func (s *Scanner) updatePositionFromData(user common.Address, collaterals []adapter.CollateralEntry, debts []adapter.DebtEntry) error {
	pos := position.New(user)

	for _, c := range collaterals {
		pos.Collaterals = append(pos.Collaterals, position.CollateralAt{
			Asset: c.Asset,
			Data: position.CollateralData{
				Asset:                c.Asset,
				Amount:               c.Amount,
				Price:                c.Price,
				Decimals:             c.Decimals,
				ValueUSD:             position.CalculateUSDValue(c.Amount, c.Price, c.Decimals),
				LiquidationThreshold: c.LiquidationThreshold,
				Enabled:              c.Enabled,
			},
		})
	}
	for _, d := range debts {
		pos.Debts = append(pos.Debts, position.DebtAt{
			Asset: d.Asset,
			Data: position.DebtData{
				Asset:    d.Asset,
				Amount:   d.Amount,
				Price:    d.Price,
				Decimals: d.Decimals,
				ValueUSD: position.CalculateUSDValue(d.Amount, d.Price, d.Decimals),
			},
		})
	}

	pos.HealthFactor = pos.CalculateHealthFactor()
	pos.UpdateTier(s.thresholds)
	pos.StateHash = pos.ComputeStateHash()

	if pos.IsBadDebt(s.badDebtCfg) {
		return nil
	}

	if pos.Tier == position.Critical || pos.Tier == position.Hot {
		pos.Sensitivity = sensitivity.Compute(pos, s.oracleMonitor)
	}

	s.tracker.Upsert(pos)
	return nil
}

// stagePosition derives a swap route for pos's largest collateral/debt
// pair and pre-stages a liquidation, skipping positions that don't meet
// the pre-staging gate.
func (s *Scanner) stagePosition(ctx context.Context, pos *position.TrackedPosition) error {
	if !s.preStager.ShouldStage(pos.HealthFactor, pos.IsBadDebt(s.badDebtCfg), pos.TotalDebtUSD()) {
		return nil
	}

	collateral, ok := pos.LargestCollateral()
	if !ok {
		return fmt.Errorf("no collateral")
	}
	debt, ok := pos.LargestDebt()
	if !ok {
		return fmt.Errorf("no debt")
	}

	collateralAmount := new(uint256.Int).Div(collateral.Data.Amount, uint256.NewInt(2))
	route, err := s.swapRouter.GetRouteCached(ctx, s.chainID, swaprouter.SwapParams{
		TokenIn:    collateral.Asset,
		TokenOut:   debt.Asset,
		AmountIn:   collateralAmount,
		DecimalsIn: collateral.Data.Decimals,
	})
	if err != nil {
		log.Printf("scanner: swap route lookup failed user=%s err=%v, staging without route", pos.User, err)
	}

	priceSnapshot := map[common.Address]*uint256.Int{}
	if p, ok := s.tracker.GetPrice(collateral.Asset); ok {
		priceSnapshot[collateral.Asset] = p.Price
	}
	if p, ok := s.tracker.GetPrice(debt.Asset); ok {
		priceSnapshot[debt.Asset] = p.Price
	}

	sl := &prestage.StagedLiquidation{
		CollateralAsset:   collateral.Asset,
		DebtAsset:         debt.Asset,
		DebtToCover:       debt.Data.Amount,
		PositionStateHash: pos.StateHash,
		PriceAtStaging:    priceSnapshot,
	}
	if !route.IsZero() {
		sl.SwapRoute = &route
	}
	s.preStager.Stage(pos.User, sl)
	return nil
}
