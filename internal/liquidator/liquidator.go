// Package liquidator executes liquidations: it gates on profitability,
// prefers pre-staged calldata when available, rebuilds from scratch
// otherwise, and retries transient failures with backoff.
package liquidator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sentinel/internal/adapter"
	"sentinel/internal/position"
	"sentinel/internal/prestage"
	"sentinel/internal/swaprouter"
	"sentinel/pkg/fixedpoint"
)

// estimatedGasCostUSD is the budgeted gas cost for a liquidation
// transaction, including swap hops and the rescue follow-up.
const estimatedGasCostUSD = 0.03

// closeFactor is the fraction of a position's debt an individual
// liquidation is permitted to repay.
const closeFactor = 0.5

// retryBaseDelay is the first retry's backoff; each subsequent attempt
// doubles, capped at retryMaxDelay.
const retryBaseDelay = 200 * time.Millisecond

// retryMaxDelay caps exponential backoff between retries.
const retryMaxDelay = 1600 * time.Millisecond

// BonusSource resolves the liquidation bonus for a collateral asset, in
// basis points of extra collateral seized.
type BonusSource interface {
	LiquidationBonusBps(asset common.Address) uint16
}

// ProfitEstimate breaks down the expected USD profit of a liquidation.
type ProfitEstimate struct {
	GrossProfitUSD      float64
	GasCostUSD          float64
	SlippageCostUSD     float64
	NetProfitUSD        float64
	LiquidationBonusPct float64
}

// IsProfitable reports whether the estimate clears minProfitUSD.
func (e ProfitEstimate) IsProfitable(minProfitUSD float64) bool {
	return e.NetProfitUSD >= minProfitUSD
}

func (e ProfitEstimate) String() string {
	return fmt.Sprintf("gross=$%.2f (%.2f%% bonus) - gas=$%.2f - slippage=$%.2f = net=$%.2f",
		e.GrossProfitUSD, e.LiquidationBonusPct, e.GasCostUSD, e.SlippageCostUSD, e.NetProfitUSD)
}

// Result is the outcome of a submitted liquidation.
type Result struct {
	User            common.Address
	CollateralAsset common.Address
	DebtAsset       common.Address
	DebtCovered     *uint256.Int
	NetProfitUSD    float64
	LiquidationTx   common.Hash
	RescueTx        common.Hash
}

// IsSuccess reports whether both the liquidation and rescue transactions
// landed.
func (r Result) IsSuccess() bool {
	return r.LiquidationTx != (common.Hash{}) && r.RescueTx != (common.Hash{})
}

// Liquidator builds, gates, and submits liquidation transactions.
type Liquidator struct {
	contract       adapter.LiquidatorContract
	bonuses        BonusSource
	swapRouter     *swaprouter.Registry
	chainID        uint64
	profitReceiver common.Address
	minProfitUSD   float64
	slippageBps    uint16
}

// New returns a Liquidator with the spec's default 1% slippage tolerance
// and $1 minimum profit.
func New(contract adapter.LiquidatorContract, bonuses BonusSource, swapRouter *swaprouter.Registry, chainID uint64, profitReceiver common.Address) *Liquidator {
	return &Liquidator{
		contract:       contract,
		bonuses:        bonuses,
		swapRouter:     swapRouter,
		chainID:        chainID,
		profitReceiver: profitReceiver,
		minProfitUSD:   1.0,
		slippageBps:    100,
	}
}

// WithMinProfit overrides the minimum profit threshold.
func (l *Liquidator) WithMinProfit(minProfitUSD float64) *Liquidator {
	l.minProfitUSD = minProfitUSD
	return l
}

// WithSlippage overrides the slippage tolerance applied to min-amount-out.
func (l *Liquidator) WithSlippage(slippageBps uint16) *Liquidator {
	l.slippageBps = slippageBps
	return l
}

// MinProfitUSD returns the configured minimum profit threshold.
func (l *Liquidator) MinProfitUSD() float64 {
	return l.minProfitUSD
}

// EstimateProfit computes gross/net profit for a liquidation given the
// collateral's USD value and the swap's input/output USD values.
func (l *Liquidator) EstimateProfit(collateralAsset common.Address, collateralValueUSD, swapInputUSD, swapOutputUSD float64) ProfitEstimate {
	bonusBps := l.bonuses.LiquidationBonusBps(collateralAsset)
	bonus := float64(bonusBps) / 10000.0

	grossProfit := collateralValueUSD * bonus
	slippageCost := swapInputUSD - swapOutputUSD
	if slippageCost < 0 {
		slippageCost = 0
	}
	netProfit := grossProfit - estimatedGasCostUSD - slippageCost

	return ProfitEstimate{
		GrossProfitUSD:      grossProfit,
		GasCostUSD:          estimatedGasCostUSD,
		SlippageCostUSD:     slippageCost,
		NetProfitUSD:        netProfit,
		LiquidationBonusPct: bonus * 100.0,
	}
}

// EstimatePositionProfit gives an early, pre-route estimate using the
// position's largest collateral and an assumed 1% swap slippage.
func (l *Liquidator) EstimatePositionProfit(pos *position.TrackedPosition) (ProfitEstimate, bool) {
	largest, ok := pos.LargestCollateral()
	if !ok {
		return ProfitEstimate{}, false
	}
	collateralValue := largest.Data.ValueUSD * closeFactor
	estimatedOutput := collateralValue * 0.99
	return l.EstimateProfit(largest.Asset, collateralValue, collateralValue, estimatedOutput), true
}

// EstimateStagedProfit estimates profit from a staged liquidation's cached
// swap route.
func (l *Liquidator) EstimateStagedProfit(staged *prestage.StagedLiquidation) ProfitEstimate {
	var inputUSD, outputUSD float64
	if staged.SwapRoute != nil {
		inputUSD = fixedpoint.ToFloat(staged.SwapRoute.AmountIn)
		outputUSD = fixedpoint.ToFloat(staged.SwapRoute.AmountOut)
	}
	return l.EstimateProfit(staged.CollateralAsset, inputUSD, inputUSD, outputUSD)
}

// applySlippage applies the configured slippage tolerance as a floor on
// amount.
func (l *Liquidator) applySlippage(amount *uint256.Int) *uint256.Int {
	return fixedpoint.ApplyBPS(amount, l.slippageBps)
}

// calculateDebtToCover returns MaxU256 ("seize all permitted") if the swap
// output covers the full debt, else the swap's expected output.
func calculateDebtToCover(route swaprouter.SwapRoute, maxDebt *uint256.Int) *uint256.Int {
	if route.AmountOut != nil && route.AmountOut.Cmp(maxDebt) >= 0 {
		return fixedpoint.MaxU256()
	}
	return route.AmountOut
}

var (
	errNotProfitable  = errors.New("liquidation not profitable")
	errNotLiquidatable = errors.New("position not liquidatable")
	errBadDebt        = errors.New("position is bad debt")
	errNoCollateral   = errors.New("no collateral found")
	errNoDebt         = errors.New("no debt found")
)

// isNonRetryable reports whether err should abort a retry loop rather than
// be retried with backoff.
func isNonRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"not profitable", "not liquidatable", "bad debt", "no collateral found", "no debt found"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ExecuteStaged submits a pre-staged liquidation, using its pre-encoded
// calldata when available (fast path) or rebuilding calldata from its
// cached swap route (rebuild path), then sends the rescue follow-up.
func (l *Liquidator) ExecuteStaged(ctx context.Context, staged *prestage.StagedLiquidation) (Result, error) {
	checkStart := time.Now()
	profit := l.EstimateStagedProfit(staged)
	if !profit.IsProfitable(l.minProfitUSD) {
		return Result{}, fmt.Errorf("%w: expected $%.2f, minimum $%.2f", errNotProfitable, profit.NetProfitUSD, l.minProfitUSD)
	}
	log.Printf("liquidator: staged profit check user=%s took=%s", staged.User, time.Since(checkStart))

	submitStart := time.Now()
	var liquidationTx common.Hash
	var err error
	if staged.IsReadyForInstantExecution() {
		calldata, _ := staged.GetCalldata()
		liquidationTx, err = l.contract.ExecutePreencoded(ctx, calldata)
	} else {
		minAmountOut := l.applySlippage(staged.DebtToCover)
		var swapCalldata []byte
		liquidationTx, err = l.contract.Liquidate(ctx, staged.User, staged.CollateralAsset, staged.DebtAsset, staged.DebtToCover, swapCalldata, minAmountOut)
	}
	if err != nil {
		return Result{}, fmt.Errorf("liquidator: submit staged liquidation: %w", err)
	}
	log.Printf("liquidator: staged submit user=%s took=%s", staged.User, time.Since(submitStart))

	rescueStart := time.Now()
	rescueTx, err := l.contract.RescueTokens(ctx, staged.DebtAsset, l.profitReceiver)
	if err != nil {
		return Result{}, fmt.Errorf("liquidator: rescue tokens: %w", err)
	}
	log.Printf("liquidator: staged rescue user=%s took=%s", staged.User, time.Since(rescueStart))

	return Result{
		User:            staged.User,
		CollateralAsset: staged.CollateralAsset,
		DebtAsset:       staged.DebtAsset,
		DebtCovered:     staged.DebtToCover,
		NetProfitUSD:    profit.NetProfitUSD,
		LiquidationTx:   liquidationTx,
		RescueTx:        rescueTx,
	}, nil
}

// BuildAndExecute derives a fresh swap route and liquidation calldata for
// pos, gates on profitability, and submits it plus the rescue follow-up.
func (l *Liquidator) BuildAndExecute(ctx context.Context, pos *position.TrackedPosition, badDebtCfg position.BadDebtConfig) (Result, error) {
	if !pos.IsLiquidatable() {
		return Result{}, errNotLiquidatable
	}
	if pos.IsBadDebt(badDebtCfg) {
		return Result{}, errBadDebt
	}

	collateral, ok := pos.LargestCollateral()
	if !ok {
		return Result{}, errNoCollateral
	}
	debt, ok := pos.LargestDebt()
	if !ok {
		return Result{}, errNoDebt
	}

	if early, ok := l.EstimatePositionProfit(pos); ok && early.NetProfitUSD < l.minProfitUSD*0.5 {
		return Result{}, fmt.Errorf("%w (early estimate): expected $%.2f, minimum $%.2f", errNotProfitable, early.NetProfitUSD, l.minProfitUSD)
	}

	collateralAmount := new(uint256.Int).Div(collateral.Data.Amount, uint256.NewInt(2))

	encodeStart := time.Now()
	route, err := l.swapRouter.GetRouteCached(ctx, l.chainID, swaprouter.SwapParams{
		TokenIn:     collateral.Asset,
		TokenOut:    debt.Asset,
		AmountIn:    collateralAmount,
		DecimalsIn:  collateral.Data.Decimals,
		MultiHop:    true,
		SlippageBps: l.slippageBps,
	})
	if err != nil {
		route = directRouteFallback(collateral.Asset, debt.Asset, collateralAmount)
	}
	log.Printf("liquidator: route encode user=%s took=%s", pos.User, time.Since(encodeStart))

	collateralValueUSD := collateral.Data.ValueUSD * closeFactor
	swapOutputUSD := collateralValueUSD * 0.99
	if route.AmountOut != nil && !debt.Data.Amount.IsZero() {
		ratio := fixedpoint.ToFloat(route.AmountOut) / fixedpoint.ToFloat(debt.Data.Amount)
		swapOutputUSD = debt.Data.ValueUSD * ratio
	}

	profit := l.EstimateProfit(collateral.Asset, collateralValueUSD, collateralValueUSD, swapOutputUSD)
	if !profit.IsProfitable(l.minProfitUSD) {
		return Result{}, fmt.Errorf("%w: expected $%.2f, minimum $%.2f", errNotProfitable, profit.NetProfitUSD, l.minProfitUSD)
	}

	debtToCover := calculateDebtToCover(route, debt.Data.Amount)
	minAmountOut := l.applySlippage(debtToCover)

	var swapCalldata []byte

	submitStart := time.Now()
	liquidationTx, err := l.contract.Liquidate(ctx, pos.User, collateral.Asset, debt.Asset, debtToCover, swapCalldata, minAmountOut)
	if err != nil {
		return Result{}, fmt.Errorf("liquidator: submit liquidation: %w", err)
	}
	log.Printf("liquidator: submit user=%s took=%s", pos.User, time.Since(submitStart))

	rescueStart := time.Now()
	rescueTx, err := l.contract.RescueTokens(ctx, debt.Asset, l.profitReceiver)
	if err != nil {
		return Result{}, fmt.Errorf("liquidator: rescue tokens: %w", err)
	}
	log.Printf("liquidator: rescue user=%s took=%s", pos.User, time.Since(rescueStart))

	return Result{
		User:            pos.User,
		CollateralAsset: collateral.Asset,
		DebtAsset:       debt.Asset,
		DebtCovered:     debtToCover,
		NetProfitUSD:    profit.NetProfitUSD,
		LiquidationTx:   liquidationTx,
		RescueTx:        rescueTx,
	}, nil
}

// directRouteFallback builds a 1:1 route with 0.5% slippage when the swap
// router registry cannot resolve one.
func directRouteFallback(tokenIn, tokenOut common.Address, amountIn *uint256.Int) swaprouter.SwapRoute {
	return swaprouter.SwapRoute{
		RouterID:     "direct",
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		AmountOut:    fixedpoint.ApplyBPS(amountIn, 50),
		MinAmountOut: fixedpoint.ApplyBPS(amountIn, 50),
	}
}

// ExecuteWithRetry retries BuildAndExecute up to maxRetries times with
// exponential backoff, aborting immediately on non-retryable errors.
func (l *Liquidator) ExecuteWithRetry(ctx context.Context, pos *position.TrackedPosition, badDebtCfg position.BadDebtConfig, maxRetries int) (Result, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << uint(min(attempt-1, 3))
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := l.BuildAndExecute(ctx, pos, badDebtCfg)
		if err == nil {
			return result, nil
		}
		if isNonRetryable(err) {
			return Result{}, err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("liquidator: all retry attempts exhausted")
	}
	return Result{}, lastErr
}

// ExecuteStagedWithRetry tries the staged liquidation first, falling back
// to a from-scratch rebuild with retries if the staged attempt fails for a
// retryable reason.
func (l *Liquidator) ExecuteStagedWithRetry(ctx context.Context, staged *prestage.StagedLiquidation, pos *position.TrackedPosition, badDebtCfg position.BadDebtConfig, maxRetries int) (Result, error) {
	result, err := l.ExecuteStaged(ctx, staged)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, errNotProfitable) {
		return Result{}, err
	}

	return l.ExecuteWithRetry(ctx, pos, badDebtCfg, maxRetries)
}
