package liquidator

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/adapter"
	"sentinel/internal/position"
	"sentinel/internal/prestage"
	"sentinel/internal/swaprouter"
	"sentinel/pkg/fixedpoint"
)

func addr(b byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = b
	}
	return a
}

type fixedBonus struct{ bps uint16 }

func (f fixedBonus) LiquidationBonusBps(common.Address) uint16 { return f.bps }

type fakeContract struct {
	liquidateErr error
	rescueErr    error
	calls        []string
}

func (f *fakeContract) Liquidate(ctx context.Context, user, collateralAsset, debtAsset common.Address, debtToCover *uint256.Int, swapCalldata []byte, minAmountOut *uint256.Int) (common.Hash, error) {
	f.calls = append(f.calls, "liquidate")
	if f.liquidateErr != nil {
		return common.Hash{}, f.liquidateErr
	}
	return common.HexToHash("0x1"), nil
}

func (f *fakeContract) ExecutePreencoded(ctx context.Context, calldata []byte) (common.Hash, error) {
	f.calls = append(f.calls, "preencoded")
	if f.liquidateErr != nil {
		return common.Hash{}, f.liquidateErr
	}
	return common.HexToHash("0x2"), nil
}

func (f *fakeContract) RescueTokens(ctx context.Context, token, recipient common.Address) (common.Hash, error) {
	f.calls = append(f.calls, "rescue")
	if f.rescueErr != nil {
		return common.Hash{}, f.rescueErr
	}
	return common.HexToHash("0x3"), nil
}

func newTestLiquidator(contract adapter.LiquidatorContract) *Liquidator {
	return New(contract, fixedBonus{bps: 500}, swaprouter.NewRegistry(), 999, addr(9))
}

func TestSlippageCalculation(t *testing.T) {
	l := newTestLiquidator(&fakeContract{})

	t.Run("1pct_slippage", func(t *testing.T) {
		result := l.applySlippage(uint256.NewInt(1000))
		assert.Equal(t, uint256.NewInt(990), result)
	})

	t.Run("10pct_slippage", func(t *testing.T) {
		l.WithSlippage(1000)
		result := l.applySlippage(uint256.NewInt(1000))
		assert.Equal(t, uint256.NewInt(900), result)
	})
}

func TestCloseFactor(t *testing.T) {
	total := uint256.NewInt(1000)
	result := new(uint256.Int).Div(total, uint256.NewInt(2))
	assert.Equal(t, uint256.NewInt(500), result)
}

func TestEstimateProfit(t *testing.T) {
	l := newTestLiquidator(&fakeContract{})
	collateralAsset := addr(1)

	estimate := l.EstimateProfit(collateralAsset, 1000.0, 1000.0, 990.0)
	assert.InDelta(t, 50.0, estimate.GrossProfitUSD, 0.001) // 5% bonus
	assert.InDelta(t, 10.0, estimate.SlippageCostUSD, 0.001)
	assert.InDelta(t, 50.0-estimatedGasCostUSD-10.0, estimate.NetProfitUSD, 0.001)
	assert.True(t, estimate.IsProfitable(1.0))
	assert.False(t, estimate.IsProfitable(100.0))
}

func TestCalculateDebtToCover(t *testing.T) {
	maxDebt := uint256.NewInt(1000)

	t.Run("swap_covers_full_debt", func(t *testing.T) {
		route := swaprouter.SwapRoute{AmountOut: uint256.NewInt(1500)}
		result := calculateDebtToCover(route, maxDebt)
		assert.Equal(t, fixedpoint.MaxU256(), result)
	})

	t.Run("swap_covers_partial_debt", func(t *testing.T) {
		route := swaprouter.SwapRoute{AmountOut: uint256.NewInt(500)}
		result := calculateDebtToCover(route, maxDebt)
		assert.Equal(t, uint256.NewInt(500), result)
	})
}

func TestIsNonRetryable(t *testing.T) {
	assert.True(t, isNonRetryable(errNotProfitable))
	assert.True(t, isNonRetryable(errNotLiquidatable))
	assert.True(t, isNonRetryable(errBadDebt))
	assert.False(t, isNonRetryable(nil))
}

func TestExecuteStagedFastPath(t *testing.T) {
	contract := &fakeContract{}
	l := newTestLiquidator(contract).WithMinProfit(0.01)

	staged := &prestage.StagedLiquidation{
		User:            addr(1),
		CollateralAsset: addr(2),
		DebtAsset:       addr(3),
		DebtToCover:     uint256.NewInt(1000),
		Calldata:        []byte{0xde, 0xad},
		SwapRoute: &swaprouter.SwapRoute{
			AmountIn:  fixedpoint.FloatToU256(1000),
			AmountOut: fixedpoint.FloatToU256(990),
		},
		TTL: 1000000000000,
	}

	result, err := l.ExecuteStaged(context.Background(), staged)
	require.NoError(t, err)
	assert.True(t, result.IsSuccess())
	assert.Contains(t, contract.calls, "preencoded")
	assert.Contains(t, contract.calls, "rescue")
}

func TestExecuteStagedNotProfitable(t *testing.T) {
	contract := &fakeContract{}
	l := newTestLiquidator(contract).WithMinProfit(1000.0)

	staged := &prestage.StagedLiquidation{
		User:            addr(1),
		CollateralAsset: addr(2),
		DebtAsset:       addr(3),
		DebtToCover:     uint256.NewInt(1000),
		SwapRoute: &swaprouter.SwapRoute{
			AmountIn:  fixedpoint.FloatToU256(10),
			AmountOut: fixedpoint.FloatToU256(9),
		},
		TTL: 1000000000000,
	}

	_, err := l.ExecuteStaged(context.Background(), staged)
	require.Error(t, err)
	assert.True(t, isNonRetryable(err))
}

func TestBuildAndExecuteGuards(t *testing.T) {
	l := newTestLiquidator(&fakeContract{})
	badDebtCfg := position.DefaultBadDebtConfig()

	healthy := position.New(addr(1))
	healthy.HealthFactor = 2.0
	_, err := l.BuildAndExecute(context.Background(), healthy, badDebtCfg)
	assert.ErrorIs(t, err, errNotLiquidatable)
}
