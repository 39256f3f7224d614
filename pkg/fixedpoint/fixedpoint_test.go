package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestApplyBPS(t *testing.T) {
	value := uint256.NewInt(1000)

	t.Run("1pct_reduction", func(t *testing.T) {
		assert.Equal(t, uint256.NewInt(990), ApplyBPS(value, 100))
	})

	t.Run("10pct_reduction", func(t *testing.T) {
		assert.Equal(t, uint256.NewInt(900), ApplyBPS(value, 1000))
	})

	t.Run("zero_bps_is_identity", func(t *testing.T) {
		assert.Equal(t, value, ApplyBPS(value, 0))
	})

	t.Run("full_bps_zeroes_out", func(t *testing.T) {
		assert.True(t, ApplyBPS(value, 10000).IsZero())
	})
}

func TestApplyBPSUp(t *testing.T) {
	value := uint256.NewInt(1000)
	assert.Equal(t, uint256.NewInt(1200), ApplyBPSUp(value, 2000))
}

func TestUsdWad(t *testing.T) {
	t.Run("usdc_6_decimals", func(t *testing.T) {
		amount := uint256.NewInt(1000_000000)
		price := uint256.NewInt(100_000_000) // $1.00
		got := UsdWad(amount, price, 6)
		want := new(uint256.Int).Mul(uint256.NewInt(1000), WAD)
		assert.Equal(t, want, got)
	})

	t.Run("eth_18_decimals", func(t *testing.T) {
		amount := new(uint256.Int).Mul(uint256.NewInt(15), new(uint256.Int).Div(WAD, uint256.NewInt(10))) // 1.5 ETH
		price := uint256.NewInt(200_000_000_000)                // $2000.00
		got := UsdWad(amount, price, 18)
		want := new(uint256.Int).Mul(uint256.NewInt(3000), WAD)
		assert.Equal(t, want, got)
	})

	t.Run("zero_amount", func(t *testing.T) {
		assert.True(t, UsdWad(new(uint256.Int), uint256.NewInt(1), 6).IsZero())
	})
}

func TestWadToFloat(t *testing.T) {
	wad := new(uint256.Int).Mul(uint256.NewInt(1000), WAD)
	assert.InDelta(t, 1000.0, WadToFloat(wad), 0.001)
}

func TestHfWad(t *testing.T) {
	t.Run("debt_zero_is_infinite", func(t *testing.T) {
		assert.Equal(t, MaxU256(), HfWad(uint256.NewInt(100), new(uint256.Int)))
	})

	t.Run("two_to_one", func(t *testing.T) {
		collateral := new(uint256.Int).Mul(uint256.NewInt(1000), WAD)
		debt := new(uint256.Int).Mul(uint256.NewInt(500), WAD)
		want := new(uint256.Int).Mul(uint256.NewInt(2), WAD)
		assert.Equal(t, want, HfWad(collateral, debt))
	})
}

func TestIsLiquidatableWad(t *testing.T) {
	nine := new(uint256.Int).Div(new(uint256.Int).Mul(WAD, uint256.NewInt(9)), uint256.NewInt(10))
	eleven := new(uint256.Int).Div(new(uint256.Int).Mul(WAD, uint256.NewInt(11)), uint256.NewInt(10))

	assert.True(t, IsLiquidatableWad(nine))
	assert.False(t, IsLiquidatableWad(eleven))
	assert.False(t, IsLiquidatableWad(WAD), "exactly 1.0 is not liquidatable")
}

func TestPctDiffBps(t *testing.T) {
	old := uint256.NewInt(100)

	t.Run("10pct_increase", func(t *testing.T) {
		assert.Equal(t, int64(1000), PctDiffBps(old, uint256.NewInt(110)))
	})

	t.Run("10pct_decrease", func(t *testing.T) {
		assert.Equal(t, int64(-1000), PctDiffBps(old, uint256.NewInt(90)))
	})

	t.Run("old_zero_returns_zero", func(t *testing.T) {
		assert.Equal(t, int64(0), PctDiffBps(new(uint256.Int), uint256.NewInt(5)))
	})
}

func TestPriceDeviationExceedsBps(t *testing.T) {
	old := uint256.NewInt(10000)
	withinThreshold := uint256.NewInt(10040) // 0.4%
	overThreshold := uint256.NewInt(10060)   // 0.6%

	assert.False(t, PriceDeviationExceedsBps(old, withinThreshold, 50))
	assert.True(t, PriceDeviationExceedsBps(old, overThreshold, 50))
}

func TestPow10Lookup(t *testing.T) {
	assert.Equal(t, uint256.NewInt(1), Pow10(0))
	assert.Equal(t, uint256.NewInt(1_000_000), Pow10(6))
	assert.Equal(t, WAD, Pow10(18))
}

func TestWadMulDiv(t *testing.T) {
	a := new(uint256.Int).Mul(uint256.NewInt(2), WAD)
	b := new(uint256.Int).Mul(uint256.NewInt(3), WAD)

	assert.Equal(t, new(uint256.Int).Mul(uint256.NewInt(6), WAD), WadMul(a, b))
	assert.Equal(t, MaxU256(), WadDiv(a, new(uint256.Int)))
}
