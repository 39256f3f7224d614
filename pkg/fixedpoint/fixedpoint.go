// Package fixedpoint provides native U256 fixed-point arithmetic for
// liquidation math: WAD/RAY scaling, basis-point adjustments, and USD/HF
// conversions. All financial quantities flow through uint256.Int; string
// round-trips through big.Int are reserved for logging and config parsing.
package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"
)

// WAD is the 18-decimal fixed-point unit.
var WAD = uint256.NewInt(1_000_000_000_000_000_000)

// RAY is the 27-decimal fixed-point unit.
var RAY, _ = uint256.FromBig(new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil))

// BPSDenominator is 10000, i.e. 100% expressed in basis points.
var BPSDenominator = uint256.NewInt(10000)

// PriceDecimals is the fixed decimal precision oracle prices are quoted in.
const PriceDecimals = 8

// pow10 is a lookup table for 10^0..10^38, avoiding repeated exponentiation
// in hot paths.
var pow10Table [39]*uint256.Int

func init() {
	v := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 0; i < 39; i++ {
		pow10Table[i] = new(uint256.Int).Set(v)
		v = new(uint256.Int).Mul(v, ten)
	}
}

// Pow10 returns 10^exp as a U256, using the lookup table for exp < 39.
func Pow10(exp int) *uint256.Int {
	if exp >= 0 && exp < len(pow10Table) {
		return pow10Table[exp]
	}
	result := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 0; i < exp; i++ {
		result.Mul(result, ten)
	}
	return result
}

// ApplyBPS returns value*(10000-bps)/10000, i.e. a reduction by bps basis
// points (used for slippage floors). bps above 10000 saturates to 0.
func ApplyBPS(value *uint256.Int, bps uint16) *uint256.Int {
	factor := uint16(10000)
	if bps >= factor {
		factor = 0
	} else {
		factor -= bps
	}
	out := new(uint256.Int).Mul(value, uint256.NewInt(uint64(factor)))
	return out.Div(out, BPSDenominator)
}

// ApplyBPSUp returns value*(10000+bps)/10000, i.e. an increase by bps basis
// points (used for gas buffers and ceilings).
func ApplyBPSUp(value *uint256.Int, bps uint16) *uint256.Int {
	factor := uint32(10000) + uint32(bps)
	out := new(uint256.Int).Mul(value, uint256.NewInt(uint64(factor)))
	return out.Div(out, BPSDenominator)
}

// UsdWad scales a token amount at a given oracle price into an 18-decimal
// USD value. Prices are assumed to carry PriceDecimals decimals.
//
// result = amount * price * 10^(18 - decimals - 8)
func UsdWad(amount, price *uint256.Int, decimals uint8) *uint256.Int {
	if amount.IsZero() || price.IsZero() {
		return new(uint256.Int)
	}
	adjustment := 18 - int(decimals) - PriceDecimals
	product := new(uint256.Int).Mul(amount, price)
	if adjustment >= 0 {
		return product.Mul(product, Pow10(adjustment))
	}
	return product.Div(product, Pow10(-adjustment))
}

// UsdFloat is UsdWad converted to float64, for logging only.
func UsdFloat(amount, price *uint256.Int, decimals uint8) float64 {
	return WadToFloat(UsdWad(amount, price, decimals))
}

// WadToFloat converts an 18-decimal fixed-point value to float64. For
// display and logging only; never feed the result back into hot-path math.
func WadToFloat(wad *uint256.Int) float64 {
	f := new(big.Float).SetInt(wad.ToBig())
	f.Quo(f, new(big.Float).SetInt(WAD.ToBig()))
	out, _ := f.Float64()
	return out
}

// ToFloat converts a raw U256 integer to float64, with no WAD scaling. For
// display/logging and for feeding legacy float-based formulas; never for
// hot-path decision math.
func ToFloat(v *uint256.Int) float64 {
	f := new(big.Float).SetInt(v.ToBig())
	out, _ := f.Float64()
	return out
}

// FloatToU256 converts a non-negative float64 into the nearest U256 integer
// (no scaling applied). Negative, NaN, or out-of-range inputs return zero.
func FloatToU256(v float64) *uint256.Int {
	if v <= 0 || v != v || v > 1e300 {
		return new(uint256.Int)
	}
	bf := new(big.Float).SetFloat64(v)
	i, _ := bf.Int(nil)
	out, overflow := uint256.FromBig(i)
	if overflow {
		return MaxU256()
	}
	return out
}

// FloatToWad converts a float64 into 18-decimal fixed point. Intended for
// turning operator-facing config values into U256, not for hot-path math.
func FloatToWad(value float64) *uint256.Int {
	if value <= 0 {
		return new(uint256.Int)
	}
	f := new(big.Float).SetFloat64(value)
	f.Mul(f, new(big.Float).SetInt(WAD.ToBig()))
	i, _ := f.Int(nil)
	out, overflow := uint256.FromBig(i)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return out
}

// MaxU256 is the sentinel "infinite health factor" / "seize everything"
// value used when debt is zero or a swap fully covers the debt.
func MaxU256() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// HfWad computes the health factor in WAD given risk-adjusted collateral
// and debt, both already in WAD. Returns MaxU256 when debt is zero.
func HfWad(collateralAdjustedWad, debtWad *uint256.Int) *uint256.Int {
	if debtWad.IsZero() {
		return MaxU256()
	}
	out := new(uint256.Int).Mul(collateralAdjustedWad, WAD)
	return out.Div(out, debtWad)
}

// IsLiquidatableWad reports whether a WAD health factor is below 1.0.
func IsLiquidatableWad(hfWad *uint256.Int) bool {
	return hfWad.Lt(WAD)
}

// PctDiffBps returns the signed basis-point difference between old and new,
// i.e. ((new-old)*10000)/old. Returns 0 when old is zero.
func PctDiffBps(old, newVal *uint256.Int) int64 {
	if old.IsZero() {
		return 0
	}
	if newVal.Cmp(old) >= 0 {
		diff := new(uint256.Int).Sub(newVal, old)
		bps := diff.Mul(diff, BPSDenominator)
		bps.Div(bps, old)
		return int64(bps.Uint64())
	}
	diff := new(uint256.Int).Sub(old, newVal)
	bps := diff.Mul(diff, BPSDenominator)
	bps.Div(bps, old)
	return -int64(bps.Uint64())
}

// PriceDeviationExceedsBps reports whether the unsigned percentage move
// from old to new exceeds thresholdBps.
func PriceDeviationExceedsBps(old, newVal *uint256.Int, thresholdBps uint16) bool {
	d := PctDiffBps(old, newVal)
	if d < 0 {
		d = -d
	}
	return d > int64(thresholdBps)
}

// PctFloat returns value/total as a percentage, for display only.
func PctFloat(value, total *uint256.Int) float64 {
	if total.IsZero() {
		return 0
	}
	bps := new(uint256.Int).Mul(value, BPSDenominator)
	bps.Div(bps, total)
	return float64(bps.Uint64()) / 100.0
}

// WadMul multiplies two WAD values: (a*b)/WAD.
func WadMul(a, b *uint256.Int) *uint256.Int {
	out := new(uint256.Int).Mul(a, b)
	return out.Div(out, WAD)
}

// WadDiv divides two WAD values: (a*WAD)/b. Returns MaxU256 if b is zero.
func WadDiv(a, b *uint256.Int) *uint256.Int {
	if b.IsZero() {
		return MaxU256()
	}
	out := new(uint256.Int).Mul(a, WAD)
	return out.Div(out, b)
}

// TriggerPriceCollateral returns the price a collateral asset would need to
// fall to, from currentPrice, for a position to cross HF=1.0, given the
// distance in basis points already computed by the caller.
func TriggerPriceCollateral(currentPrice *uint256.Int, distanceBps uint16) *uint256.Int {
	return ApplyBPS(currentPrice, distanceBps)
}

// TriggerPriceDebt returns the price a debt asset would need to rise to for
// a position to cross HF=1.0.
func TriggerPriceDebt(currentPrice *uint256.Int, distanceBps uint16) *uint256.Int {
	return ApplyBPSUp(currentPrice, distanceBps)
}

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return a
	}
	return b
}
