package prestage

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/swaprouter"
)

func addr(b byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestPriceDeviationBps(t *testing.T) {
	base := uint256.NewInt(100_000_000)

	t.Run("0.6pct_up_triggers_at_50bps", func(t *testing.T) {
		moved := new(uint256.Int).Add(base, uint256.NewInt(600_000))
		assert.True(t, PriceDeviationExceedsBps(base, moved, 50))
	})

	t.Run("0.6pct_down_triggers_at_50bps", func(t *testing.T) {
		moved := new(uint256.Int).Sub(base, uint256.NewInt(600_000))
		assert.True(t, PriceDeviationExceedsBps(base, moved, 50))
	})

	t.Run("0.4pct_does_not_trigger_at_50bps", func(t *testing.T) {
		moved := new(uint256.Int).Add(base, uint256.NewInt(400_000))
		assert.False(t, PriceDeviationExceedsBps(base, moved, 50))
	})

	t.Run("zero_price_counts_as_deviated", func(t *testing.T) {
		assert.True(t, PriceDeviationExceedsBps(uint256.NewInt(0), base, 50))
	})
}

func TestStagedValidity(t *testing.T) {
	sl := &StagedLiquidation{
		User:              addr(1),
		StagedAt:          time.Now(),
		TTL:               15 * time.Second,
		PositionStateHash: 42,
		PriceAtStaging: map[common.Address]*uint256.Int{
			addr(2): uint256.NewInt(100_000_000),
		},
	}

	assert.True(t, sl.IsValid())
	assert.False(t, sl.IsPositionChanged(42))
	assert.True(t, sl.IsPositionChanged(43))

	livePrices := map[common.Address]*uint256.Int{addr(2): uint256.NewInt(100_000_000)}
	assert.False(t, sl.IsPriceStale(livePrices, 50))

	livePrices[addr(2)] = uint256.NewInt(101_000_000)
	assert.True(t, sl.IsPriceStale(livePrices, 50))

	sl.StagedAt = time.Now().Add(-20 * time.Second)
	assert.False(t, sl.IsValid())
	assert.Equal(t, time.Duration(0), sl.TimeRemaining())
}

func TestPrecomputedCalldata(t *testing.T) {
	sl := &StagedLiquidation{StagedAt: time.Now(), TTL: 15 * time.Second}
	assert.False(t, sl.HasPrecomputedCalldata())
	assert.False(t, sl.IsReadyForInstantExecution())

	sl.Calldata = []byte{0x01, 0x02}
	assert.True(t, sl.HasPrecomputedCalldata())
	assert.True(t, sl.IsReadyForInstantExecution())

	data, ok := sl.GetCalldata()
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02}, data)
}

func TestPreStagerShouldStage(t *testing.T) {
	p := NewPreStager()

	assert.True(t, p.ShouldStage(1.0, false, 100.0))
	assert.False(t, p.ShouldStage(1.5, false, 100.0), "HF above threshold should not stage")
	assert.False(t, p.ShouldStage(1.0, true, 100.0), "bad debt positions never stage")
	assert.False(t, p.ShouldStage(1.0, false, 0.5), "debt below minimum should not stage")
}

func TestPreStagerLifecycle(t *testing.T) {
	p := NewPreStager()
	user := addr(5)
	collateralAsset := addr(6)
	debtAsset := addr(7)

	p.Stage(user, &StagedLiquidation{
		CollateralAsset:   collateralAsset,
		DebtAsset:         debtAsset,
		DebtToCover:       uint256.NewInt(1000),
		PositionStateHash: 1,
	})

	assert.True(t, p.HasValidStaged(user))

	sl, ok := p.GetValidStaged(user)
	require.True(t, ok)
	assert.Equal(t, user, sl.User)

	stats := p.Stats()
	assert.Equal(t, 1, stats.TotalStaged)
	assert.Equal(t, 1, stats.ValidStaged)
	assert.Equal(t, 0, stats.ExpiredStaged)

	route := swaprouter.SwapRoute{RouterID: "test", TokenIn: collateralAsset, TokenOut: debtAsset}
	p.CacheSwapRoute(collateralAsset, debtAsset, route)
	cached, ok := p.GetSwapRoute(collateralAsset, debtAsset)
	require.True(t, ok)
	assert.Equal(t, "test", cached.RouterID)

	removedByAsset := p.InvalidateByAsset(collateralAsset)
	assert.Equal(t, 1, removedByAsset)
	assert.False(t, p.HasValidStaged(user))
}

func TestValidateStagedPrecedence(t *testing.T) {
	p := NewPreStager()
	user := addr(8)

	result := p.ValidateStaged(user, 1, nil)
	assert.Equal(t, NotStaged, result.Kind)

	p.Stage(user, &StagedLiquidation{PositionStateHash: 1})

	result = p.ValidateStaged(user, 2, nil)
	assert.Equal(t, PositionChanged, result.Kind)

	result = p.ValidateStaged(user, 1, nil)
	assert.Equal(t, Valid, result.Kind)
	staged, ok := result.IntoStaged()
	require.True(t, ok)
	assert.Equal(t, user, staged.User)

	sl, _ := p.GetStaged(user)
	sl.StagedAt = time.Now().Add(-20 * time.Second)
	result = p.ValidateStaged(user, 1, nil)
	assert.Equal(t, Expired, result.Kind)
}

func TestCleanupExpired(t *testing.T) {
	p := NewPreStager()
	user := addr(9)
	p.Stage(user, &StagedLiquidation{})

	sl, _ := p.GetStaged(user)
	sl.StagedAt = time.Now().Add(-1 * time.Minute)

	removed := p.CleanupExpired()
	assert.Equal(t, 1, removed)
	_, ok := p.GetStaged(user)
	assert.False(t, ok)
}
