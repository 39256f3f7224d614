package sensitivity

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func testSensitivity() *PositionSensitivity {
	collateralAddr := common.BytesToAddress([]byte{1})
	debtAddr := common.BytesToAddress([]byte{2})

	return &PositionSensitivity{
		BaseHF: 1.1,
		coefficients: []coefficient{
			{asset: collateralAddr, value: 0.008},
			{asset: debtAddr, value: -0.011},
		},
		priceSnapshot: []snapshotPrice{
			{asset: collateralAddr, price: uint256.NewInt(100_000_000)},
			{asset: debtAddr, price: uint256.NewInt(100_000_000)},
		},
		ComputedAt: time.Now(),
	}
}

func TestEstimateHF(t *testing.T) {
	sens := testSensitivity()
	collateralAddr := common.BytesToAddress([]byte{1})
	debtAddr := common.BytesToAddress([]byte{2})

	t.Run("collateral_drop", func(t *testing.T) {
		hf := sens.EstimateHF([]PriceChange{{Asset: collateralAddr, PctChange: -10.0}})
		assert.InDelta(t, 1.02, hf, 0.001)
	})

	t.Run("debt_rise", func(t *testing.T) {
		hf := sens.EstimateHF([]PriceChange{{Asset: debtAddr, PctChange: 10.0}})
		assert.InDelta(t, 0.99, hf, 0.001)
	})
}

func TestEstimateHFFromPrices(t *testing.T) {
	sens := testSensitivity()
	collateralAddr := common.BytesToAddress([]byte{1})

	hf := sens.EstimateHFFromPrices([]NewPrice{{Asset: collateralAddr, Price: uint256.NewInt(90_000_000)}})
	assert.InDelta(t, 1.02, hf, 0.001)
}

func TestCriticalAssets(t *testing.T) {
	sens := testSensitivity()
	critical := sens.CriticalAssets(15.0)
	assert.NotEmpty(t, critical, "debt coefficient needs ~9.09%% rise, within 15%% window")
}
