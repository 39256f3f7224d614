package oracle

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func addr(b byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestHeartbeatStalenessPct(t *testing.T) {
	oracleAddr := addr(1)
	predictor := NewHeartbeatPredictor(map[common.Address]time.Duration{
		oracleAddr: time.Hour,
	})

	now := time.Now().Unix()
	predictor.RecordUpdate(oracleAddr, now-1800, 100) // 30 min ago

	pct, ok := predictor.StalenessPct(oracleAddr)
	assert.True(t, ok)
	assert.InDelta(t, 50.0, pct, 5.0)
	assert.False(t, predictor.IsStale(oracleAddr))
}

func TestHeartbeatImminent(t *testing.T) {
	oracleAddr := addr(1)
	predictor := NewHeartbeatPredictor(map[common.Address]time.Duration{
		oracleAddr: time.Minute,
	})

	now := time.Now().Unix()
	predictor.RecordUpdate(oracleAddr, now-59, 100)

	assert.True(t, predictor.IsUpdateImminent(oracleAddr, 5*time.Second))
}

func TestDualOracleTierSequence(t *testing.T) {
	next, ok := Primary.NextTier()
	assert.True(t, ok)
	assert.Equal(t, Secondary, next)

	next, ok = Secondary.NextTier()
	assert.True(t, ok)
	assert.Equal(t, Emergency, next)

	_, ok = Emergency.NextTier()
	assert.False(t, ok)
}

func TestDualOracleStalenessThresholds(t *testing.T) {
	assert.Equal(t, 30*time.Minute, Primary.StalenessThreshold())
	assert.Equal(t, time.Hour, Secondary.StalenessThreshold())
}

func TestDualOracleMonitorInitialization(t *testing.T) {
	oracles := []common.Address{addr(1), addr(2), addr(3)}
	monitor := NewDualOracleMonitor(oracles)

	for _, o := range oracles {
		tier, ok := monitor.CurrentTier(o)
		assert.True(t, ok)
		assert.Equal(t, Primary, tier)
	}
}

func TestDualOracleTransitionDetection(t *testing.T) {
	oracleAddr := addr(1)
	monitor := NewDualOracleMonitor([]common.Address{oracleAddr})

	now := time.Now().Unix()
	monitor.RecordTierUpdate(oracleAddr, Primary, now-2100) // 35 min ago

	transition, ok := monitor.CheckTransition(oracleAddr)
	assert.True(t, ok)
	assert.Equal(t, Primary, transition.From)
	assert.Equal(t, Secondary, transition.To)
	assert.Nil(t, transition.TimeUntil)
}
