package trigger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestEntryIsTriggeredDown(t *testing.T) {
	entry := Entry{
		TriggerPrice: uint256.NewInt(100_000_000), // $1.00
		Direction:    Down,
		CurrentHF:    1.1,
	}

	t.Run("crosses_downward", func(t *testing.T) {
		assert.True(t, entry.IsTriggered(uint256.NewInt(110_000_000), uint256.NewInt(90_000_000)))
	})

	t.Run("stays_above", func(t *testing.T) {
		assert.False(t, entry.IsTriggered(uint256.NewInt(120_000_000), uint256.NewInt(110_000_000)))
	})
}

func TestEntryIsTriggeredUp(t *testing.T) {
	entry := Entry{
		TriggerPrice: uint256.NewInt(110_000_000), // $1.10
		Direction:    Up,
		CurrentHF:    1.1,
	}

	t.Run("crosses_upward", func(t *testing.T) {
		assert.True(t, entry.IsTriggered(uint256.NewInt(100_000_000), uint256.NewInt(120_000_000)))
	})

	t.Run("stays_below", func(t *testing.T) {
		assert.False(t, entry.IsTriggered(uint256.NewInt(100_000_000), uint256.NewInt(105_000_000)))
	})
}

func TestEntryDistancePct(t *testing.T) {
	entry := Entry{
		TriggerPrice: uint256.NewInt(90_000_000), // $0.90
		Direction:    Down,
		CurrentHF:    1.1,
	}

	distance := entry.DistancePct(uint256.NewInt(100_000_000))
	assert.InDelta(t, 10.0, distance, 0.1)
}

func TestIndexRemoveUserIsIdempotent(t *testing.T) {
	idx := NewIndex()
	var user [20]byte
	user[0] = 1

	idx.RemoveUser(user)
	idx.RemoveUser(user)
	assert.True(t, idx.IsEmpty())
}
