package db

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Recorder{db: gormDB}, mock
}

func TestRecordLiquidation(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `liquidations`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	collateral := common.HexToAddress("0x2222222222222222222222222222222222222222")
	debt := common.HexToAddress("0x3333333333333333333333333333333333333333")
	debtToCover := uint256.NewInt(1_000_000)

	err := recorder.RecordLiquidation(user, "critical", collateral, debt, debtToCover, 12.5, common.HexToHash("0xaa"), common.HexToHash("0xbb"), true, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLiquidation_WithError(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `liquidations`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	err := recorder.RecordLiquidation(user, "hot", common.Address{}, common.Address{}, nil, 0, common.Hash{}, common.Hash{}, false, errors.New("liquidation not profitable"))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTierTransition(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `tier_transitions`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	subject := common.HexToAddress("0x4444444444444444444444444444444444444444")
	err := recorder.RecordTierTransition(subject, "position", "warm", "hot")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestU256ToString(t *testing.T) {
	tests := []struct {
		name     string
		input    *uint256.Int
		expected string
	}{
		{"nil value", nil, "0"},
		{"zero value", uint256.NewInt(0), "0"},
		{"positive value", uint256.NewInt(123456789), "123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, u256ToString(tt.input))
		})
	}
}

func TestLiquidationRecord_TableName(t *testing.T) {
	assert.Equal(t, "liquidations", LiquidationRecord{}.TableName())
}

func TestTierTransitionRecord_TableName(t *testing.T) {
	assert.Equal(t, "tier_transitions", TierTransitionRecord{}.TableName())
}
