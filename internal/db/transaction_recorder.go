// Package db persists a history of liquidation submissions and tier
// transitions for observability. The core engine itself is stateless across
// restarts (bootstrap fully rebuilds); this package is a side-effect
// recorder the scanner calls into, not a source of truth it depends on.
package db

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// LiquidationRecord is one dispatched liquidation attempt: tier at dispatch,
// profit estimate, and outcome.
type LiquidationRecord struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp        time.Time `gorm:"index;not null"`
	User             string    `gorm:"index;not null;type:varchar(42)"`
	Tier             string    `gorm:"not null;type:varchar(16)"`
	CollateralAsset  string    `gorm:"not null;type:varchar(42)"`
	DebtAsset        string    `gorm:"not null;type:varchar(42)"`
	DebtToCover      string    `gorm:"type:varchar(78);not null;comment:uint256 as string"`
	NetProfitUSD     float64   `gorm:"not null"`
	LiquidationTx    string    `gorm:"type:varchar(66)"`
	RescueTx         string    `gorm:"type:varchar(66)"`
	Success          bool      `gorm:"not null"`
	Error            string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

// TableName overrides GORM's pluralized default.
func (LiquidationRecord) TableName() string {
	return "liquidations"
}

// TierTransitionRecord is one position's move between tiers, or one
// DualOracle tier transition.
type TierTransitionRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index;not null"`
	Subject   string    `gorm:"index;not null;type:varchar(42);comment:user or oracle address"`
	Kind      string    `gorm:"not null;type:varchar(16);comment:position or dual_oracle"`
	FromTier  string    `gorm:"not null;type:varchar(16)"`
	ToTier    string    `gorm:"not null;type:varchar(16)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides GORM's pluralized default.
func (TierTransitionRecord) TableName() string {
	return "tier_transitions"
}

// Recorder persists liquidation attempts and tier transitions to MySQL via
// GORM, following the same auto-migrate + typed-record shape the teacher's
// asset-snapshot recorder used.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder opens dsn and migrates the schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewRecorder(dsn string) (*Recorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to mysql: %w", err)
	}
	return NewRecorderWithDB(db)
}

// NewRecorderWithDB wraps an existing GORM DB instance and migrates the
// schema.
func NewRecorderWithDB(db *gorm.DB) (*Recorder, error) {
	if err := db.AutoMigrate(&LiquidationRecord{}, &TierTransitionRecord{}); err != nil {
		return nil, fmt.Errorf("db: migrate schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// RecordLiquidation appends one row for a dispatched liquidation attempt.
func (r *Recorder) RecordLiquidation(user common.Address, tier string, collateralAsset, debtAsset common.Address, debtToCover *uint256.Int, netProfitUSD float64, liquidationTx, rescueTx common.Hash, success bool, attemptErr error) error {
	record := LiquidationRecord{
		Timestamp:       time.Now(),
		User:            user.Hex(),
		Tier:            tier,
		CollateralAsset: collateralAsset.Hex(),
		DebtAsset:       debtAsset.Hex(),
		DebtToCover:     u256ToString(debtToCover),
		NetProfitUSD:    netProfitUSD,
		LiquidationTx:   liquidationTx.Hex(),
		RescueTx:        rescueTx.Hex(),
		Success:         success,
	}
	if attemptErr != nil {
		record.Error = attemptErr.Error()
	}

	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("db: record liquidation: %w", result.Error)
	}
	return nil
}

// RecordTierTransition appends one row for a position or DualOracle tier
// transition.
func (r *Recorder) RecordTierTransition(subject common.Address, kind, from, to string) error {
	record := TierTransitionRecord{
		Timestamp: time.Now(),
		Subject:   subject.Hex(),
		Kind:      kind,
		FromTier:  from,
		ToTier:    to,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("db: record tier transition: %w", result.Error)
	}
	return nil
}

// RecentLiquidations returns the most recent limit liquidation records,
// newest first.
func (r *Recorder) RecentLiquidations(limit int) ([]LiquidationRecord, error) {
	var records []LiquidationRecord
	result := r.db.Order("timestamp DESC").Limit(limit).Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("db: query recent liquidations: %w", result.Error)
	}
	return records, nil
}

// LiquidationsByUser returns every recorded liquidation attempt for user,
// oldest first.
func (r *Recorder) LiquidationsByUser(user common.Address) ([]LiquidationRecord, error) {
	var records []LiquidationRecord
	result := r.db.Where("user = ?", user.Hex()).Order("timestamp ASC").Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("db: query liquidations by user: %w", result.Error)
	}
	return records, nil
}

// CountSuccessfulLiquidations returns the number of recorded liquidations
// that succeeded.
func (r *Recorder) CountSuccessfulLiquidations() (int64, error) {
	var count int64
	result := r.db.Model(&LiquidationRecord{}).Where("success = ?", true).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("db: count successful liquidations: %w", result.Error)
	}
	return count, nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *Recorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the database connection.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("db: get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// u256ToString safely converts a *uint256.Int to its decimal string,
// handling nil.
func u256ToString(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return new(big.Int).SetBytes(value.Bytes()).String()
}
