// Package store persists periodic KeeperHealth snapshots and a per-dispatch
// audit trail to MySQL via GORM.
package store

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kusd-keeper/keeper/internal/domain"
)

// HealthSnapshotRecord is the GORM model for a periodic KeeperHealth dump.
type HealthSnapshotRecord struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp         time.Time `gorm:"index;not null"`
	Running           bool      `gorm:"not null"`
	Mode              string    `gorm:"size:16;not null"`
	LastTickAt        int64     `gorm:"not null"`
	MonitoredVaults   int       `gorm:"not null"`
	ActiveAuctions    int       `gorm:"not null"`
	LiquidationCount  int64     `gorm:"not null"`
	BidCount          int64     `gorm:"not null"`
	PegArbCount       int64     `gorm:"not null"`
	AccumulatedProfit string    `gorm:"type:varchar(80);not null;comment:big.Int as string, RAD"`
	ErrorCount        int64     `gorm:"not null"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (HealthSnapshotRecord) TableName() string {
	return "health_snapshots"
}

// DispatchKind classifies an audited dispatch for the tx_dispatches table.
type DispatchKind string

const (
	DispatchLiquidation DispatchKind = "liquidation"
	DispatchTake        DispatchKind = "take"
	DispatchFlapBid     DispatchKind = "flap_bid"
	DispatchFlopBid     DispatchKind = "flop_bid"
	DispatchPegArb      DispatchKind = "peg_arb"
)

// TxDispatchRecord is the GORM model for one dispatch attempt, successful or
// not. Ilk and Key are blank when not applicable (e.g. a peg-arb round-trip).
type TxDispatchRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp  time.Time `gorm:"index;not null"`
	Kind       string    `gorm:"size:16;not null;index"`
	Ilk        string    `gorm:"size:64"`
	Key        string    `gorm:"size:80;comment:urn address or auction id"`
	TxHash     string    `gorm:"size:80"`
	ProfitRad  string    `gorm:"type:varchar(80);comment:big.Int as string, RAD, signed"`
	Succeeded  bool      `gorm:"not null"`
	Reason     string    `gorm:"size:256;comment:skip reason or revert reason"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (TxDispatchRecord) TableName() string {
	return "tx_dispatches"
}

// Store persists keeper audit data to MySQL.
type Store struct {
	db *gorm.DB
}

// New opens a MySQL connection and migrates the audit schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return newStore(db)
}

// NewWithDB wraps an existing GORM connection, migrating the audit schema.
func NewWithDB(db *gorm.DB) (*Store, error) {
	return newStore(db)
}

func newStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&HealthSnapshotRecord{}, &TxDispatchRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordHealthSnapshot writes the current KeeperHealth as a new row.
func (s *Store) RecordHealthSnapshot(h domain.KeeperHealth) error {
	record := HealthSnapshotRecord{
		Timestamp:         time.Now(),
		Running:           h.Running,
		Mode:              string(h.Mode),
		LastTickAt:        h.LastTickAt,
		MonitoredVaults:   h.MonitoredVaults,
		ActiveAuctions:    h.ActiveAuctions,
		LiquidationCount:  h.LiquidationCount,
		BidCount:          h.BidCount,
		PegArbCount:       h.PegArbCount,
		AccumulatedProfit: bigIntToString(h.AccumulatedProfit),
		ErrorCount:        h.ErrorCount,
	}
	if result := s.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record health snapshot: %w", result.Error)
	}
	return nil
}

// RecordDispatch writes one audited dispatch attempt.
func (s *Store) RecordDispatch(kind DispatchKind, ilk, key, txHash string, profitRad *big.Int, succeeded bool, reason string) error {
	record := TxDispatchRecord{
		Timestamp: time.Now(),
		Kind:      string(kind),
		Ilk:       ilk,
		Key:       key,
		TxHash:    txHash,
		ProfitRad: bigIntToString(profitRad),
		Succeeded: succeeded,
		Reason:    reason,
	}
	if result := s.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record dispatch: %w", result.Error)
	}
	return nil
}

// LatestHealthSnapshot returns the most recently recorded KeeperHealth row.
func (s *Store) LatestHealthSnapshot() (*HealthSnapshotRecord, error) {
	var record HealthSnapshotRecord
	result := s.db.Order("timestamp DESC").First(&record)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get latest health snapshot: %w", result.Error)
	}
	return &record, nil
}

// DispatchesByKind retrieves all dispatch records of a given kind within a
// time range, ordered oldest first.
func (s *Store) DispatchesByKind(kind DispatchKind, start, end time.Time) ([]TxDispatchRecord, error) {
	var records []TxDispatchRecord
	result := s.db.Where("kind = ? AND timestamp BETWEEN ? AND ?", string(kind), start, end).
		Order("timestamp ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get dispatches by kind: %w", result.Error)
	}
	return records, nil
}

// CountDispatches returns the total number of recorded dispatch attempts.
func (s *Store) CountDispatches() (int64, error) {
	var count int64
	result := s.db.Model(&TxDispatchRecord{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count dispatches: %w", result.Error)
	}
	return count, nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (s *Store) GetDB() *gorm.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// bigIntToString safely converts *big.Int to string, handling nil values.
func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
