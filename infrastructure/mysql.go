package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// LedgerHeader holds the header row of one ledger.
type LedgerHeader struct {
	ID        uint   `gorm:"primaryKey"`
	Ledger    string `gorm:"size:255;not null;index"`
	Cells     string `gorm:"type:json;not null"`
	CreatedAt time.Time
}

// LedgerRow is one appended data row.
type LedgerRow struct {
	ID        uint   `gorm:"primaryKey"`
	Ledger    string `gorm:"size:255;not null;index"`
	Cells     string `gorm:"type:json;not null"`
	CreatedAt time.Time
}

// SQLLedger keeps ledgers in two MySQL tables instead of a spreadsheet.
type SQLLedger struct {
	db *gorm.DB
}

// NewMySQLLedger connects to dsn and creates the ledger tables if needed.
func NewMySQLLedger(dsn string) (*SQLLedger, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.AutoMigrate(&LedgerHeader{}, &LedgerRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return NewSQLLedger(db), nil
}

func NewSQLLedger(db *gorm.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

// EnsureHeader stores headers unless the ledger already has a header row.
// The check and the insert are not atomic; concurrent first writers may both
// insert.
func (l *SQLLedger) EnsureHeader(ctx context.Context, ledgerID string, headers []string) error {
	var existing []LedgerHeader
	err := l.db.WithContext(ctx).
		Where("ledger = ?", ledgerID).
		Limit(1).
		Find(&existing).Error
	if err != nil {
		return fmt.Errorf("failed to read header row: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	cells, err := json.Marshal(headers)
	if err != nil {
		return err
	}
	if err := l.db.WithContext(ctx).Create(&LedgerHeader{Ledger: ledgerID, Cells: string(cells)}).Error; err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	return nil
}

// Ping checks the database connection. Both ledgers share it, so ledgerID is
// not used.
func (l *SQLLedger) Ping(ctx context.Context, _ string) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (l *SQLLedger) AppendRow(ctx context.Context, ledgerID string, row []string) error {
	cells, err := json.Marshal(row)
	if err != nil {
		return err
	}
	if err := l.db.WithContext(ctx).Create(&LedgerRow{Ledger: ledgerID, Cells: string(cells)}).Error; err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	return nil
}
