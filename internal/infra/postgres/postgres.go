// Package postgres is the gorm-backed implementation of the primary
// store contract. Ledger mutations run inside database transactions
// with the account row locked, which gives the per-account
// serialization ApplyBucketDelta requires.
package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mstetsenko/pouch/internal/store"
)

// Open connects to the database behind dsn.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("Open: connecting to postgres: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the schema for every table the store uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&accountRow{},
		&bucketRow{},
		&transactionRow{},
		&transferRow{},
		&ledgerKeyRow{},
		&goalRow{},
		&contributionRow{},
		&liabilityRow{},
		&billRow{},
		&paymentRow{},
		&alertRow{},
	)
	if err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

// Store implements the full primary-store contract on postgres.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)
