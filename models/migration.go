package models

import "gorm.io/gorm"

// MigrateTable creates/updates the table set. Ledger and balance tables carry
// a composite key index so reconciliation can group-and-sum at scale.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Tenant{},
		&LedgerEntry{},
		&BalanceRecord{},
		&ReconciliationReport{},
	)
}
