package models

import (
	"context"
	"errors"
	"time"

	"github.com/datamindworks/stocktrail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceRecord is the materialized running total for one
// (tenant, item, location, lot) key. It is a cache over the ledger: absence
// of a row means quantity zero, and reconciliation may rewrite or delete it.
type BalanceRecord struct {
	ID          int             `gorm:"primary_key" json:"id"`
	TenantId    string          `gorm:"size:36;uniqueIndex:idx_balance_key,priority:1;not null" json:"tenant_id"`
	ItemId      int             `gorm:"uniqueIndex:idx_balance_key,priority:2;not null" json:"item_id"`
	LocationId  int             `gorm:"uniqueIndex:idx_balance_key,priority:3;not null" json:"location_id"`
	LotNumber   string          `gorm:"size:100;uniqueIndex:idx_balance_key,priority:4" json:"lot_number"` // empty = no lot
	Qty         decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"qty"`
	LastEntryId string          `gorm:"size:36" json:"last_entry_id"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *BalanceRecord) GetTenantId() string { return b.TenantId }

var balanceKeyColumns = []clause.Column{
	{Name: "tenant_id"},
	{Name: "item_id"},
	{Name: "location_id"},
	{Name: "lot_number"},
}

// applyBalanceDelta adds qty to the key's balance, creating the row on first
// use. The additive SET runs in SQL, so concurrent writers to the same key
// cannot lose updates; the conflict target closes the first-insert race.
func applyBalanceDelta(tx *gorm.DB, tenantId string, itemId, locationId int, lotNumber string, qty decimal.Decimal, entryId string) error {
	record := BalanceRecord{
		TenantId:    tenantId,
		ItemId:      itemId,
		LocationId:  locationId,
		LotNumber:   lotNumber,
		Qty:         qty,
		LastEntryId: entryId,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: balanceKeyColumns,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"qty":           gorm.Expr("qty + ?", qty),
			"last_entry_id": entryId,
			"updated_at":    time.Now().UTC(),
		}),
	}).Create(&record).Error
}

// upsertBalanceAbsolute rewrites the key's balance to an exact quantity.
// Used by reconciliation repair and backfill, never by the live write path.
func upsertBalanceAbsolute(tx *gorm.DB, tenantId string, itemId, locationId int, lotNumber string, qty decimal.Decimal, entryId string) error {
	record := BalanceRecord{
		TenantId:    tenantId,
		ItemId:      itemId,
		LocationId:  locationId,
		LotNumber:   lotNumber,
		Qty:         qty,
		LastEntryId: entryId,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: balanceKeyColumns,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"qty":           qty,
			"last_entry_id": entryId,
			"updated_at":    time.Now().UTC(),
		}),
	}).Create(&record).Error
}

// CurrentBalance returns the materialized quantity for a key. No row is a
// defined value (zero), not an error; the full ledger is never scanned here.
func CurrentBalance(ctx context.Context, db *gorm.DB, itemId, locationId int, lotNumber string) (decimal.Decimal, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return decimal.Zero, utils.ErrTenantRequired
	}

	var record BalanceRecord
	err := db.WithContext(ctx).
		Where("item_id = ? AND location_id = ? AND lot_number = ?", itemId, locationId, lotNumber).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return record.Qty, nil
}

// ListBalances returns the non-zero balances for a location.
func ListBalances(ctx context.Context, db *gorm.DB, locationId int) ([]*BalanceRecord, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.ErrTenantRequired
	}

	var records []*BalanceRecord
	if err := db.WithContext(ctx).
		Where("location_id = ?", locationId).
		Not("qty = 0").
		Order("item_id, lot_number").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
