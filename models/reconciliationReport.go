package models

import "time"

// ReconciliationReport is one persisted drift finding that needs a human.
// Auto-corrected drift is not persisted; it only shows up in the run result.
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	TenantId      string    `gorm:"size:36;index;not null" json:"tenant_id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"` // BALANCE_DRIFT, ORPHAN_BALANCE
	ItemId        int       `gorm:"index;not null" json:"item_id"`
	LocationId    int       `gorm:"not null" json:"location_id"`
	LotNumber     string    `gorm:"size:100" json:"lot_number"`
	Details       string    `gorm:"type:text" json:"details"` // human-readable mismatch detail
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *ReconciliationReport) GetTenantId() string { return r.TenantId }
