package models

import (
	"context"
	"errors"
	"time"

	"github.com/datamindworks/stocktrail_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var validate = validator.New()

// ErrLedgerEntryImmutable guards the audit trail: ledger rows are never
// updated or deleted once written.
var ErrLedgerEntryImmutable = errors.New("ledger entries are append-only")

// ErrZeroQuantity rejects movements that change nothing.
var ErrZeroQuantity = errors.New("movement quantity must be non-zero")

// LedgerEntry is one immutable inventory movement. The composite index matches
// the balance key so reconciliation can GROUP BY it at scale.
type LedgerEntry struct {
	ID            string          `gorm:"size:36;primary_key" json:"id"` // uuid
	TenantId      string          `gorm:"size:36;index:idx_ledger_key,priority:1;not null" json:"tenant_id"`
	ItemId        int             `gorm:"index:idx_ledger_key,priority:2;not null" json:"item_id"`
	LocationId    int             `gorm:"index:idx_ledger_key,priority:3;not null" json:"location_id"`
	LotNumber     string          `gorm:"size:100;index:idx_ledger_key,priority:4" json:"lot_number"` // empty = no lot
	Qty           decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"qty"`
	Kind          MovementKind    `gorm:"size:20;not null" json:"kind"`
	ReasonCode    string          `gorm:"size:50" json:"reason_code"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	ActorId       int             `gorm:"index" json:"actor_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (e *LedgerEntry) GetTenantId() string { return e.TenantId }

func (e *LedgerEntry) BeforeUpdate(tx *gorm.DB) error { return ErrLedgerEntryImmutable }

func (e *LedgerEntry) BeforeDelete(tx *gorm.DB) error { return ErrLedgerEntryImmutable }

// NewMovement is the append-movement input. The tenant and actor come from the
// request context, never from the payload.
type NewMovement struct {
	ItemId        int             `json:"item_id" validate:"required,gt=0"`
	LocationId    int             `json:"location_id" validate:"required,gt=0"`
	LotNumber     string          `json:"lot_number" validate:"omitempty,max=100"`
	Qty           decimal.Decimal `json:"qty"`
	Kind          MovementKind    `json:"kind" validate:"required,oneof=receipt shipment adjustment count_posted transfer_in transfer_out"`
	ReasonCode    string          `json:"reason_code" validate:"omitempty,max=50"`
	CorrelationId string          `json:"correlation_id" validate:"omitempty,max=64"`
}

// AppendMovement writes one ledger entry and its balance effect in a single
// transaction: a committed entry always has its delta applied, and vice versa.
func AppendMovement(ctx context.Context, db *gorm.DB, input *NewMovement) (*LedgerEntry, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.ErrTenantRequired
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.Qty.IsZero() {
		return nil, ErrZeroQuantity
	}
	if err := RequireActiveTenant(ctx, db, tenantId); err != nil {
		return nil, err
	}

	correlationId := input.CorrelationId
	if correlationId == "" {
		if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			correlationId = cid
		} else {
			correlationId = uuid.NewString()
		}
	}
	actorId, _ := utils.GetActorIdFromContext(ctx)

	entry := LedgerEntry{
		ID:            uuid.NewString(),
		TenantId:      tenantId,
		ItemId:        input.ItemId,
		LocationId:    input.LocationId,
		LotNumber:     input.LotNumber,
		Qty:           input.Qty,
		Kind:          input.Kind,
		ReasonCode:    input.ReasonCode,
		CorrelationId: correlationId,
		ActorId:       actorId,
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return applyBalanceDelta(tx, entry.TenantId, entry.ItemId, entry.LocationId, entry.LotNumber, entry.Qty, entry.ID)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MovementFilter narrows ListMovements. Zero values mean "any".
type MovementFilter struct {
	ItemId     int
	LocationId int
	LotNumber  *string
	Kind       MovementKind
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

func ListMovements(ctx context.Context, db *gorm.DB, filter MovementFilter) ([]*LedgerEntry, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, utils.ErrTenantRequired
	}

	dbCtx := db.WithContext(ctx).Model(&LedgerEntry{})
	if filter.ItemId > 0 {
		dbCtx = dbCtx.Where("item_id = ?", filter.ItemId)
	}
	if filter.LocationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", filter.LocationId)
	}
	if filter.LotNumber != nil {
		dbCtx = dbCtx.Where("lot_number = ?", *filter.LotNumber)
	}
	if filter.Kind != "" {
		dbCtx = dbCtx.Where("kind = ?", filter.Kind)
	}
	if filter.From != nil {
		dbCtx = dbCtx.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		dbCtx = dbCtx.Where("created_at <= ?", *filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var entries []*LedgerEntry
	if err := dbCtx.Order("created_at DESC, id DESC").
		Limit(limit).Offset(filter.Offset).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
