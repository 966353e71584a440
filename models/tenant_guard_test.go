package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/datamindworks/stocktrail_backend/models"
	"github.com/datamindworks/stocktrail_backend/utils"
	"github.com/shopspring/decimal"
)

// A query scoped to one tenant must never return another tenant's rows,
// whatever filters the caller supplies.
func TestTenantGuard_IsolationInvariant(t *testing.T) {
	db := openTestDB(t)
	tenant1ID, ctx1 := newTestTenant(t, db, "Tenant One")
	tenant2ID, ctx2 := newTestTenant(t, db, "Tenant Two")

	mustAppend(t, ctx1, db, &models.NewMovement{
		ItemId: 1, LocationId: 1,
		Qty: decimal.NewFromInt(10), Kind: models.MovementKindReceipt,
	})
	mustAppend(t, ctx2, db, &models.NewMovement{
		ItemId: 1, LocationId: 1,
		Qty: decimal.NewFromInt(99), Kind: models.MovementKindReceipt,
	})

	var entries []models.LedgerEntry
	if err := db.WithContext(ctx1).Find(&entries).Error; err != nil {
		t.Fatalf("find entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry for tenant one, got %d", len(entries))
	}
	for _, e := range entries {
		if e.TenantId != tenant1ID {
			t.Fatalf("tenant one query leaked row of tenant %s", e.TenantId)
		}
	}

	// Balances are isolated the same way.
	qty1, err := models.CurrentBalance(ctx1, db, 1, 1, "")
	if err != nil {
		t.Fatalf("CurrentBalance tenant one: %v", err)
	}
	qty2, err := models.CurrentBalance(ctx2, db, 1, 1, "")
	if err != nil {
		t.Fatalf("CurrentBalance tenant two: %v", err)
	}
	if !qty1.Equal(decimal.NewFromInt(10)) || !qty2.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("expected 10/99, got %s/%s", qty1, qty2)
	}
	_ = tenant2ID
}

// An explicit tenant_id in a caller-supplied filter is authoritative: the
// guard surfaces it instead of silently rewriting it.
func TestTenantGuard_ExplicitTenantFilterIsAuthoritative(t *testing.T) {
	db := openTestDB(t)
	_, ctx1 := newTestTenant(t, db, "Tenant One")
	tenant2ID, ctx2 := newTestTenant(t, db, "Tenant Two")

	mustAppend(t, ctx2, db, &models.NewMovement{
		ItemId: 1, LocationId: 1,
		Qty: decimal.NewFromInt(99), Kind: models.MovementKindReceipt,
	})

	var entries []models.LedgerEntry
	if err := db.WithContext(ctx1).Where("tenant_id = ?", tenant2ID).Find(&entries).Error; err != nil {
		t.Fatalf("find entries: %v", err)
	}
	if len(entries) != 1 || entries[0].TenantId != tenant2ID {
		t.Fatalf("explicit tenant filter was not honored: %+v", entries)
	}
}

func TestTenantGuard_CreateInjectsTenantId(t *testing.T) {
	db := openTestDB(t)
	tenantID, ctx := newTestTenant(t, db, "Inject Co")

	record := models.BalanceRecord{
		ItemId: 8, LocationId: 2,
		Qty: decimal.NewFromInt(3),
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		t.Fatalf("create balance record: %v", err)
	}
	if record.TenantId != tenantID {
		t.Fatalf("expected injected tenant id %s, got %q", tenantID, record.TenantId)
	}
}

func TestTenantGuard_ExplicitTenantIdInPayloadIsKept(t *testing.T) {
	db := openTestDB(t)
	_, ctx1 := newTestTenant(t, db, "Tenant One")
	tenant2ID, _ := newTestTenant(t, db, "Tenant Two")

	record := models.BalanceRecord{
		TenantId: tenant2ID,
		ItemId:   8, LocationId: 2,
		Qty: decimal.NewFromInt(3),
	}
	if err := db.WithContext(ctx1).Create(&record).Error; err != nil {
		t.Fatalf("create balance record: %v", err)
	}
	if record.TenantId != tenant2ID {
		t.Fatalf("explicit payload tenant id was rewritten to %q", record.TenantId)
	}
}

func TestTenantGuard_SkipScopeSeesAllTenants(t *testing.T) {
	db := openTestDB(t)
	_, ctx1 := newTestTenant(t, db, "Tenant One")
	_, ctx2 := newTestTenant(t, db, "Tenant Two")

	mustAppend(t, ctx1, db, &models.NewMovement{
		ItemId: 1, LocationId: 1,
		Qty: decimal.NewFromInt(10), Kind: models.MovementKindReceipt,
	})
	mustAppend(t, ctx2, db, &models.NewMovement{
		ItemId: 1, LocationId: 1,
		Qty: decimal.NewFromInt(99), Kind: models.MovementKindReceipt,
	})

	bypass := utils.SetSkipTenantScopeInContext(context.Background(), true)
	var entries []models.LedgerEntry
	if err := db.WithContext(bypass).Find(&entries).Error; err != nil {
		t.Fatalf("find entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected bypass to see 2 entries, got %d", len(entries))
	}
}

func TestTenantGuard_UnlistedTablesPassThrough(t *testing.T) {
	db := openTestDB(t)
	_, ctx1 := newTestTenant(t, db, "Tenant One")
	newTestTenant(t, db, "Tenant Two")

	// tenants is not on the allow-list; a scoped context still sees every row.
	var tenants []models.Tenant
	if err := db.WithContext(ctx1).Find(&tenants).Error; err != nil {
		t.Fatalf("find tenants: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants, got %d", len(tenants))
	}
}

func TestValidateOwnership(t *testing.T) {
	entry := &models.LedgerEntry{TenantId: "tenant-a"}

	if err := utils.ValidateOwnership(entry, "tenant-a"); err != nil {
		t.Fatalf("matching tenant should pass: %v", err)
	}
	if err := utils.ValidateOwnership(entry, "tenant-b"); !errors.Is(err, utils.ErrOwnershipMismatch) {
		t.Fatalf("expected ErrOwnershipMismatch, got %v", err)
	}
	// Absence is the caller's NotFound concern.
	if err := utils.ValidateOwnership(nil, "tenant-a"); err != nil {
		t.Fatalf("nil record should be a no-op: %v", err)
	}
}

func TestValidateResourceId(t *testing.T) {
	db := openTestDB(t)
	tenantID, _ := newTestTenant(t, db, "Lookup Co")

	if err := utils.ValidateResourceId[models.Tenant](context.Background(), db, "", tenantID); err != nil {
		t.Fatalf("existing tenant should validate: %v", err)
	}
	if err := utils.ValidateResourceId[models.Tenant](context.Background(), db, "", "no-such-id"); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound, got %v", err)
	}
}

func TestResourceCountWhere_ScopesToTenant(t *testing.T) {
	db := openTestDB(t)
	tenant1ID, ctx1 := newTestTenant(t, db, "Count Co")
	_, ctx2 := newTestTenant(t, db, "Other Co")

	mustAppend(t, ctx1, db, &models.NewMovement{
		ItemId: 1, LocationId: 1,
		Qty: decimal.NewFromInt(10), Kind: models.MovementKindReceipt,
	})
	mustAppend(t, ctx1, db, &models.NewMovement{
		ItemId: 2, LocationId: 1,
		Qty: decimal.NewFromInt(10), Kind: models.MovementKindReceipt,
	})
	mustAppend(t, ctx2, db, &models.NewMovement{
		ItemId: 1, LocationId: 1,
		Qty: decimal.NewFromInt(10), Kind: models.MovementKindReceipt,
	})

	count, err := utils.ResourceCountWhere[models.LedgerEntry](context.Background(), db, tenant1ID, "item_id = ?", 1)
	if err != nil {
		t.Fatalf("ResourceCountWhere: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 entry for the tenant, got %d", count)
	}

	// Blank tenant counts across tenants (admin callers).
	count, err = utils.ResourceCountWhere[models.LedgerEntry](context.Background(), db, "", "item_id = ?", 1)
	if err != nil {
		t.Fatalf("ResourceCountWhere: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries across tenants, got %d", count)
	}
}
