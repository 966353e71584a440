package utils

import (
	"context"

	"gorm.io/gorm"
)

// TenantOwned is implemented by every tenant-scoped entity.
type TenantOwned interface {
	GetTenantId() string
}

// ValidateOwnership fails with ErrOwnershipMismatch when a fetched record's
// tenant differs from the expected one. A nil record is a no-op: absence is
// the caller's NotFound concern, not this helper's.
func ValidateOwnership(record TenantOwned, tenantId string) error {
	if record == nil {
		return nil
	}
	if record.GetTenantId() != tenantId {
		return ErrOwnershipMismatch
	}
	return nil
}

// ValidateResourceId checks that an id exists for the tenant, returning
// ErrorRecordNotFound otherwise. tenantId can be blank for admin callers.
func ValidateResourceId[T any](ctx context.Context, db *gorm.DB, tenantId string, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, db, tenantId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// ResourceCountWhere counts records, using WHERE tenant_id = ? AND $condition.
func ResourceCountWhere[T any](ctx context.Context, db *gorm.DB, tenantId string, condition string, value ...interface{}) (int64, error) {
	var model T

	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if tenantId != "" {
		dbCtx.Where("tenant_id = ?", tenantId)
	}
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
