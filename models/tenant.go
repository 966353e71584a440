package models

import (
	"context"
	"errors"
	"time"

	"github.com/datamindworks/stocktrail_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is the isolation boundary. The id is assigned at creation and never
// reassigned; every tenant-scoped row carries exactly one tenant id.
type Tenant struct {
	ID        uuid.UUID `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"index;size:100;not null" json:"name"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTenant struct {
	Name string `json:"name" validate:"required,max=100"`
}

func CreateTenant(ctx context.Context, db *gorm.DB, input *NewTenant) (*Tenant, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	tenant := Tenant{
		ID:       uuid.New(),
		Name:     input.Name,
		IsActive: newTrue(),
	}
	if err := db.WithContext(ctx).Create(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func GetTenant(ctx context.Context, db *gorm.DB, tenantId string) (*Tenant, error) {
	var tenant Tenant
	err := db.WithContext(ctx).Where("id = ?", tenantId).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// RequireActiveTenant fails fast for unknown or deactivated tenants.
func RequireActiveTenant(ctx context.Context, db *gorm.DB, tenantId string) error {
	tenant, err := GetTenant(ctx, db, tenantId)
	if err != nil {
		return err
	}
	if tenant.IsActive == nil || !*tenant.IsActive {
		return utils.ErrTenantInactive
	}
	return nil
}

// DeactivateTenant flips the activation flag; scoped data stays in place.
func DeactivateTenant(ctx context.Context, db *gorm.DB, tenantId string) error {
	result := db.WithContext(ctx).Model(&Tenant{}).
		Where("id = ?", tenantId).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func newTrue() *bool {
	b := true
	return &b
}
