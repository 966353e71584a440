package config

import (
	"context"
	"reflect"
	"strings"

	"github.com/datamindworks/stocktrail_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantGuardPlugin enforces multi-tenant isolation by automatically scoping
// queries/updates/deletes to the request's tenant_id, and by injecting the
// tenant_id into create payloads when absent.
//
// NOTE:
// - Only the allow-listed tables below are tenant-scoped. Everything else
//   passes through unmodified.
// - An explicit tenant_id in a caller-supplied filter or payload is
//   authoritative and never rewritten; the validating layer above is expected
//   to reject foreign tenant ids before they reach this point.
// - This does NOT apply to Raw SQL queries. Those must include tenant_id manually.
// - Admin/internal bypass is explicit via context flags.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

// tenantScopedTables is the explicit allow-list of tenant-scoped entity kinds.
var tenantScopedTables = map[string]bool{
	"ledger_entries":         true,
	"balance_records":        true,
	"reconciliation_reports": true,
}

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	// Query
	if err := db.Callback().Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	// Row (First/Take)
	if err := db.Callback().Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	// Update
	if err := db.Callback().Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	// Delete
	if err := db.Callback().Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback); err != nil {
		return err
	}
	// Create (payload injection, not filtering)
	if err := db.Callback().Create().Before("gorm:create").Register("tenant_guard:create", tenantGuardCreateCallback); err != nil {
		return err
	}
	return nil
}

func tenantGuardCallback(db *gorm.DB) {
	tenantID, ok := guardTenantID(db)
	if !ok {
		return
	}

	// Don't duplicate an explicit tenant filter.
	if whereHasTenantID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "tenant_id"},
				Value:  tenantID,
			},
		},
	})
}

// tenantGuardCreateCallback fills a blank tenant_id field on the payload.
// A payload that already carries a tenant_id (even a different one) is left alone.
func tenantGuardCreateCallback(db *gorm.DB) {
	tenantID, ok := guardTenantID(db)
	if !ok {
		return
	}
	field := db.Statement.Schema.LookUpField("tenant_id")
	if field == nil {
		return
	}

	ctx := db.Statement.Context
	switch db.Statement.ReflectValue.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < db.Statement.ReflectValue.Len(); i++ {
			rv := db.Statement.ReflectValue.Index(i)
			if _, isZero := field.ValueOf(ctx, rv); isZero {
				_ = field.Set(ctx, rv, tenantID)
			}
		}
	case reflect.Struct:
		if _, isZero := field.ValueOf(ctx, db.Statement.ReflectValue); isZero {
			_ = field.Set(ctx, db.Statement.ReflectValue, tenantID)
		}
	}
}

// guardTenantID resolves the tenant id for the current statement, returning
// false when scoping does not apply (bypass flag, unlisted table, no tenant).
func guardTenantID(db *gorm.DB) (string, bool) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return "", false
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return "", false
	}
	if shouldBypassTenantScope(ctx) {
		return "", false
	}
	if !tenantScopedTables[db.Statement.Table] {
		return "", false
	}
	tenantID := tenantIdFromContext(ctx)
	if tenantID == "" {
		return "", false
	}
	return tenantID, true
}

func tenantIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyTenantId).(string); ok && v != "" {
		return v
	}
	return ""
}

func shouldBypassTenantScope(ctx context.Context) bool {
	if v, ok := ctx.Value(appctx.ContextKeySkipTenantScope).(bool); ok && v {
		return true
	}
	if v, ok := ctx.Value(appctx.ContextKeyIsAdmin).(bool); ok && v {
		return true
	}
	return false
}

func whereHasTenantID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasTenantID(e) {
			return true
		}
	}
	return false
}

func exprHasTenantID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsTenantID(v.Column)
	case clause.Neq:
		return colIsTenantID(v.Column)
	case clause.Gt:
		return colIsTenantID(v.Column)
	case clause.Gte:
		return colIsTenantID(v.Column)
	case clause.Lt:
		return colIsTenantID(v.Column)
	case clause.Lte:
		return colIsTenantID(v.Column)
	case clause.IN:
		return colIsTenantID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasTenantID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasTenantID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "tenant_id")
	default:
		return false
	}
}

func colIsTenantID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "tenant_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "tenant_id")
	default:
		return false
	}
}
