package models_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/datamindworks/stocktrail_backend/alert"
	"github.com/datamindworks/stocktrail_backend/config"
	"github.com/datamindworks/stocktrail_backend/models"
	"github.com/datamindworks/stocktrail_backend/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int

// openTestDB builds an isolated in-memory database with the tenant guard
// installed, mirroring the production handle. One pooled connection keeps
// sqlite happy under the concurrency tests; the additive balance upsert does
// not rely on it.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testDBSeq++
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Use(config.NewTenantGuardPlugin()); err != nil {
		t.Fatalf("install tenant guard: %v", err)
	}
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newTestTenant creates a tenant and returns its id plus a request context
// resolved to it.
func newTestTenant(t *testing.T, db *gorm.DB, name string) (string, context.Context) {
	t.Helper()

	tenant, err := models.CreateTenant(context.Background(), db, &models.NewTenant{Name: name})
	if err != nil {
		t.Fatalf("CreateTenant %s: %v", name, err)
	}
	ctx := utils.SetTenantIdInContext(context.Background(), tenant.ID.String())
	ctx = utils.SetActorIdInContext(ctx, 1)
	return tenant.ID.String(), ctx
}

func mustAppend(t *testing.T, ctx context.Context, db *gorm.DB, in *models.NewMovement) *models.LedgerEntry {
	t.Helper()
	entry, err := models.AppendMovement(ctx, db, in)
	if err != nil {
		t.Fatalf("AppendMovement: %v", err)
	}
	return entry
}

// fakeNotifier records alert deliveries and can be told to fail.
type fakeNotifier struct {
	mu         sync.Mutex
	severities []alert.Severity
	payloads   []alert.Payload
	err        error
}

func (n *fakeNotifier) Notify(ctx context.Context, severity alert.Severity, payload alert.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.severities = append(n.severities, severity)
	n.payloads = append(n.payloads, payload)
	return n.err
}

func (n *fakeNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.severities)
}
