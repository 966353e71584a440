package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/datamindworks/stocktrail_backend/config"
	"github.com/datamindworks/stocktrail_backend/models"
	"github.com/datamindworks/stocktrail_backend/utils"
)

// Bootstrap/recovery entrypoint: rebuilds every balance record from full
// ledger history. Safe to re-run.
func main() {
	tenantID := flag.String("tenant-id", "", "Optional: restrict the rebuild to one tenant (uuid)")
	migrate := flag.Bool("migrate", false, "Run table migration before backfilling")
	skipLock := flag.Bool("skip-lock", false, "Run without the cross-process job lock")
	flag.Parse()

	logger := config.NewLogger()
	ctx := context.Background()
	db := config.ConnectDatabaseWithRetry()

	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	scope := strings.TrimSpace(*tenantID)
	if scope != "" {
		if verr := utils.ValidateResourceId[models.Tenant](ctx, db, "", scope); verr != nil {
			fmt.Fprintf(os.Stderr, "unknown tenant %s: %v\n", scope, verr)
			os.Exit(1)
		}
	}

	if !*skipLock {
		_, locker := config.ConnectRedisWithRetry(ctx)
		release, lerr := utils.ObtainJobLock(ctx, locker, "backfillLock", scope, 60*time.Minute)
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "another backfill run holds the lock: %v\n", lerr)
			os.Exit(1)
		}
		defer release()
	}

	result, err := models.Backfill(ctx, db, logger, scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("backfill done: keys_materialized=%d keys_zeroed=%d errors=%d residual=%d\n",
		result.KeysMaterialized, result.KeysZeroed, result.Errors, len(result.Residual))
	for _, d := range result.Residual {
		fmt.Fprintf(os.Stderr, "RESIDUAL tenant=%s item=%d location=%d lot=%q ledger_sum=%s balance_qty=%s\n",
			d.TenantId, d.ItemId, d.LocationId, d.LotNumber, d.LedgerSum, d.BalanceQty)
	}
	if len(result.Residual) > 0 || result.Errors > 0 {
		os.Exit(2)
	}
}
