package models

import (
	"context"

	"github.com/datamindworks/stocktrail_backend/config"
	"github.com/datamindworks/stocktrail_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	KeysMaterialized int           `json:"keys_materialized"`
	KeysZeroed       int           `json:"keys_zeroed"`
	Errors           int           `json:"errors"`
	Residual         []Discrepancy `json:"residual,omitempty"`
}

// Backfill (re)derives every BalanceRecord from full ledger history. Used for
// initial population or wholesale recovery; safe to re-run (idempotent upsert).
// Keys summing to exactly zero stay unmaterialized — absence means zero — but
// an existing row for such a key is rewritten to zero rather than left stale.
//
// The closing verification repeats the reconciliation drift scan; residual
// discrepancies here point at a backfill bug, not application drift.
func Backfill(ctx context.Context, db *gorm.DB, logger *logrus.Logger, tenantId string) (*BackfillResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	tracer := otel.Tracer("stocktrail/jobs")
	ctx, span := tracer.Start(ctx, "Backfill")
	defer span.End()

	sums, err := ledgerSumsByKey(ctx, db, tenantId)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{}
	for key, ledgerSum := range sums {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if ledgerSum.IsZero() {
			// Update-only: never create a row just to hold zero. A stale row
			// still gets its last_entry_id advanced so it names the entry
			// that zeroed it out.
			lastEntryId, uerr := latestEntryId(ctx, db, key)
			if uerr == nil {
				uerr = db.WithContext(ctx).Model(&BalanceRecord{}).
					Where("tenant_id = ? AND item_id = ? AND location_id = ? AND lot_number = ?",
						key.TenantId, key.ItemId, key.LocationId, key.LotNumber).
					Updates(map[string]interface{}{
						"qty":           decimal.Zero,
						"last_entry_id": lastEntryId,
					}).Error
			}
			if uerr != nil {
				result.Errors++
				config.LogError(logger, "models", "Backfill", "zero stale balance", key, uerr)
				continue
			}
			result.KeysZeroed++
			continue
		}

		lastEntryId, lerr := latestEntryId(ctx, db, key)
		if lerr == nil {
			lerr = upsertBalanceAbsolute(db.WithContext(ctx), key.TenantId, key.ItemId, key.LocationId, key.LotNumber, ledgerSum, lastEntryId)
		}
		if lerr != nil {
			result.Errors++
			config.LogError(logger, "models", "Backfill", "materialize balance", key, lerr)
			continue
		}
		result.KeysMaterialized++
	}

	// Closing verification: same scan as the reconciliation job's step 1.
	balances, err := loadBalancesByKey(ctx, db, tenantId)
	if err != nil {
		return result, err
	}
	for key, ledgerSum := range sums {
		var balanceQty decimal.Decimal
		if rec, found := balances[key]; found {
			balanceQty = rec.Qty
		}
		diff := ledgerSum.Sub(balanceQty).Abs()
		if diff.GreaterThan(driftEpsilon) {
			result.Residual = append(result.Residual, Discrepancy{
				TenantId:   key.TenantId,
				ItemId:     key.ItemId,
				LocationId: key.LocationId,
				LotNumber:  key.LotNumber,
				LedgerSum:  ledgerSum,
				BalanceQty: balanceQty,
				Diff:       diff,
			})
		}
	}

	span.SetAttributes(
		attribute.Int("backfill.keys_materialized", result.KeysMaterialized),
		attribute.Int("backfill.keys_zeroed", result.KeysZeroed),
		attribute.Int("backfill.errors", result.Errors),
		attribute.Int("backfill.residual", len(result.Residual)),
	)

	if logger != nil {
		entry := logger.WithFields(logrus.Fields{
			"module":            "models",
			"funcName":          "Backfill",
			"tenant_id":         tenantId,
			"keys_materialized": result.KeysMaterialized,
			"keys_zeroed":       result.KeysZeroed,
			"errors":            result.Errors,
			"residual":          len(result.Residual),
		})
		if len(result.Residual) > 0 {
			entry.Error("backfill completed with residual discrepancies")
		} else {
			entry.Info("backfill completed")
		}
	}
	return result, nil
}
