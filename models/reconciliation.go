package models

import (
	"context"
	"fmt"
	"sort"

	"github.com/datamindworks/stocktrail_backend/alert"
	"github.com/datamindworks/stocktrail_backend/config"
	"github.com/datamindworks/stocktrail_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// driftEpsilon absorbs decimal rounding noise only. It is not a policy
// threshold; policy lives in ReconcileOptions.
var driftEpsilon = decimal.New(1, -6)

// ReconcileOptions controls one reconciliation run. Zero values fall back to
// the defaults from the scheduled invocation surface; a negative
// AutoCorrectThreshold disables auto-correction entirely (every drift goes to
// manual review).
type ReconcileOptions struct {
	AutoCorrectThreshold decimal.Decimal // default 0.01: silently heal below this; negative = never
	AlertThreshold       decimal.Decimal // default 0.1: high severity at or above this
	TopN                 int             // default 10: diffs included in the alert
	TenantId             string          // blank = all tenants
}

func DefaultReconcileOptions() ReconcileOptions {
	return ReconcileOptions{
		AutoCorrectThreshold: decimal.NewFromFloat(0.01),
		AlertThreshold:       decimal.NewFromFloat(0.1),
		TopN:                 10,
	}
}

func (o ReconcileOptions) withDefaults() ReconcileOptions {
	def := DefaultReconcileOptions()
	if o.AutoCorrectThreshold.IsZero() {
		o.AutoCorrectThreshold = def.AutoCorrectThreshold
	}
	if o.AlertThreshold.IsZero() {
		o.AlertThreshold = def.AlertThreshold
	}
	if o.TopN <= 0 {
		o.TopN = def.TopN
	}
	return o
}

type balanceKey struct {
	TenantId   string
	ItemId     int
	LocationId int
	LotNumber  string
}

// Discrepancy is one per-key diff between ledger truth and the balance cache.
type Discrepancy struct {
	TenantId      string          `json:"tenant_id"`
	ItemId        int             `json:"item_id"`
	LocationId    int             `json:"location_id"`
	LotNumber     string          `json:"lot_number,omitempty"`
	LedgerSum     decimal.Decimal `json:"ledger_sum"`
	BalanceQty    decimal.Decimal `json:"balance_qty"`
	Diff          decimal.Decimal `json:"diff"`
	Orphan        bool            `json:"orphan,omitempty"`
	AutoCorrected bool            `json:"auto_corrected,omitempty"`
}

// ReconciliationResult summarizes one run. It is transient: returned, alerted
// and optionally exported, but never stored as a first-class entity.
type ReconciliationResult struct {
	CorrelationId  string        `json:"correlation_id"`
	Discrepant     int           `json:"discrepant"`
	AutoCorrected  int           `json:"auto_corrected"`
	ManualReview   int           `json:"manual_review"`
	OrphansDeleted int           `json:"orphans_deleted"`
	Errors         int           `json:"errors"`
	Diffs          []Discrepancy `json:"diffs"`
}

// Reconcile verifies BalanceRecord.qty == SUM(ledger_entries.qty) per key,
// auto-corrects drift within the threshold, flags material drift for review,
// deletes empty orphan balances and alerts on anything needing a human.
//
// Corrections commit key-by-key: a failure or cancellation mid-run leaves
// already-corrected keys corrected and defers the rest to the next run.
// Intended to run on a schedule (nightly) or via an admin trigger.
func Reconcile(ctx context.Context, db *gorm.DB, logger *logrus.Logger, notifier alert.Notifier, opts ReconcileOptions) (*ReconciliationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	// Cross-tenant batch job; every emitted row still carries its tenant id.
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	opts = opts.withDefaults()

	tracer := otel.Tracer("stocktrail/jobs")
	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	result := &ReconciliationResult{CorrelationId: cid}

	sums, err := ledgerSumsByKey(ctx, db, opts.TenantId)
	if err != nil {
		return nil, err
	}
	balances, err := loadBalancesByKey(ctx, db, opts.TenantId)
	if err != nil {
		return nil, err
	}

	highSeverity := false
	for key, ledgerSum := range sums {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		var balanceQty decimal.Decimal
		if rec, found := balances[key]; found {
			balanceQty = rec.Qty
		}
		diff := ledgerSum.Sub(balanceQty).Abs()
		if diff.LessThanOrEqual(driftEpsilon) {
			continue
		}
		result.Discrepant++
		d := Discrepancy{
			TenantId:   key.TenantId,
			ItemId:     key.ItemId,
			LocationId: key.LocationId,
			LotNumber:  key.LotNumber,
			LedgerSum:  ledgerSum,
			BalanceQty: balanceQty,
			Diff:       diff,
		}

		if diff.LessThanOrEqual(opts.AutoCorrectThreshold) {
			lastEntryId, lerr := latestEntryId(ctx, db, key)
			if lerr == nil {
				lerr = upsertBalanceAbsolute(db.WithContext(ctx), key.TenantId, key.ItemId, key.LocationId, key.LotNumber, ledgerSum, lastEntryId)
			}
			if lerr != nil {
				// One key failing must not abort the batch.
				result.Errors++
				config.LogError(logger, "models", "Reconcile", "auto-correct balance", key, lerr)
				continue
			}
			d.AutoCorrected = true
			result.AutoCorrected++
		} else {
			result.ManualReview++
			if diff.GreaterThanOrEqual(opts.AlertThreshold) {
				highSeverity = true
			}
			report := ReconciliationReport{
				TenantId:      key.TenantId,
				CheckType:     CheckTypeBalanceDrift,
				ItemId:        key.ItemId,
				LocationId:    key.LocationId,
				LotNumber:     key.LotNumber,
				Details:       fmt.Sprintf("balance qty=%s != ledger sum=%s (diff %s)", balanceQty, ledgerSum, diff),
				CorrelationId: cid,
			}
			if cerr := db.WithContext(ctx).Create(&report).Error; cerr != nil {
				result.Errors++
				config.LogError(logger, "models", "Reconcile", "persist drift report", key, cerr)
			}
		}
		result.Diffs = append(result.Diffs, d)
	}

	// Orphaned balances: rows with no ledger entries at all for their key.
	// Empty ones are stale leftovers and safe to drop; non-zero ones would
	// destroy information if deleted, so they are only reported.
	for key, rec := range balances {
		if _, found := sums[key]; found {
			continue
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if rec.Qty.Abs().LessThanOrEqual(driftEpsilon) {
			if derr := db.WithContext(ctx).Delete(&BalanceRecord{}, rec.ID).Error; derr != nil {
				result.Errors++
				config.LogError(logger, "models", "Reconcile", "delete orphan balance", key, derr)
				continue
			}
			result.OrphansDeleted++
			continue
		}

		diff := rec.Qty.Abs()
		result.Discrepant++
		result.ManualReview++
		if diff.GreaterThanOrEqual(opts.AlertThreshold) {
			highSeverity = true
		}
		report := ReconciliationReport{
			TenantId:      key.TenantId,
			CheckType:     CheckTypeOrphanBalance,
			ItemId:        key.ItemId,
			LocationId:    key.LocationId,
			LotNumber:     key.LotNumber,
			Details:       fmt.Sprintf("balance row %d has qty=%s but no ledger entries", rec.ID, rec.Qty),
			CorrelationId: cid,
		}
		if cerr := db.WithContext(ctx).Create(&report).Error; cerr != nil {
			result.Errors++
			config.LogError(logger, "models", "Reconcile", "persist orphan report", key, cerr)
		}
		result.Diffs = append(result.Diffs, Discrepancy{
			TenantId:   key.TenantId,
			ItemId:     key.ItemId,
			LocationId: key.LocationId,
			LotNumber:  key.LotNumber,
			LedgerSum:  decimal.Zero,
			BalanceQty: rec.Qty,
			Diff:       diff,
			Orphan:     true,
		})
	}

	sort.Slice(result.Diffs, func(i, j int) bool {
		return result.Diffs[i].Diff.GreaterThan(result.Diffs[j].Diff)
	})

	span.SetAttributes(
		attribute.Int("reconcile.discrepant", result.Discrepant),
		attribute.Int("reconcile.auto_corrected", result.AutoCorrected),
		attribute.Int("reconcile.manual_review", result.ManualReview),
		attribute.Int("reconcile.orphans_deleted", result.OrphansDeleted),
		attribute.Int("reconcile.errors", result.Errors),
	)

	if result.ManualReview > 0 && notifier != nil {
		severity := alert.SeverityWarning
		if highSeverity {
			severity = alert.SeverityCritical
		}
		payload := result.alertPayload(opts.TopN)
		if nerr := notifier.Notify(ctx, severity, payload); nerr != nil {
			// Alert delivery failure is operator-visible in logs only.
			config.LogError(logger, "models", "Reconcile", "alert delivery", cid, nerr)
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":          "models",
			"funcName":        "Reconcile",
			"correlation_id":  cid,
			"tenant_id":       opts.TenantId,
			"discrepant":      result.Discrepant,
			"auto_corrected":  result.AutoCorrected,
			"manual_review":   result.ManualReview,
			"orphans_deleted": result.OrphansDeleted,
			"errors":          result.Errors,
		}).Info("reconciliation completed")
	}
	return result, nil
}

func (r *ReconciliationResult) alertPayload(topN int) alert.Payload {
	payload := alert.Payload{
		Source:         "reconciliation",
		CorrelationId:  r.CorrelationId,
		Discrepant:     r.Discrepant,
		AutoCorrected:  r.AutoCorrected,
		ManualReview:   r.ManualReview,
		OrphansDeleted: r.OrphansDeleted,
		Errors:         r.Errors,
	}
	for i, d := range r.Diffs {
		if i >= topN {
			break
		}
		payload.TopDiffs = append(payload.TopDiffs, alert.DiffItem{
			TenantId:   d.TenantId,
			ItemId:     d.ItemId,
			LocationId: d.LocationId,
			LotNumber:  d.LotNumber,
			LedgerSum:  d.LedgerSum.String(),
			BalanceQty: d.BalanceQty.String(),
			Diff:       d.Diff.String(),
		})
	}
	return payload
}

type ledgerSumRow struct {
	TenantId   string
	ItemId     int
	LocationId int
	LotNumber  string
	LedgerSum  decimal.Decimal
}

// ledgerSumsByKey aggregates the full ledger per balance key.
// Raw SQL bypasses the tenant guard, so the tenant filter is explicit here.
func ledgerSumsByKey(ctx context.Context, db *gorm.DB, tenantId string) (map[balanceKey]decimal.Decimal, error) {
	sql := `
		SELECT tenant_id, item_id, location_id, lot_number, SUM(qty) AS ledger_sum
		FROM ledger_entries`
	var args []interface{}
	if tenantId != "" {
		sql += " WHERE tenant_id = ?"
		args = append(args, tenantId)
	}
	sql += " GROUP BY tenant_id, item_id, location_id, lot_number"

	var rows []ledgerSumRow
	if err := db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregate ledger sums: %w", err)
	}

	sums := make(map[balanceKey]decimal.Decimal, len(rows))
	for _, row := range rows {
		sums[balanceKey{row.TenantId, row.ItemId, row.LocationId, row.LotNumber}] = row.LedgerSum
	}
	return sums, nil
}

func loadBalancesByKey(ctx context.Context, db *gorm.DB, tenantId string) (map[balanceKey]*BalanceRecord, error) {
	dbCtx := db.WithContext(ctx).Model(&BalanceRecord{})
	if tenantId != "" {
		dbCtx = dbCtx.Where("tenant_id = ?", tenantId)
	}
	var records []*BalanceRecord
	if err := dbCtx.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load balance records: %w", err)
	}

	balances := make(map[balanceKey]*BalanceRecord, len(records))
	for _, rec := range records {
		balances[balanceKey{rec.TenantId, rec.ItemId, rec.LocationId, rec.LotNumber}] = rec
	}
	return balances, nil
}

// latestEntryId returns the newest contributing ledger entry for a key, to
// advance BalanceRecord.last_entry_id on repair. Blank when the key has no
// entries.
func latestEntryId(ctx context.Context, db *gorm.DB, key balanceKey) (string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&LedgerEntry{}).
		Where("tenant_id = ? AND item_id = ? AND location_id = ? AND lot_number = ?",
			key.TenantId, key.ItemId, key.LocationId, key.LotNumber).
		Order("created_at DESC, id DESC").
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}
