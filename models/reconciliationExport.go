package models

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportReconciliationResult writes a run's diffs to an xlsx file for
// operator review.
func ExportReconciliationResult(result *ReconciliationResult, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Discrepancies"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	headers := []string{"Tenant", "Item", "Location", "Lot", "Ledger Sum", "Balance Qty", "Diff", "Orphan", "Auto-Corrected"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for rowIdx, d := range result.Diffs {
		values := []interface{}{
			d.TenantId,
			d.ItemId,
			d.LocationId,
			d.LotNumber,
			d.LedgerSum.String(),
			d.BalanceQty.String(),
			d.Diff.String(),
			d.Orphan,
			d.AutoCorrected,
		}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	summary := fmt.Sprintf("correlation=%s discrepant=%d auto_corrected=%d manual_review=%d orphans_deleted=%d errors=%d",
		result.CorrelationId, result.Discrepant, result.AutoCorrected, result.ManualReview, result.OrphansDeleted, result.Errors)
	if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", len(result.Diffs)+3), summary); err != nil {
		return err
	}

	return f.SaveAs(path)
}
