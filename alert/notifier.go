// Package alert delivers operator notifications from batch jobs.
// Delivery is fire-and-forget: a failing sink must never fail the job that
// raised the alert, so callers log Notify errors and move on.
package alert

import (
	"context"

	"github.com/sirupsen/logrus"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DiffItem is one discrepant balance key inside a payload.
type DiffItem struct {
	TenantId   string `json:"tenant_id"`
	ItemId     int    `json:"item_id"`
	LocationId int    `json:"location_id"`
	LotNumber  string `json:"lot_number,omitempty"`
	LedgerSum  string `json:"ledger_sum"`
	BalanceQty string `json:"balance_qty"`
	Diff       string `json:"diff"`
}

// Payload is the structured body of one alert.
type Payload struct {
	Source         string     `json:"source"`
	CorrelationId  string     `json:"correlation_id"`
	Discrepant     int        `json:"discrepant"`
	AutoCorrected  int        `json:"auto_corrected"`
	ManualReview   int        `json:"manual_review"`
	OrphansDeleted int        `json:"orphans_deleted"`
	Errors         int        `json:"errors"`
	TopDiffs       []DiffItem `json:"top_diffs,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, severity Severity, payload Payload) error
}

// LogNotifier writes alerts to the structured log. Default sink.
type LogNotifier struct {
	Logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, severity Severity, payload Payload) error {
	if n.Logger == nil {
		return nil
	}
	entry := n.Logger.WithFields(logrus.Fields{
		"source":          payload.Source,
		"correlation_id":  payload.CorrelationId,
		"discrepant":      payload.Discrepant,
		"auto_corrected":  payload.AutoCorrected,
		"manual_review":   payload.ManualReview,
		"orphans_deleted": payload.OrphansDeleted,
		"errors":          payload.Errors,
		"top_diffs":       payload.TopDiffs,
	})
	if severity == SeverityCritical {
		entry.Error("reconciliation alert")
	} else {
		entry.Warn("reconciliation alert")
	}
	return nil
}
