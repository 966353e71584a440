package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/datamindworks/stocktrail_backend/alert"
	"github.com/datamindworks/stocktrail_backend/config"
	"github.com/datamindworks/stocktrail_backend/models"
	"github.com/datamindworks/stocktrail_backend/utils"
)

// Scheduled entrypoint (cron-invoked) for the balance reconciliation job.
func main() {
	tenantID := flag.String("tenant-id", "", "Optional: restrict the run to one tenant (uuid)")
	autoCorrect := flag.String("auto-correct-threshold", "0.01", "Auto-correct drift at or below this absolute diff (negative disables auto-correction)")
	alertAt := flag.String("alert-threshold", "0.1", "High-severity alert at or above this absolute diff")
	topN := flag.Int("top-n", 10, "Diffs included in the alert payload")
	xlsxOut := flag.String("out", "", "Optional: write the run's diffs to this xlsx file")
	alertTopic := flag.String("alert-topic", os.Getenv("ALERT_TOPIC"), "Optional: Pub/Sub topic for alerts (default: log only)")
	skipLock := flag.Bool("skip-lock", false, "Run without the cross-process job lock")
	flag.Parse()

	logger := config.NewLogger()

	opts := models.DefaultReconcileOptions()
	opts.TenantId = strings.TrimSpace(*tenantID)
	var err error
	if opts.AutoCorrectThreshold, err = utils.ParseDecimal(*autoCorrect); err != nil {
		fmt.Fprintf(os.Stderr, "invalid auto-correct threshold: %v\n", err)
		os.Exit(1)
	}
	if opts.AlertThreshold, err = utils.ParseDecimal(*alertAt); err != nil {
		fmt.Fprintf(os.Stderr, "invalid alert threshold: %v\n", err)
		os.Exit(1)
	}
	opts.TopN = *topN

	ctx := context.Background()
	db := config.ConnectDatabaseWithRetry()

	if opts.TenantId != "" {
		if verr := utils.ValidateResourceId[models.Tenant](ctx, db, "", opts.TenantId); verr != nil {
			fmt.Fprintf(os.Stderr, "unknown tenant %s: %v\n", opts.TenantId, verr)
			os.Exit(1)
		}
	}

	if !*skipLock {
		_, locker := config.ConnectRedisWithRetry(ctx)
		release, lerr := utils.ObtainJobLock(ctx, locker, "reconcileLock", opts.TenantId, 30*time.Minute)
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "another reconciliation run holds the lock: %v\n", lerr)
			os.Exit(1)
		}
		defer release()
	}

	var notifier alert.Notifier = alert.NewLogNotifier(logger)
	if strings.TrimSpace(*alertTopic) != "" {
		ps, perr := alert.NewPubSubNotifier(ctx, strings.TrimSpace(*alertTopic))
		if perr != nil {
			fmt.Fprintf(os.Stderr, "pubsub notifier unavailable, falling back to log: %v\n", perr)
		} else {
			defer ps.Close()
			notifier = ps
		}
	}

	result, err := models.Reconcile(ctx, db, logger, notifier, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}

	if *xlsxOut != "" {
		if xerr := models.ExportReconciliationResult(result, *xlsxOut); xerr != nil {
			fmt.Fprintf(os.Stderr, "xlsx export failed: %v\n", xerr)
			os.Exit(1)
		}
	}

	fmt.Printf("reconciliation done: correlation=%s discrepant=%d auto_corrected=%d manual_review=%d orphans_deleted=%d errors=%d\n",
		result.CorrelationId, result.Discrepant, result.AutoCorrected, result.ManualReview, result.OrphansDeleted, result.Errors)
	if result.Errors > 0 {
		os.Exit(2)
	}
}
