// Package resync runs a cron-scheduled full refresh: it forces a summary
// poll plus an active-thread poll outside the timer cadence and trims
// confirmed thread history so a long-lived daemon's memory stays bounded.
package resync

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"msgsync/pkg/config"
	"msgsync/pkg/logger"
	"msgsync/pkg/poller"
	"msgsync/pkg/store"
)

// Start starts the resync scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.ResyncConfig, sched *poller.Scheduler, threads *store.ThreadStore) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("resync_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		// default: every 6 hours
		cronExpr = "0 */6 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("resync_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid resync cron expression: %s", cfg.Cron)
	}

	logger.Info("resync_enabled", "cron", cronExpr, "keep_messages", cfg.KeepMessages)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, cronExpr, sched, threads)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, cfg config.ResyncConfig, cronExpr string, sched *poller.Scheduler, threads *store.ThreadStore) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("resync_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("resync_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("resync_scheduler_stopping")
			return
		}

		RunOnce(ctx, cfg, sched, threads)
	}
}

// RunOnce performs a single full refresh and trim pass. Exposed so an
// admin trigger or test can invoke it on demand.
func RunOnce(ctx context.Context, cfg config.ResyncConfig, sched *poller.Scheduler, threads *store.ThreadStore) {
	if !sched.Running() {
		logger.Debug("resync_skipped_not_running")
		return
	}
	start := time.Now()
	sched.ForceRefresh(ctx)
	trimmed := 0
	for _, p := range threads.Partners() {
		trimmed += threads.Trim(p, cfg.KeepMessages)
	}
	logger.Info("resync_completed", "trimmed", trimmed, "elapsed", time.Since(start))
}
