// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// SchedulerConfig lists the recurring jobs. A nil service disables its job.
type SchedulerConfig struct {
	Payouts       *PayoutService
	SweepInterval time.Duration

	Snapshots        *SnapshotService
	SnapshotInterval time.Duration
}

// StartScheduler starts the payout sweep and snapshot export jobs. The
// caller shuts the scheduler down.
func StartScheduler(ctx context.Context, cfg SchedulerConfig) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	if cfg.Payouts != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.SweepInterval),
			gocron.NewTask(func() {
				n, err := cfg.Payouts.Sweep(ctx)
				if err != nil {
					log.Printf("[Scheduler] Payout sweep failed: %v", err)
					return
				}
				if n > 0 {
					log.Printf("✅ [Scheduler] Payout sweep recorded %d milestone(s)", n)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule payout sweep: %w", err)
		}
	}

	if cfg.Snapshots != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.SnapshotInterval),
			gocron.NewTask(func() {
				if _, err := cfg.Snapshots.Export(ctx); err != nil {
					log.Printf("[Scheduler] Snapshot export failed: %v", err)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule snapshot export: %w", err)
		}
	}

	sched.Start()
	return sched, nil
}
