package scheduler

import (
	"context"
	"time"

	"crm_pipeline_backend/platform/logger"
)

const defaultSweepInterval = 24 * time.Hour

// SweepDispatcher enqueues a reactivation sweep on a fixed interval. It runs
// inside the scheduler binary next to the worker; the queue gives one place
// to collapse dispatcher ticks and manual triggers.
type SweepDispatcher struct {
	client   SweepEnqueuer
	log      *logger.Logger
	interval time.Duration
}

func NewSweepDispatcher(client SweepEnqueuer, log *logger.Logger, interval time.Duration) *SweepDispatcher {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &SweepDispatcher{
		client:   client,
		log:      log,
		interval: interval,
	}
}

func (d *SweepDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	d.dispatch(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

func (d *SweepDispatcher) dispatch(ctx context.Context) {
	err := d.client.EnqueueReactivationSweep(ctx, ReactivationSweepPayload{
		RequestedBy: "dispatcher",
		RequestedAt: time.Now(),
	})
	if err != nil {
		d.log.Warn("enqueue reactivation sweep failed", "error", err)
	}
}
