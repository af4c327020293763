package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jobforge/jobforge/pkg/queue"
)

// Reaper periodically reclaims jobs whose heartbeat has gone stale
// (spec §4.5 ReapStale), scheduled via robfig/cron rather than a bare
// ticker so its cadence reads the same way the rest of an operations
// deployment schedules periodic sweeps.
type Reaper struct {
	q         *queue.Queue
	logger    *slog.Logger
	threshold time.Duration
	cron      *cron.Cron
}

// NewReaper builds a Reaper that sweeps jobs stale past threshold
// (default 5 minutes — spec §4.5) on the schedule later passed to Start.
func NewReaper(q *queue.Queue, logger *slog.Logger, threshold time.Duration) *Reaper {
	if threshold <= 0 {
		threshold = queue.DefaultReapThreshold
	}
	return &Reaper{q: q, logger: logger, threshold: threshold, cron: cron.New()}
}

// Start schedules the sweep on spec and runs until ctx is canceled.
// spec is a standard 5-field cron expression; "@every 1m" is the usual
// choice.
func (r *Reaper) Start(ctx context.Context, spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		requeued, killed, err := r.q.ReapStale(ctx, r.threshold)
		if err != nil {
			r.logger.Error("reap failed", "error", err)
			return
		}
		if requeued > 0 || killed > 0 {
			r.logger.Info("reaped stale jobs", "requeued", requeued, "killed", killed)
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	go func() {
		<-ctx.Done()
		<-r.cron.Stop().Done()
	}()
	return nil
}
