package tasks

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nostodon/internal/metrics"
)

const defaultSweepInterval = time.Minute

// Sweeper requeues running jobs whose claim is older than Lease, recovering work held by a
// consumer that died mid-job.
type Sweeper struct {
	Queue    JobQueue
	Lease    time.Duration
	Interval time.Duration
	Logger   *log.Logger
	Metrics  *metrics.Metrics
}

// Run sweeps once at startup and then on every interval until ctx ends. A zero lease disables it.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.Lease <= 0 {
		return nil
	}

	interval := s.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs a single pass and returns the number of requeued jobs.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	logger := s.Logger
	if logger == nil {
		logger = defaultLogger
	}

	n, err := s.Queue.RequeueStale(ctx, s.Lease)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("failed to requeue stale jobs", "error", err)
		}
		return 0
	}

	if n > 0 {
		s.Metrics.JobsRequeued(n)
		logger.Warn("requeued stale jobs", "count", n, "lease", s.Lease)
	}
	return n
}
