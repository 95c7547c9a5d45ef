package jobqueue

import (
	"context"
	"time"

	"github.com/desertthunder/nostodon/internal/models"
)

// Subscribe starts a dispatcher that claims jobs and hands each one to a single receiver on the
// returned channel. The channel is unbuffered so a job is only claimed once somebody is ready for
// it, and it is closed when ctx ends.
//
// The dispatcher drains the queue at startup, then again on every notification, in-process push
// and poll tick. A job claimed while ctx is being cancelled is released back to the queue.
func (q *Queue) Subscribe(ctx context.Context) <-chan models.ScheduledPost {
	out := make(chan models.ScheduledPost)
	go q.dispatch(ctx, out)
	return out
}

func (q *Queue) dispatch(ctx context.Context, out chan<- models.ScheduledPost) {
	defer close(out)

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	var notifications <-chan struct{}
	if q.notifier != nil {
		notifications = q.notifier.Notifications()
	}

	for {
		q.drain(ctx, out)

		select {
		case <-ctx.Done():
			return
		case _, ok := <-notifications:
			if !ok {
				q.logger.Warn("job notifier closed, falling back to polling")
				notifications = nil
			}
		case <-q.nudge:
		case <-ticker.C:
		}
	}
}

// drain claims and delivers jobs until the queue is empty or ctx ends.
func (q *Queue) drain(ctx context.Context, out chan<- models.ScheduledPost) {
	for ctx.Err() == nil {
		job, err := q.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				q.logger.Error("failed to claim job", "error", err)
			}
			return
		}
		if job == nil {
			return
		}

		q.logger.Debug("claimed job", "id", job.ID, "external_post_id", job.ExternalPostID)

		select {
		case out <- *job:
		case <-ctx.Done():
			q.release(job)
			return
		}
	}
}

func (q *Queue) release(job *models.ScheduledPost) {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	if _, err := q.Release(ctx, job.ExternalPostID); err != nil {
		q.logger.Error("failed to release job", "external_post_id", job.ExternalPostID, "error", err)
		return
	}
	q.logger.Debug("released job", "external_post_id", job.ExternalPostID)
}
