package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/nostodon/internal/formatter"
	"github.com/desertthunder/nostodon/internal/jobqueue"
	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
	"github.com/urfave/cli/v3"
)

func parseJobStatus(s string) (models.JobStatus, error) {
	switch status := models.JobStatus(s); status {
	case "", models.JobNew, models.JobRunning, models.JobFinished, models.JobErrored:
		return status, nil
	default:
		return "", fmt.Errorf("%w: status %q", shared.ErrInvalidArgument, s)
	}
}

// withQueue opens the database and hands a queue to fn.
func (r *Runner) withQueue(fn func(q *jobqueue.Queue) error) error {
	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(jobqueue.New(db, jobqueue.Options{
		PollInterval: r.config.Queue.PollInterval,
		Logger:       r.logger,
	}))
}

// JobsList prints jobs in the requested format.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	status, err := parseJobStatus(cmd.String("status"))
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	return r.withQueue(func(q *jobqueue.Queue) error {
		jobs, err := q.List(ctx, jobqueue.ListOptions{Status: status, Limit: int(cmd.Int("limit"))})
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}
		r.logger.Debug("listed jobs", "count", len(jobs), "status", status)
		return formatter.WriteJobs(r.output, jobs, format)
	})
}

// JobsStats prints the number of jobs in each status.
func (r *Runner) JobsStats(ctx context.Context, cmd *cli.Command) error {
	return r.withQueue(func(q *jobqueue.Queue) error {
		stats, err := q.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to read job stats: %w", err)
		}
		_, err = r.output.Write(formatter.ExportStatsToText(stats))
		return err
	})
}

// JobsRequeue moves a running or errored job back to new so the poster retries it.
func (r *Runner) JobsRequeue(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("%w: external post id", shared.ErrMissingArgument)
	}

	return r.withQueue(func(q *jobqueue.Queue) error {
		result, err := q.Requeue(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to requeue job: %w", err)
		}

		if !result.Changed() {
			job, err := q.Get(ctx, id)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: job %s is %s, only running or errored jobs can be requeued", shared.ErrInvalidArgument, id, job.Status)
		}

		r.logger.Info("job requeued", "external_post_id", id)
		return r.writePlain("✓ Requeued %s\n", id)
	})
}
