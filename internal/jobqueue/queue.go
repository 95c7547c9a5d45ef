package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

const (
	operationTimeout    = 5 * time.Second
	defaultPollInterval = 5 * time.Second
)

// jobColumns leaves out the timestamp columns so it can be used in RETURNING clauses.
const jobColumns = `id, user_id, instance_id, external_post_id, content, status,
	profile_name, profile_display_name, profile_about, profile_picture, profile_nip05, profile_banner,
	error_message, in_reply_to`

// Options configures a [Queue].
type Options struct {
	// PollInterval is how often subscribers look for work without a notification.
	PollInterval time.Duration
	// Notifier wakes subscribers when a job becomes claimable. Nil means poll only.
	Notifier Notifier
	Logger   *log.Logger
}

// Queue is a relational-store-backed job queue.
type Queue struct {
	db           *shared.Database
	notifier     Notifier
	pollInterval time.Duration
	logger       *log.Logger
	nudge        chan struct{}
}

// New creates a [Queue] on db.
func New(db *shared.Database, opts Options) *Queue {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Queue{
		db:           db,
		notifier:     opts.Notifier,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger,
		nudge:        make(chan struct{}, 1),
	}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, operationTimeout)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner, extra ...any) (*models.ScheduledPost, error) {
	var (
		job    models.ScheduledPost
		status string
	)
	dest := []any{
		&job.ID, &job.UserID, &job.InstanceID, &job.ExternalPostID, &job.Content, &status,
		&job.Profile.Name, &job.Profile.DisplayName, &job.Profile.About, &job.Profile.Picture,
		&job.Profile.NIP05, &job.Profile.Banner, &job.ErrorMessage, &job.InReplyTo,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	return &job, nil
}

// scanChange turns a `RETURNING id` row into a [models.ChangeResult].
func scanChange(row *sql.Row) (models.ChangeResult, error) {
	var id int64
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Unchanged, nil
	}
	if err != nil {
		return models.Unchanged, err
	}
	return models.Changed(strconv.FormatInt(id, 10)), nil
}

// Push queues job with status new. A job with the same external post id already queued wins and
// Push reports [models.Unchanged].
func (q *Queue) Push(ctx context.Context, job models.ScheduledPost) (models.ChangeResult, error) {
	if job.ExternalPostID == "" {
		return models.Unchanged, fmt.Errorf("%w: job has no external post id", shared.ErrInvalidInput)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := nowUTC()
	query := q.db.Rebind(`
		INSERT INTO scheduled_posts (
			user_id, instance_id, external_post_id, content, status,
			profile_name, profile_display_name, profile_about, profile_picture, profile_nip05, profile_banner,
			in_reply_to, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_post_id) DO NOTHING
		RETURNING id
	`)

	result, err := scanChange(q.db.QueryRowContext(ctx, query,
		job.UserID, job.InstanceID, job.ExternalPostID, job.Content, string(models.JobNew),
		job.Profile.Name, job.Profile.DisplayName, job.Profile.About, job.Profile.Picture, job.Profile.NIP05, job.Profile.Banner,
		job.InReplyTo, now, now,
	))
	if err != nil {
		return models.Unchanged, fmt.Errorf("failed to push job: %w", err)
	}

	if result.Changed() {
		q.wake()
	}
	return result, nil
}

// ClaimNext moves the lowest-id new job to running and returns it, or nil when the queue is empty.
//
// Concurrent claimants never receive the same job.
func (q *Queue) ClaimNext(ctx context.Context) (*models.ScheduledPost, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	lock := ""
	if q.db.Dialect() == shared.DialectPostgres {
		lock = "FOR UPDATE SKIP LOCKED"
	}

	query := q.db.Rebind(`
		UPDATE scheduled_posts SET status = ?, claimed_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM scheduled_posts WHERE status = ?
			ORDER BY id ASC LIMIT 1 ` + lock + `
		)
		RETURNING ` + jobColumns)

	now := nowUTC()
	job, err := scanJob(q.db.QueryRowContext(ctx, query, string(models.JobRunning), now, now, string(models.JobNew)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.ClaimedAt = now
	job.UpdatedAt = now
	return job, nil
}

// Finish marks the running job for externalPostID finished.
// Reports [models.Unchanged] when the job is not running.
func (q *Queue) Finish(ctx context.Context, externalPostID string) (models.ChangeResult, error) {
	return q.transition(ctx, externalPostID, models.JobFinished, "", models.JobRunning)
}

// Error marks the running job for externalPostID errored and records message. Errored jobs stay
// errored until an operator requeues them.
func (q *Queue) Error(ctx context.Context, externalPostID, message string) (models.ChangeResult, error) {
	return q.transition(ctx, externalPostID, models.JobErrored, message, models.JobRunning)
}

// Requeue hands a running or errored job back to the queue.
func (q *Queue) Requeue(ctx context.Context, externalPostID string) (models.ChangeResult, error) {
	result, err := q.transition(ctx, externalPostID, models.JobNew, "", models.JobRunning, models.JobErrored)
	if err == nil && result.Changed() {
		q.wake()
	}
	return result, err
}

// Release returns a job that was claimed but never handed to a worker.
func (q *Queue) Release(ctx context.Context, externalPostID string) (models.ChangeResult, error) {
	return q.transition(ctx, externalPostID, models.JobNew, "", models.JobRunning)
}

func (q *Queue) transition(ctx context.Context, externalPostID string, to models.JobStatus, message string, from ...models.JobStatus) (models.ChangeResult, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	set := `status = ?, error_message = ?, updated_at = ?`
	if to == models.JobNew {
		set += `, claimed_at = NULL`
	}

	args := []any{string(to), message, nowUTC(), externalPostID}
	placeholders := ""
	for i, s := range from {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, string(s))
	}

	query := q.db.Rebind(`
		UPDATE scheduled_posts SET ` + set + `
		WHERE external_post_id = ? AND status IN (` + placeholders + `)
		RETURNING id
	`)

	result, err := scanChange(q.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return models.Unchanged, fmt.Errorf("failed to mark job %s %s: %w", externalPostID, to, err)
	}
	return result, nil
}

// RequeueStale moves running jobs claimed more than lease ago back to new and returns how many moved.
func (q *Queue) RequeueStale(ctx context.Context, lease time.Duration) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := nowUTC()
	query := q.db.Rebind(`
		UPDATE scheduled_posts SET status = ?, claimed_at = NULL, updated_at = ?
		WHERE status = ? AND claimed_at < ?
	`)

	result, err := q.db.ExecContext(ctx, query, string(models.JobNew), now, string(models.JobRunning), now.Add(-lease))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n > 0 {
		q.wake()
	}
	return n, nil
}

// Get retrieves the job for externalPostID.
func (q *Queue) Get(ctx context.Context, externalPostID string) (*models.ScheduledPost, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := q.db.Rebind(`SELECT ` + jobColumns + `, claimed_at, created_at, updated_at FROM scheduled_posts WHERE external_post_id = ?`)

	var claimedAt sql.NullTime
	var createdAt, updatedAt time.Time
	job, err := scanJob(q.db.QueryRowContext(ctx, query, externalPostID), &claimedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job not found: %s: %w", externalPostID, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}

	job.ClaimedAt = claimedAt.Time
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt
	return job, nil
}

// ListOptions filters [Queue.List].
type ListOptions struct {
	// Status limits results to one status; empty lists every job.
	Status models.JobStatus
	// Limit caps the number of rows; zero or less means no limit.
	Limit int
}

// List returns jobs newest first.
func (q *Queue) List(ctx context.Context, opts ListOptions) ([]models.ScheduledPost, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + jobColumns + `, claimed_at, created_at, updated_at FROM scheduled_posts`
	var args []any
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := q.db.QueryContext(ctx, q.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ScheduledPost
	for rows.Next() {
		var claimedAt sql.NullTime
		var createdAt, updatedAt time.Time
		job, err := scanJob(rows, &claimedAt, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job.ClaimedAt = claimedAt.Time
		job.CreatedAt = createdAt
		job.UpdatedAt = updatedAt
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}

// Stats counts jobs per status. Statuses with no jobs are reported as zero.
func (q *Queue) Stats(ctx context.Context) (models.JobStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM scheduled_posts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	stats := models.JobStats{
		models.JobNew:      0,
		models.JobRunning:  0,
		models.JobFinished: 0,
		models.JobErrored:  0,
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job stats: %w", err)
		}
		stats[models.JobStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return stats, nil
}

// wake nudges in-process subscribers without blocking.
func (q *Queue) wake() {
	select {
	case q.nudge <- struct{}{}:
	default:
	}
}
