package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

// PublishedPostRepository links source posts to the target events created for them.
type PublishedPostRepository struct {
	db *shared.Database
}

// NewPublishedPostRepository creates a new [PublishedPostRepository] with the given database connection
func NewPublishedPostRepository(db *shared.Database) *PublishedPostRepository {
	return &PublishedPostRepository{db: db}
}

// Add records a published post. A second record for the same external post id is ignored.
func (r *PublishedPostRepository) Add(ctx context.Context, post models.PublishedPost) (models.ChangeResult, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	status := post.Status
	if status == "" {
		status = models.PostPosted
	}

	query := r.db.Rebind(`
		INSERT INTO published_posts (id, instance_id, user_id, external_post_id, target_id, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_post_id) DO NOTHING
		RETURNING id
	`)

	result, err := scanChange(r.db.QueryRowContext(ctx, query,
		shared.GenerateID(), post.InstanceID, post.UserID, post.ExternalPostID, post.TargetID, string(status),
	))
	if err != nil {
		return models.Unchanged, fmt.Errorf("failed to insert published post: %w", err)
	}
	return result, nil
}

// MarkDeleted flips the post for externalPostID from posted to deleted and returns it.
//
// Returns nil when no posted row exists, so a delete is only ever acted on once.
func (r *PublishedPostRepository) MarkDeleted(ctx context.Context, externalPostID string) (*models.PublishedPost, error) {
	return r.transition(ctx, externalPostID, models.PostPosted, models.PostDeleted)
}

// Restore reverts a deleted post to posted, used when the remote delete could not be issued.
func (r *PublishedPostRepository) Restore(ctx context.Context, externalPostID string) (*models.PublishedPost, error) {
	return r.transition(ctx, externalPostID, models.PostDeleted, models.PostPosted)
}

func (r *PublishedPostRepository) transition(ctx context.Context, externalPostID string, from, to models.PostStatus) (*models.PublishedPost, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := r.db.Rebind(`
		UPDATE published_posts SET status = ?, updated_at = ?
		WHERE external_post_id = ? AND status = ?
		RETURNING id, instance_id, user_id, external_post_id, target_id, status
	`)

	post, err := scanPublished(r.db.QueryRowContext(ctx, query, string(to), nowUTC(), externalPostID, string(from)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update published post: %w", err)
	}
	return post, nil
}

// GetByExternalID retrieves the published post for a source post id.
func (r *PublishedPostRepository) GetByExternalID(ctx context.Context, externalPostID string) (*models.PublishedPost, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := r.db.Rebind(`
		SELECT id, instance_id, user_id, external_post_id, target_id, status
		FROM published_posts WHERE external_post_id = ?
	`)

	post, err := scanPublished(r.db.QueryRowContext(ctx, query, externalPostID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("published post", externalPostID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query published post: %w", err)
	}
	return post, nil
}

func scanPublished(row *sql.Row) (*models.PublishedPost, error) {
	var (
		post   models.PublishedPost
		status string
	)
	err := row.Scan(&post.ID, &post.InstanceID, &post.UserID, &post.ExternalPostID, &post.TargetID, &status)
	if err != nil {
		return nil, err
	}
	post.Status = models.PostStatus(status)
	return &post, nil
}
