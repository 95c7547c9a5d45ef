package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

// SourceRepository persists stream credentials per instance.
type SourceRepository struct {
	db *shared.Database
}

// NewSourceRepository creates a new [SourceRepository] with the given database connection
func NewSourceRepository(db *shared.Database) *SourceRepository {
	return &SourceRepository{db: db}
}

// Save inserts the source or replaces the credentials of the source with the same instance URL.
func (r *SourceRepository) Save(ctx context.Context, src models.Source) (*models.Source, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO sources (id, instance_url, client_key, client_secret, redirect_url, token, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_url) DO UPDATE SET
			client_key = excluded.client_key,
			client_secret = excluded.client_secret,
			redirect_url = excluded.redirect_url,
			token = excluded.token,
			updated_at = excluded.updated_at
		RETURNING id
	`)

	saved := src
	saved.UpdatedAt = nowUTC()
	err := r.db.QueryRowContext(ctx, query,
		shared.GenerateID(), src.InstanceURL, src.ClientKey, src.ClientSecret, src.RedirectURL, src.Token, saved.UpdatedAt,
	).Scan(&saved.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to save source: %w", err)
	}
	return &saved, nil
}

// UpdateToken stores a new access token for the source at instanceURL.
func (r *SourceRepository) UpdateToken(ctx context.Context, instanceURL, token string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE sources SET token = ?, updated_at = ? WHERE instance_url = ?`), token, nowUTC(), instanceURL)
	if err != nil {
		return fmt.Errorf("failed to update source token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound("source", instanceURL)
	}
	return nil
}

// Remove deletes the source at instanceURL.
func (r *SourceRepository) Remove(ctx context.Context, instanceURL string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sources WHERE instance_url = ?`), instanceURL)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound("source", instanceURL)
	}
	return nil
}

// List returns every stored source ordered by instance URL.
func (r *SourceRepository) List(ctx context.Context) ([]models.Source, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instance_url, client_key, client_secret, redirect_url, token, created_at, updated_at
		FROM sources ORDER BY instance_url ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(&s.ID, &s.InstanceURL, &s.ClientKey, &s.ClientSecret, &s.RedirectURL, &s.Token, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sources, nil
}
