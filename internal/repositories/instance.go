package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

// InstanceRepository persists origin instances keyed by base URL.
type InstanceRepository struct {
	db *shared.Database
}

// NewInstanceRepository creates a new [InstanceRepository] with the given database connection
func NewInstanceRepository(db *shared.Database) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// FetchOrCreate returns the instance for url, inserting it (not blacklisted) on first sight.
//
// An existing row keeps its blacklist flag.
func (r *InstanceRepository) FetchOrCreate(ctx context.Context, url string) (*models.Instance, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO instances (id, url, blacklisted) VALUES (?, ?, FALSE)
		ON CONFLICT (url) DO UPDATE SET url = excluded.url
		RETURNING id, url, blacklisted
	`)

	var instance models.Instance
	err := r.db.QueryRowContext(ctx, query, shared.GenerateID(), url).Scan(&instance.ID, &instance.URL, &instance.Blacklisted)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert instance: %w", err)
	}
	return &instance, nil
}

// GetByURL retrieves an instance by its base URL.
func (r *InstanceRepository) GetByURL(ctx context.Context, url string) (*models.Instance, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := r.db.Rebind(`SELECT id, url, blacklisted, created_at FROM instances WHERE url = ?`)

	var instance models.Instance
	err := r.db.QueryRowContext(ctx, query, url).Scan(&instance.ID, &instance.URL, &instance.Blacklisted, &instance.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("instance", url)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query instance: %w", err)
	}
	return &instance, nil
}

// SetBlacklisted sets the operator blacklist flag for the instance at url.
func (r *InstanceRepository) SetBlacklisted(ctx context.Context, url string, blacklisted bool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE instances SET blacklisted = ? WHERE url = ?`), blacklisted, url)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound("instance", url)
	}
	return nil
}

// List returns all known instances ordered by URL. When blacklistedOnly is set only flagged instances are returned.
func (r *InstanceRepository) List(ctx context.Context, blacklistedOnly bool) ([]models.Instance, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT id, url, blacklisted, created_at FROM instances`
	if blacklistedOnly {
		query += ` WHERE blacklisted = TRUE`
	}
	query += ` ORDER BY url ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []models.Instance
	for rows.Next() {
		var instance models.Instance
		if err := rows.Scan(&instance.ID, &instance.URL, &instance.Blacklisted, &instance.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return instances, nil
}
