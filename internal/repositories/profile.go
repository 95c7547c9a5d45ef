package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

// ProfileRepository persists the last mirrored profile per identity.
type ProfileRepository struct {
	db *shared.Database
}

// NewProfileRepository creates a new [ProfileRepository] with the given database connection
func NewProfileRepository(db *shared.Database) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert stores profile for its user.
//
// Returns Changed(id) when the row was inserted or at least one field differs from the stored row,
// Unchanged when the stored row already matched. Unchanged rows are not rewritten.
func (r *ProfileRepository) Upsert(ctx context.Context, profile models.Profile) (models.ChangeResult, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO profiles (id, instance_id, user_id, name, display_name, about, picture, nip05, banner, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			instance_id = excluded.instance_id,
			name = excluded.name,
			display_name = excluded.display_name,
			about = excluded.about,
			picture = excluded.picture,
			nip05 = excluded.nip05,
			banner = excluded.banner,
			updated_at = excluded.updated_at
		WHERE profiles.instance_id <> excluded.instance_id
			OR profiles.name <> excluded.name
			OR profiles.display_name <> excluded.display_name
			OR profiles.about <> excluded.about
			OR profiles.picture <> excluded.picture
			OR profiles.nip05 <> excluded.nip05
			OR profiles.banner <> excluded.banner
		RETURNING id
	`)

	result, err := scanChange(r.db.QueryRowContext(ctx, query,
		shared.GenerateID(),
		profile.InstanceID,
		profile.UserID,
		profile.Name,
		profile.DisplayName,
		profile.About,
		profile.Picture,
		profile.NIP05,
		profile.Banner,
		nowUTC(),
	))
	if err != nil {
		return models.Unchanged, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return result, nil
}

// GetByUser retrieves the stored profile of the identity with userID.
func (r *ProfileRepository) GetByUser(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := r.db.Rebind(`
		SELECT id, instance_id, user_id, name, display_name, about, picture, nip05, banner
		FROM profiles WHERE user_id = ?
	`)

	var p models.Profile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.ID, &p.InstanceID, &p.UserID, &p.Name, &p.DisplayName, &p.About, &p.Picture, &p.NIP05, &p.Banner,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("profile", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return &p, nil
}
