package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

// CredentialIssuer mints a new target keypair.
type CredentialIssuer interface {
	Issue() (models.Keypair, error)
}

// IdentityRepository persists identities and the identity blacklist.
type IdentityRepository struct {
	db     *shared.Database
	issuer CredentialIssuer
}

// NewIdentityRepository creates a new [IdentityRepository]. issuer is consulted only when a handle is seen for the first time.
func NewIdentityRepository(db *shared.Database, issuer CredentialIssuer) *IdentityRepository {
	return &IdentityRepository{db: db, issuer: issuer}
}

// identityColumns leaves out created_at so the list can be used in RETURNING clauses, where
// SQLite does not report a declared column type for timestamp decoding.
const identityColumns = `id, instance_id, external_handle, public_key, private_key`

func scanIdentity(row *sql.Row) (*models.Identity, error) {
	var identity models.Identity
	err := row.Scan(&identity.ID, &identity.InstanceID, &identity.ExternalHandle, &identity.Keys.PublicKey, &identity.Keys.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// FetchOrCreate returns the identity for handle, creating it with a fresh keypair when absent.
//
// An existing identity keeps its keypair; only its instance is updated.
func (r *IdentityRepository) FetchOrCreate(ctx context.Context, instanceID, handle string) (*models.Identity, error) {
	existing, err := r.GetByHandle(ctx, handle)
	switch {
	case err == nil:
		if existing.InstanceID != instanceID {
			if err := r.moveInstance(ctx, existing.ID, instanceID); err != nil {
				return nil, err
			}
			existing.InstanceID = instanceID
		}
		return existing, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	keys, err := r.issuer.Issue()
	if err != nil {
		return nil, fmt.Errorf("failed to issue credentials: %w", err)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// A concurrent insert for the same handle wins; its keypair is returned instead of ours.
	query := r.db.Rebind(`
		INSERT INTO identities (id, instance_id, external_handle, public_key, private_key)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (external_handle) DO UPDATE SET instance_id = excluded.instance_id
		RETURNING ` + identityColumns)

	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, shared.GenerateID(), instanceID, handle, keys.PublicKey, keys.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert identity: %w", err)
	}
	return identity, nil
}

func (r *IdentityRepository) moveInstance(ctx context.Context, id, instanceID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE identities SET instance_id = ? WHERE id = ?`), instanceID, id); err != nil {
		return fmt.Errorf("failed to update identity instance: %w", err)
	}
	return nil
}

// Get retrieves an identity by id.
func (r *IdentityRepository) Get(ctx context.Context, id string) (*models.Identity, error) {
	return r.getBy(ctx, "id", id)
}

// GetByHandle retrieves an identity by its external handle.
func (r *IdentityRepository) GetByHandle(ctx context.Context, handle string) (*models.Identity, error) {
	return r.getBy(ctx, "external_handle", handle)
}

func (r *IdentityRepository) getBy(ctx context.Context, column, value string) (*models.Identity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := r.db.Rebind(`SELECT ` + identityColumns + ` FROM identities WHERE ` + column + ` = ?`)

	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("identity", value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}
	return identity, nil
}

// Credentials returns the keypair of the identity with id.
func (r *IdentityRepository) Credentials(ctx context.Context, id string) (models.Keypair, error) {
	identity, err := r.Get(ctx, id)
	if err != nil {
		return models.Keypair{}, err
	}
	return identity.Keys, nil
}

// IsBlacklisted reports whether the identity with id is on the blacklist.
func (r *IdentityRepository) IsBlacklisted(ctx context.Context, id string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var exists bool
	query := r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM identity_blacklist WHERE user_id = ?)`)
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query blacklist: %w", err)
	}
	return exists, nil
}

// Blacklist adds the identity with handle to the blacklist. Blacklisting twice is a no-op.
func (r *IdentityRepository) Blacklist(ctx context.Context, handle string) (models.ChangeResult, error) {
	identity, err := r.GetByHandle(ctx, handle)
	if err != nil {
		return models.Unchanged, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := r.db.Rebind(`
		INSERT INTO identity_blacklist (id, user_id) VALUES (?, ?)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING id
	`)

	result, err := scanChange(r.db.QueryRowContext(ctx, query, shared.GenerateID(), identity.ID))
	if err != nil {
		return models.Unchanged, fmt.Errorf("failed to blacklist identity: %w", err)
	}
	return result, nil
}

// Unblacklist removes the identity with handle from the blacklist.
func (r *IdentityRepository) Unblacklist(ctx context.Context, handle string) (models.ChangeResult, error) {
	identity, err := r.GetByHandle(ctx, handle)
	if err != nil {
		return models.Unchanged, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM identity_blacklist WHERE user_id = ?`), identity.ID)
	if err != nil {
		return models.Unchanged, fmt.Errorf("failed to unblacklist identity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return models.Unchanged, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return models.Unchanged, nil
	}
	return models.Changed(identity.ID), nil
}

// ListBlacklisted returns the handles of all blacklisted identities.
func (r *IdentityRepository) ListBlacklisted(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT i.external_handle FROM identity_blacklist b
		JOIN identities i ON i.id = b.user_id
		ORDER BY i.external_handle ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query blacklist: %w", err)
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var handle string
		if err := rows.Scan(&handle); err != nil {
			return nil, fmt.Errorf("failed to scan handle: %w", err)
		}
		handles = append(handles, handle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return handles, nil
}
