package tasks

import (
	"context"
	"time"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

var defaultLogger = shared.NewLogger(nil)

// InstanceStore resolves origin instances.
type InstanceStore interface {
	FetchOrCreate(ctx context.Context, url string) (*models.Instance, error)
}

// IdentityStore resolves identities and their credentials.
type IdentityStore interface {
	FetchOrCreate(ctx context.Context, instanceID, handle string) (*models.Identity, error)
	IsBlacklisted(ctx context.Context, id string) (bool, error)
	Credentials(ctx context.Context, id string) (models.Keypair, error)
}

// ProfileStore mirrors profiles.
type ProfileStore interface {
	Upsert(ctx context.Context, profile models.Profile) (models.ChangeResult, error)
	GetByUser(ctx context.Context, userID string) (*models.Profile, error)
}

// PublishedStore records published posts.
type PublishedStore interface {
	Add(ctx context.Context, post models.PublishedPost) (models.ChangeResult, error)
	MarkDeleted(ctx context.Context, externalPostID string) (*models.PublishedPost, error)
	Restore(ctx context.Context, externalPostID string) (*models.PublishedPost, error)
	GetByExternalID(ctx context.Context, externalPostID string) (*models.PublishedPost, error)
}

// JobQueue is the durable queue between the scheduler and the poster.
type JobQueue interface {
	Push(ctx context.Context, job models.ScheduledPost) (models.ChangeResult, error)
	Subscribe(ctx context.Context) <-chan models.ScheduledPost
	Finish(ctx context.Context, externalPostID string) (models.ChangeResult, error)
	Error(ctx context.Context, externalPostID, message string) (models.ChangeResult, error)
	Release(ctx context.Context, externalPostID string) (models.ChangeResult, error)
	RequeueStale(ctx context.Context, lease time.Duration) (int64, error)
}
