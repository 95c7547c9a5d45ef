package tasks

import (
	"context"
	"time"

	"github.com/desertthunder/nostodon/internal/metrics"
	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/services"
)

// Instrumented wraps every store, the queue and the target so each call is timed under a task name
// such as "storage.identity.fetch_or_create", "queue.push" or "nostr.publish".
type Instrumented struct {
	Instances  InstanceStore
	Identities IdentityStore
	Profiles   ProfileStore
	Published  PublishedStore
	Queue      JobQueue
	Target     services.Target
}

// Instrument returns decorated copies of the given collaborators. A nil m records nothing.
func Instrument(m *metrics.Metrics, in Instrumented) Instrumented {
	return Instrumented{
		Instances:  &measuredInstances{next: in.Instances, m: m},
		Identities: &measuredIdentities{next: in.Identities, m: m},
		Profiles:   &measuredProfiles{next: in.Profiles, m: m},
		Published:  &measuredPublished{next: in.Published, m: m},
		Queue:      &measuredQueue{next: in.Queue, m: m},
		Target:     &measuredTarget{next: in.Target, m: m},
	}
}

type measuredInstances struct {
	next InstanceStore
	m    *metrics.Metrics
}

func (s *measuredInstances) FetchOrCreate(ctx context.Context, url string) (*models.Instance, error) {
	return metrics.Measure(ctx, s.m, "storage.instance.fetch_or_create", func(ctx context.Context) (*models.Instance, error) {
		return s.next.FetchOrCreate(ctx, url)
	})
}

type measuredIdentities struct {
	next IdentityStore
	m    *metrics.Metrics
}

func (s *measuredIdentities) FetchOrCreate(ctx context.Context, instanceID, handle string) (*models.Identity, error) {
	return metrics.Measure(ctx, s.m, "storage.identity.fetch_or_create", func(ctx context.Context) (*models.Identity, error) {
		return s.next.FetchOrCreate(ctx, instanceID, handle)
	})
}

func (s *measuredIdentities) IsBlacklisted(ctx context.Context, id string) (bool, error) {
	return metrics.Measure(ctx, s.m, "storage.identity.is_blacklisted", func(ctx context.Context) (bool, error) {
		return s.next.IsBlacklisted(ctx, id)
	})
}

func (s *measuredIdentities) Credentials(ctx context.Context, id string) (models.Keypair, error) {
	return metrics.Measure(ctx, s.m, "storage.identity.credentials", func(ctx context.Context) (models.Keypair, error) {
		return s.next.Credentials(ctx, id)
	})
}

type measuredProfiles struct {
	next ProfileStore
	m    *metrics.Metrics
}

func (s *measuredProfiles) Upsert(ctx context.Context, profile models.Profile) (models.ChangeResult, error) {
	return metrics.Measure(ctx, s.m, "storage.profile.upsert", func(ctx context.Context) (models.ChangeResult, error) {
		return s.next.Upsert(ctx, profile)
	})
}

func (s *measuredProfiles) GetByUser(ctx context.Context, userID string) (*models.Profile, error) {
	return metrics.Measure(ctx, s.m, "storage.profile.get", func(ctx context.Context) (*models.Profile, error) {
		return s.next.GetByUser(ctx, userID)
	})
}

type measuredPublished struct {
	next PublishedStore
	m    *metrics.Metrics
}

func (s *measuredPublished) Add(ctx context.Context, post models.PublishedPost) (models.ChangeResult, error) {
	return metrics.Measure(ctx, s.m, "storage.published.add", func(ctx context.Context) (models.ChangeResult, error) {
		return s.next.Add(ctx, post)
	})
}

func (s *measuredPublished) MarkDeleted(ctx context.Context, externalPostID string) (*models.PublishedPost, error) {
	return metrics.Measure(ctx, s.m, "storage.published.mark_deleted", func(ctx context.Context) (*models.PublishedPost, error) {
		return s.next.MarkDeleted(ctx, externalPostID)
	})
}

func (s *measuredPublished) Restore(ctx context.Context, externalPostID string) (*models.PublishedPost, error) {
	return metrics.Measure(ctx, s.m, "storage.published.restore", func(ctx context.Context) (*models.PublishedPost, error) {
		return s.next.Restore(ctx, externalPostID)
	})
}

func (s *measuredPublished) GetByExternalID(ctx context.Context, externalPostID string) (*models.PublishedPost, error) {
	return metrics.Measure(ctx, s.m, "storage.published.get", func(ctx context.Context) (*models.PublishedPost, error) {
		return s.next.GetByExternalID(ctx, externalPostID)
	})
}

type measuredQueue struct {
	next JobQueue
	m    *metrics.Metrics
}

func (q *measuredQueue) Push(ctx context.Context, job models.ScheduledPost) (models.ChangeResult, error) {
	return metrics.Measure(ctx, q.m, "queue.push", func(ctx context.Context) (models.ChangeResult, error) {
		return q.next.Push(ctx, job)
	})
}

// Subscribe is not timed; it returns immediately and its claims run in the background.
func (q *measuredQueue) Subscribe(ctx context.Context) <-chan models.ScheduledPost {
	return q.next.Subscribe(ctx)
}

func (q *measuredQueue) Finish(ctx context.Context, externalPostID string) (models.ChangeResult, error) {
	return metrics.Measure(ctx, q.m, "queue.finish", func(ctx context.Context) (models.ChangeResult, error) {
		return q.next.Finish(ctx, externalPostID)
	})
}

func (q *measuredQueue) Error(ctx context.Context, externalPostID, message string) (models.ChangeResult, error) {
	return metrics.Measure(ctx, q.m, "queue.error", func(ctx context.Context) (models.ChangeResult, error) {
		return q.next.Error(ctx, externalPostID, message)
	})
}

func (q *measuredQueue) Release(ctx context.Context, externalPostID string) (models.ChangeResult, error) {
	return metrics.Measure(ctx, q.m, "queue.release", func(ctx context.Context) (models.ChangeResult, error) {
		return q.next.Release(ctx, externalPostID)
	})
}

func (q *measuredQueue) RequeueStale(ctx context.Context, lease time.Duration) (int64, error) {
	return metrics.Measure(ctx, q.m, "queue.requeue_stale", func(ctx context.Context) (int64, error) {
		return q.next.RequeueStale(ctx, lease)
	})
}

type measuredTarget struct {
	next services.Target
	m    *metrics.Metrics
}

func (t *measuredTarget) Publish(ctx context.Context, keys models.Keypair, note services.Note) (string, error) {
	return metrics.Measure(ctx, t.m, "nostr.publish", func(ctx context.Context) (string, error) {
		return t.next.Publish(ctx, keys, note)
	})
}

func (t *measuredTarget) UpdateProfile(ctx context.Context, keys models.Keypair, profile models.Profile) (string, error) {
	return metrics.Measure(ctx, t.m, "nostr.update_profile", func(ctx context.Context) (string, error) {
		return t.next.UpdateProfile(ctx, keys, profile)
	})
}

func (t *measuredTarget) Delete(ctx context.Context, keys models.Keypair, targetID string) (string, error) {
	return metrics.Measure(ctx, t.m, "nostr.delete", func(ctx context.Context) (string, error) {
		return t.next.Delete(ctx, keys, targetID)
	})
}
