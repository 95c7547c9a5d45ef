package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nostodon/internal/metrics"
	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/services"
	"github.com/desertthunder/nostodon/internal/shared"
)

// Poster consumes queued jobs and publishes them to the target.
type Poster struct {
	Queue      JobQueue
	Identities IdentityStore
	Profiles   ProfileStore
	Published  PublishedStore
	Target     services.Target
	// Workers is the number of concurrent jobs, at least one.
	Workers int
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// Run processes jobs until ctx ends. A failed job never stops the loop.
func (p *Poster) Run(ctx context.Context) error {
	jobs := p.Queue.Subscribe(ctx)

	workers := max(p.Workers, 1)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			logger := p.logger().With("worker", worker)
			for job := range jobs {
				if err := p.Process(ctx, job); err != nil {
					logger.Error("job failed", "external_post_id", job.ExternalPostID, "error", err)
				}
			}
		}(i)
	}

	wg.Wait()
	return nil
}

// Process runs one claimed job to completion and records its outcome on the queue.
//
// When ctx is cancelled before the note reaches the target the claim is released so the job is
// picked up again after restart. Once the target has accepted the note the job is recorded and
// finished regardless of ctx.
func (p *Poster) Process(ctx context.Context, job models.ScheduledPost) error {
	sent, err := p.publish(ctx, job)
	if err == nil {
		if _, ferr := p.Queue.Finish(context.WithoutCancel(ctx), job.ExternalPostID); ferr != nil {
			return fmt.Errorf("failed to finish job: %w", ferr)
		}
		return nil
	}

	if !sent && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		if _, rerr := p.Queue.Release(context.WithoutCancel(ctx), job.ExternalPostID); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}

	if _, qerr := p.Queue.Error(context.WithoutCancel(ctx), job.ExternalPostID, err.Error()); qerr != nil {
		return errors.Join(err, qerr)
	}
	return err
}

// publish reports whether the note was accepted by the target, even when a later step failed.
func (p *Poster) publish(ctx context.Context, job models.ScheduledPost) (bool, error) {
	keys, err := p.Identities.Credentials(ctx, job.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to load credentials: %w", err)
	}

	if err := p.mirrorProfile(ctx, keys, job); err != nil {
		return false, err
	}

	content, err := shared.HTMLToMarkdown(job.Content)
	if err != nil {
		return false, err
	}

	note := services.Note{Content: content}
	if note.InReplyTo, err = p.parentTarget(ctx, job); err != nil {
		return false, err
	}

	targetID, err := p.Target.Publish(ctx, keys, note)
	if err != nil {
		return false, fmt.Errorf("failed to publish: %w", err)
	}

	_, err = p.Published.Add(context.WithoutCancel(ctx), models.PublishedPost{
		InstanceID:     job.InstanceID,
		UserID:         job.UserID,
		ExternalPostID: job.ExternalPostID,
		TargetID:       targetID,
	})
	if err != nil {
		return true, fmt.Errorf("failed to record published post %s: %w", targetID, err)
	}

	p.Metrics.PostCreated()
	p.logger().Info("published post", "external_post_id", job.ExternalPostID, "target_id", targetID)
	return true, nil
}

// mirrorProfile sends the job's profile to the target when it differs from the last mirrored one.
// The profile is stored only after the target accepted it.
func (p *Poster) mirrorProfile(ctx context.Context, keys models.Keypair, job models.ScheduledPost) error {
	profile := job.ProfileSnapshot()

	stored, err := p.Profiles.GetByUser(ctx, job.UserID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if stored != nil && sameProfile(*stored, profile) {
		return nil
	}

	if _, err := p.Target.UpdateProfile(ctx, keys, profile); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if _, err := p.Profiles.Upsert(context.WithoutCancel(ctx), profile); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}

	p.Metrics.ProfileUpdated()
	p.logger().Info("updated profile", "user_id", job.UserID, "nip05", profile.NIP05)
	return nil
}

// parentTarget resolves the target id of the post job replies to. Replies to posts that were never
// mirrored, or were deleted, are published without a reference.
func (p *Poster) parentTarget(ctx context.Context, job models.ScheduledPost) (string, error) {
	if job.InReplyTo == "" {
		return "", nil
	}

	parent, err := p.Published.GetByExternalID(ctx, job.InReplyTo)
	if errors.Is(err, shared.ErrNotFound) {
		p.logger().Debug("reply parent not mirrored", "external_post_id", job.ExternalPostID, "in_reply_to", job.InReplyTo)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve reply parent: %w", err)
	}
	if parent.Status != models.PostPosted {
		return "", nil
	}
	return parent.TargetID, nil
}

func sameProfile(a, b models.Profile) bool {
	return a.InstanceID == b.InstanceID &&
		a.Name == b.Name &&
		a.DisplayName == b.DisplayName &&
		a.About == b.About &&
		a.Picture == b.Picture &&
		a.NIP05 == b.NIP05 &&
		a.Banner == b.Banner
}

func (p *Poster) logger() *log.Logger {
	if p.Logger == nil {
		return defaultLogger
	}
	return p.Logger
}
