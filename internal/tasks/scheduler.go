package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nostodon/internal/broadcast"
	"github.com/desertthunder/nostodon/internal/metrics"
	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/services"
	"github.com/desertthunder/nostodon/internal/shared"
)

// Scheduler turns listener events into queued jobs and executes deletes directly.
type Scheduler struct {
	Instances  InstanceStore
	Identities IdentityStore
	Published  PublishedStore
	Queue      JobQueue
	Target     services.Target
	// Policy is the instance blacklist policy, [shared.BlacklistPolicyFlag] when empty.
	Policy  string
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// Run consumes rx until ctx ends or the receiver closes. Handler errors are logged and the loop
// continues.
func (s *Scheduler) Run(ctx context.Context, source string, rx *broadcast.Receiver[models.Event]) error {
	logger := s.logger().With("source", source)
	var missed uint64

	for {
		event, err := rx.Recv(ctx)
		if err != nil {
			if errors.Is(err, broadcast.ErrClosed) {
				return nil
			}
			return err
		}

		if n := rx.Missed(); n > missed {
			s.Metrics.EventsMissed(source, n-missed)
			logger.Warn("scheduler fell behind, events dropped", "count", n-missed)
			missed = n
		}

		if err := s.Handle(ctx, event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("failed to handle event", "event", event, "error", err)
		}
	}
}

// Handle processes a single event.
func (s *Scheduler) Handle(ctx context.Context, event models.Event) error {
	switch event.Kind {
	case models.EventUpdate:
		return s.handleUpdate(ctx, event)
	case models.EventDelete:
		return s.handleDelete(ctx, event.DeleteID)
	default:
		return fmt.Errorf("%w: unknown event kind %q", shared.ErrInvalidEvent, event.Kind)
	}
}

func (s *Scheduler) handleUpdate(ctx context.Context, event models.Event) error {
	if d := Evaluate(event, nil, false, s.policy()); !d.Allowed() {
		s.skip(event, d)
		return nil
	}

	status := event.Status
	base, err := shared.InstanceURL(status.URL)
	if err != nil {
		return err
	}

	instance, err := s.Instances.FetchOrCreate(ctx, base.String())
	if err != nil {
		return fmt.Errorf("failed to resolve instance: %w", err)
	}

	handle := shared.ExternalHandle(status.Account.Username, base)
	identity, err := s.Identities.FetchOrCreate(ctx, instance.ID, handle)
	if err != nil {
		return fmt.Errorf("failed to resolve identity %s: %w", handle, err)
	}

	blacklisted, err := s.Identities.IsBlacklisted(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("failed to check blacklist for %s: %w", handle, err)
	}

	d := Evaluate(event, instance, blacklisted, s.policy())
	for _, flag := range d.Flags {
		s.Metrics.SkipEvent(d.Visibility, flag)
		s.logger().Warn("update from blacklisted instance", "instance", instance.URL, "external_post_id", status.ID)
	}
	if !d.Allowed() {
		s.skip(event, d)
		return nil
	}

	job := models.ScheduledPost{
		UserID:         identity.ID,
		InstanceID:     instance.ID,
		ExternalPostID: status.ID,
		Content:        status.Content,
		InReplyTo:      status.InReplyToID,
		Profile:        ProfileFromAccount(status.Account, handle),
	}

	res, err := s.Queue.Push(ctx, job)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", status.ID, err)
	}
	if res.Changed() {
		s.logger().Debug("scheduled post", "external_post_id", status.ID, "handle", handle)
	}
	return nil
}

func (s *Scheduler) handleDelete(ctx context.Context, externalPostID string) error {
	post, err := s.Published.MarkDeleted(ctx, externalPostID)
	if err != nil {
		return fmt.Errorf("failed to mark %s deleted: %w", externalPostID, err)
	}
	if post == nil {
		return nil
	}

	if err := s.deleteRemote(ctx, post); err != nil {
		if _, rerr := s.Published.Restore(context.WithoutCancel(ctx), externalPostID); rerr != nil {
			s.logger().Error("failed to restore post after failed delete", "external_post_id", externalPostID, "error", rerr)
		}
		return fmt.Errorf("failed to delete %s: %w", externalPostID, err)
	}

	s.Metrics.PostDeleted()
	s.logger().Info("deleted post", "external_post_id", externalPostID, "target_id", post.TargetID)
	return nil
}

func (s *Scheduler) deleteRemote(ctx context.Context, post *models.PublishedPost) error {
	keys, err := s.Identities.Credentials(ctx, post.UserID)
	if err != nil {
		return err
	}
	_, err = s.Target.Delete(ctx, keys, post.TargetID)
	return err
}

func (s *Scheduler) skip(event models.Event, d Decision) {
	s.Metrics.SkipEvent(d.Visibility, d.Reason)

	id := ""
	if event.Status != nil {
		id = event.Status.ID
	}
	s.logger().Debug("skipping update", "external_post_id", id, "reason", d.Reason)
}

func (s *Scheduler) policy() string {
	if s.Policy == "" {
		return shared.BlacklistPolicyFlag
	}
	return s.Policy
}

func (s *Scheduler) logger() *log.Logger {
	if s.Logger == nil {
		return defaultLogger
	}
	return s.Logger
}

// ProfileFromAccount snapshots account as a target profile for handle.
//
// The mirror prefixes and NIP-05 domain are applied by the target when the profile is published.
func ProfileFromAccount(account models.Account, handle string) models.Profile {
	return models.Profile{
		Name:        account.Username,
		DisplayName: account.DisplayName,
		About:       account.Note,
		Picture:     account.Avatar,
		Banner:      account.Header,
		NIP05:       handle,
	}
}
