package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/nostodon/internal/repositories"
	"github.com/desertthunder/nostodon/internal/services"
	"github.com/desertthunder/nostodon/internal/shared"
	"github.com/urfave/cli/v3"
)

// splitHandle breaks "<username>.<host>" at the first dot. Mastodon usernames cannot contain dots.
func splitHandle(handle string) (string, string, error) {
	username, host, ok := strings.Cut(handle, ".")
	if !ok || username == "" || host == "" {
		return "", "", fmt.Errorf("%w: handle %q, want <username>.<host>", shared.ErrInvalidArgument, handle)
	}
	return username, host, nil
}

// UsersList prints blacklisted handles.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	handles, err := repositories.NewIdentityRepository(db, services.NostrIssuer{}).ListBlacklisted(ctx)
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		return r.writePlain("No blacklisted users.\n")
	}
	for _, handle := range handles {
		r.writePlain("%s\n", handle)
	}
	return nil
}

// UsersBlacklist stops mirroring a user. Handles never seen on a stream are registered first so
// they are skipped from their first post.
func (r *Runner) UsersBlacklist(ctx context.Context, cmd *cli.Command) error {
	handle := cmd.Args().First()
	if handle == "" {
		return fmt.Errorf("%w: handle", shared.ErrMissingArgument)
	}
	_, host, err := splitHandle(handle)
	if err != nil {
		return err
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	identities := repositories.NewIdentityRepository(db, services.NostrIssuer{})
	if _, err := identities.GetByHandle(ctx, handle); errors.Is(err, shared.ErrNotFound) {
		instance, err := repositories.NewInstanceRepository(db).FetchOrCreate(ctx, "https://"+host+"/")
		if err != nil {
			return err
		}
		if _, err := identities.FetchOrCreate(ctx, instance.ID, handle); err != nil {
			return err
		}
		r.logger.Debug("registered identity for blacklist", "handle", handle)
	} else if err != nil {
		return err
	}

	result, err := identities.Blacklist(ctx, handle)
	if err != nil {
		return err
	}
	if !result.Changed() {
		return r.writePlain("%s is already blacklisted\n", handle)
	}

	r.logger.Info("user blacklisted", "handle", handle)
	return r.writePlain("✓ Blacklisted %s\n", handle)
}

// UsersUnblacklist resumes mirroring a user.
func (r *Runner) UsersUnblacklist(ctx context.Context, cmd *cli.Command) error {
	handle := cmd.Args().First()
	if handle == "" {
		return fmt.Errorf("%w: handle", shared.ErrMissingArgument)
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := repositories.NewIdentityRepository(db, services.NostrIssuer{}).Unblacklist(ctx, handle)
	if err != nil {
		return err
	}
	if !result.Changed() {
		return r.writePlain("%s is not blacklisted\n", handle)
	}

	r.logger.Info("user removed from blacklist", "handle", handle)
	return r.writePlain("✓ Removed %s from the blacklist\n", handle)
}
