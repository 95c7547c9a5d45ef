package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/nostodon/internal/formatter"
	"github.com/desertthunder/nostodon/internal/repositories"
	"github.com/desertthunder/nostodon/internal/shared"
	"github.com/urfave/cli/v3"
)

// InstancesList prints known instances.
func (r *Runner) InstancesList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	instances, err := repositories.NewInstanceRepository(db).List(ctx, cmd.Bool("blacklisted"))
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	_, err = r.output.Write(formatter.ExportInstancesToText(instances))
	return err
}

// InstancesBlacklist marks an instance as blacklisted, registering it first if it was never seen.
func (r *Runner) InstancesBlacklist(ctx context.Context, cmd *cli.Command) error {
	return r.setInstanceBlacklist(ctx, cmd, true)
}

// InstancesUnblacklist clears the blacklist flag of a known instance.
func (r *Runner) InstancesUnblacklist(ctx context.Context, cmd *cli.Command) error {
	return r.setInstanceBlacklist(ctx, cmd, false)
}

func (r *Runner) setInstanceBlacklist(ctx context.Context, cmd *cli.Command, blacklisted bool) error {
	raw := cmd.Args().First()
	if raw == "" {
		return fmt.Errorf("%w: instance url", shared.ErrMissingArgument)
	}
	instanceURL, err := shared.InstanceURL(raw)
	if err != nil {
		return err
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewInstanceRepository(db)
	if blacklisted {
		if _, err := repo.FetchOrCreate(ctx, instanceURL.String()); err != nil {
			return err
		}
	}
	if err := repo.SetBlacklisted(ctx, instanceURL.String(), blacklisted); err != nil {
		return err
	}

	r.logger.Info("instance updated", "url", instanceURL.String(), "blacklisted", blacklisted)
	if blacklisted {
		return r.writePlain("✓ Blacklisted %s\n", instanceURL)
	}
	return r.writePlain("✓ Removed %s from the blacklist\n", instanceURL)
}
