package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/nostodon/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the default config template to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("creating config file from template", "path", r.configPath)
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}

	r.writePlain("✓ Config written to %s\n", r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set database.dsn and nostr.relays\n")
	r.writePlain("2. Run 'nostodon setup database'\n")
	r.writePlain("3. Add a source with 'nostodon sources add <instance-url>'\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "dsn", redactDSN(r.config.Database.DSN))

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.HealthCheck(ctx); err != nil {
		return err
	}

	version, err := shared.CurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	r.logger.Infof("setup complete, schema at version %d", version)
	r.writePlain("✓ Database ready (%s, schema version %d)\n", db.Dialect(), version)
	return nil
}
