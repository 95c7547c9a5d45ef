// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// App builds the root command. Global flags are inherited by every subcommand.
func (r *Runner) App() *cli.Command {
	return &cli.Command{
		Name:    "nostodon",
		Usage:   "Mirror public Mastodon posts to Nostr",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("NOSTODON_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database DSN (postgres:// or sqlite://)",
				Sources: cli.EnvVars("NOSTODON_DATABASE_URL"),
			},
			&cli.StringSliceFlag{
				Name:    "relays",
				Usage:   "Nostr relay URLs",
				Sources: cli.EnvVars("NOSTODON_NOSTR_RELAYS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("NOSTODON_LOG_LEVEL"),
			},
		},
		Before:   r.Configure,
		Commands: r.register(),
	}
}

// runCommand starts the mirror
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Stream configured sources and publish to Nostr",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-poster",
				Usage: "Only schedule jobs, do not publish them",
			},
		},
		Action: r.Run,
	}
}

// setupCommand initializes the config file and database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the default template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Run database migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// jobsCommand handles job queue operations
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect and manage scheduled posts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List jobs, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show jobs with this status (new, running, finished, errored)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to return",
						Value: 50,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (text, csv, json)",
						Value:   "text",
					},
				},
				Action: r.JobsList,
			},
			{
				Name:   "stats",
				Usage:  "Show job counts by status",
				Action: r.JobsStats,
			},
			{
				Name:      "requeue",
				Usage:     "Move a running or errored job back to new",
				ArgsUsage: "<external-post-id>",
				Action:    r.JobsRequeue,
			},
			{
				Name:   "tui",
				Usage:  "Browse jobs interactively",
				Action: r.JobsTUI,
			},
		},
	}
}

// instancesCommand handles instance registry operations
func instancesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "instances",
		Usage: "Manage known instances",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List instances seen on the streams",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "blacklisted",
						Usage: "Only show blacklisted instances",
					},
				},
				Action: r.InstancesList,
			},
			{
				Name:      "blacklist",
				Usage:     "Blacklist an instance",
				ArgsUsage: "<url>",
				Action:    r.InstancesBlacklist,
			},
			{
				Name:      "unblacklist",
				Usage:     "Remove an instance from the blacklist",
				ArgsUsage: "<url>",
				Action:    r.InstancesUnblacklist,
			},
		},
	}
}

// usersCommand handles identity blacklist operations
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage blacklisted users",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List blacklisted handles",
				Action: r.UsersList,
			},
			{
				Name:      "blacklist",
				Usage:     "Stop mirroring a user",
				ArgsUsage: "<username.host>",
				Action:    r.UsersBlacklist,
			},
			{
				Name:      "unblacklist",
				Usage:     "Resume mirroring a user",
				ArgsUsage: "<username.host>",
				Action:    r.UsersUnblacklist,
			},
		},
	}
}

// sourcesCommand handles stream source operations
func sourcesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "Manage Mastodon sources stored in the database",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add or replace a source",
				ArgsUsage: "<instance-url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "client-key", Usage: "OAuth client key"},
					&cli.StringFlag{Name: "client-secret", Usage: "OAuth client secret"},
					&cli.StringFlag{Name: "redirect-url", Usage: "OAuth redirect URL"},
					&cli.StringFlag{Name: "token", Usage: "Access token"},
				},
				Action: r.SourcesAdd,
			},
			{
				Name:  "list",
				Usage: "List stored sources",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SourcesList,
			},
			{
				Name:      "remove",
				Usage:     "Remove a source",
				ArgsUsage: "<instance-url>",
				Action:    r.SourcesRemove,
			},
			{
				Name:      "auth",
				Usage:     "Authorize a source with the OAuth2 authorization code flow",
				ArgsUsage: "<instance-url>",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the callback",
						Value: authTimeout,
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening it",
					},
				},
				Action: r.SourcesAuth,
			},
		},
	}
}
