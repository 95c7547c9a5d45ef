package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/desertthunder/nostodon/internal/jobqueue"
	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/repositories"
	"github.com/desertthunder/nostodon/internal/server"
	"github.com/desertthunder/nostodon/internal/services"
	"github.com/desertthunder/nostodon/internal/shared"
	"github.com/desertthunder/nostodon/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Run starts one listener and scheduler per source, the poster, the lease sweeper and the
// health/metrics server, and blocks until SIGINT or SIGTERM.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.config.Validate(); err != nil {
		return err
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.HealthCheck(ctx); err != nil {
		return err
	}

	sources, err := r.loadSources(ctx, repositories.NewSourceRepository(db))
	if err != nil {
		return err
	}

	target, err := services.NewNostrTarget(services.NostrOptions{
		Relays:      r.config.Nostr.Relays,
		NIP05Domain: r.config.Nostr.NIP05Domain,
		Timeout:     r.config.Nostr.PublishTimeout,
		Rate:        r.config.Nostr.PublishRate,
		Logger:      shared.WithLogger(r.logger, "component", "nostr"),
	})
	if err != nil {
		return err
	}
	defer target.Close()

	notifier, err := jobqueue.NewNotifier(db, shared.WithLogger(r.logger, "component", "notifier"))
	if err != nil {
		return err
	}
	if notifier != nil {
		defer notifier.Close()
	}

	queue := jobqueue.New(db, jobqueue.Options{
		PollInterval: r.config.Queue.PollInterval,
		Notifier:     notifier,
		Logger:       shared.WithLogger(r.logger, "component", "queue"),
	})

	stores := tasks.Instrument(r.metrics, tasks.Instrumented{
		Instances:  repositories.NewInstanceRepository(db),
		Identities: repositories.NewIdentityRepository(db, services.NostrIssuer{}),
		Profiles:   repositories.NewProfileRepository(db),
		Published:  repositories.NewPublishedPostRepository(db),
		Queue:      queue,
		Target:     target,
	})

	var wg sync.WaitGroup
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("task stopped", "task", name, "error", err)
			}
		}()
	}

	mastodon := make([]*services.MastodonSource, 0, len(sources))
	for _, src := range sources {
		source, err := services.NewMastodonSource(src)
		if err != nil {
			return err
		}
		mastodon = append(mastodon, source)
	}

	reporters := make([]server.HealthReporter, 0, len(mastodon))
	for _, source := range mastodon {
		logger := shared.WithLogger(r.logger, "source", source.Name())
		listener := tasks.NewListener(source, tasks.ListenerOptions{
			Backoff:              r.config.Listener.Backoff,
			Buffer:               r.config.Listener.Buffer,
			MaxRestartsPerMinute: r.config.Listener.MaxRestartsPerMinute,
			Logger:               logger,
			Metrics:              r.metrics,
		})
		reporters = append(reporters, listener)

		scheduler := &tasks.Scheduler{
			Instances:  stores.Instances,
			Identities: stores.Identities,
			Published:  stores.Published,
			Queue:      stores.Queue,
			Target:     stores.Target,
			Policy:     r.config.Filter.InstanceBlacklistPolicy,
			Logger:     logger,
			Metrics:    r.metrics,
		}

		rx := listener.Subscribe(ctx)
		spawn("scheduler", func() error { return scheduler.Run(ctx, source.Name(), rx) })
		spawn("listener-errors", func() error {
			r.watchListener(ctx, listener)
			return nil
		})
	}

	if r.config.Poster.Enabled && !cmd.Bool("no-poster") {
		poster := &tasks.Poster{
			Queue:      stores.Queue,
			Identities: stores.Identities,
			Profiles:   stores.Profiles,
			Published:  stores.Published,
			Target:     stores.Target,
			Workers:    r.config.Poster.Workers,
			Logger:     shared.WithLogger(r.logger, "component", "poster"),
			Metrics:    r.metrics,
		}
		spawn("poster", func() error { return poster.Run(ctx) })
	} else {
		r.logger.Info("poster disabled, jobs will only be scheduled")
	}

	sweeper := &tasks.Sweeper{
		Queue:    stores.Queue,
		Lease:    r.config.Queue.LeaseTimeout,
		Interval: r.config.Queue.SweepInterval,
		Logger:   shared.WithLogger(r.logger, "component", "sweeper"),
		Metrics:  r.metrics,
	}
	spawn("sweeper", func() error { return sweeper.Run(ctx) })

	router := server.NewBasicRouter()
	router.Use(server.Logging(shared.WithLogger(r.logger, "component", "http")), server.Instrument(r.metrics))
	router.Handler(server.NewHealthHandler(db, reporters...))
	router.Handle("GET", "/metrics", r.metrics.Handler())
	srv := server.New(r.config.Server.Addr(), router)
	spawn("server", func() error { return server.Serve(ctx, srv) })

	r.logger.Info("nostodon started",
		"sources", len(mastodon),
		"relays", len(r.config.Nostr.Relays),
		"addr", r.config.Server.Addr(),
	)

	<-ctx.Done()
	r.logger.Info("shutting down")
	wg.Wait()
	return nil
}

// watchListener logs persistent listener failures until the listener stops.
func (r *Runner) watchListener(ctx context.Context, listener *tasks.Listener) {
	for {
		select {
		case err := <-listener.Errors():
			r.logger.Error("source rejected credentials, re-run 'nostodon sources auth'",
				"source", listener.Name(), "error", err)
		case <-listener.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// loadSources merges sources from the config file with those stored in the database. Stored
// credentials win for the same instance.
func (r *Runner) loadSources(ctx context.Context, repo *repositories.SourceRepository) ([]models.Source, error) {
	byURL := make(map[string]models.Source)
	var order []string

	add := func(src models.Source) {
		src.InstanceURL = shared.NormalizeInstanceURL(src.InstanceURL)
		if _, ok := byURL[src.InstanceURL]; !ok {
			order = append(order, src.InstanceURL)
		}
		byURL[src.InstanceURL] = src
	}

	for _, sc := range r.config.Sources {
		add(models.Source{
			InstanceURL:  sc.InstanceURL,
			ClientKey:    sc.ClientKey,
			ClientSecret: sc.ClientSecret,
			RedirectURL:  sc.RedirectURL,
			Token:        sc.Token,
		})
	}

	stored, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, src := range stored {
		add(src)
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("%w: add [[sources]] to %s or run 'nostodon sources add'", shared.ErrNoSources, r.configPath)
	}

	sources := make([]models.Source, 0, len(order))
	for _, u := range order {
		sources = append(sources, byURL[u])
	}
	return sources, nil
}

// redactDSN hides the password of a URL-style DSN.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	return u.Redacted()
}
