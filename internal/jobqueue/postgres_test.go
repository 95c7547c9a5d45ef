package jobqueue

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/repositories"
	"github.com/desertthunder/nostodon/internal/shared"
)

// These tests exercise SKIP LOCKED and LISTEN/NOTIFY against a real server.
// Set NOSTODON_TEST_POSTGRES_DSN to a disposable database to run them.
func setupPostgres(t *testing.T) (*shared.Database, models.ScheduledPost) {
	t.Helper()

	dsn := os.Getenv("NOSTODON_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NOSTODON_TEST_POSTGRES_DSN not set")
	}

	db, err := shared.NewDatabase(dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE scheduled_posts, published_posts, profiles, identity_blacklist, identities, instances CASCADE`); err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}

	ctx := context.Background()
	instance, err := repositories.NewInstanceRepository(db).FetchOrCreate(ctx, "https://mastodon.social/")
	if err != nil {
		t.Fatalf("failed to seed instance: %v", err)
	}
	identity, err := repositories.NewIdentityRepository(db, staticIssuer{}).FetchOrCreate(ctx, instance.ID, "alice.mastodon.social")
	if err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}

	return db, models.ScheduledPost{UserID: identity.ID, InstanceID: instance.ID, Content: "hi"}
}

type staticIssuer struct{}

func (staticIssuer) Issue() (models.Keypair, error) {
	return models.Keypair{PublicKey: "pub", PrivateKey: "priv"}, nil
}

func TestPostgresConcurrentClaims(t *testing.T) {
	db, template := setupPostgres(t)
	ctx := context.Background()
	q := New(db, Options{Logger: shared.NewLogger(io.Discard)})

	const jobs = 50
	for i := range jobs {
		job := template
		job.ExternalPostID = fmt.Sprintf("claim-%d-%d", time.Now().UnixNano(), i)
		if _, err := q.Push(ctx, job); err != nil {
			t.Fatalf("failed to push: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.ClaimNext(ctx)
				if err != nil {
					t.Errorf("failed to claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				if seen[job.ID] {
					t.Errorf("job %d claimed twice", job.ID)
				}
				seen[job.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Errorf("expected %d claims, got %d", jobs, len(seen))
	}
}

func TestPostgresNotifier(t *testing.T) {
	db, template := setupPostgres(t)
	logger := shared.NewLogger(io.Discard)

	notifier, err := NewNotifier(db, logger)
	if err != nil {
		t.Fatalf("failed to create notifier: %v", err)
	}
	defer notifier.Close()

	consumer := New(db, Options{PollInterval: time.Hour, Notifier: notifier, Logger: logger})
	producer := New(db, Options{PollInterval: time.Hour, Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs := consumer.Subscribe(ctx)

	job := template
	job.ExternalPostID = fmt.Sprintf("notify-%d", time.Now().UnixNano())
	if _, err := producer.Push(ctx, job); err != nil {
		t.Fatalf("failed to push: %v", err)
	}

	if got := receive(t, jobs); got.ExternalPostID != job.ExternalPostID {
		t.Errorf("expected %s, got %s", job.ExternalPostID, got.ExternalPostID)
	}
}
