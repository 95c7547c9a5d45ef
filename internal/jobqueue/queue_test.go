package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied.
// Foreign keys stay disabled so jobs can reference identities that were never created.
func setupTestDB(t *testing.T) *shared.Database {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestQueue(t *testing.T, pollInterval time.Duration) *Queue {
	t.Helper()
	return New(setupTestDB(t), Options{PollInterval: pollInterval, Logger: shared.NewLogger(io.Discard)})
}

func newJob(externalID string) models.ScheduledPost {
	return models.ScheduledPost{
		UserID:         "user-1",
		InstanceID:     "instance-1",
		ExternalPostID: externalID,
		Content:        "hi",
		Profile: models.Profile{
			Name:        "alice",
			DisplayName: "[Unofficial Mirror] Alice",
			NIP05:       "alice.mastodon.social",
		},
	}
}

func mustPush(t *testing.T, q *Queue, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := q.Push(context.Background(), newJob(id)); err != nil {
			t.Fatalf("failed to push %s: %v", id, err)
		}
	}
}

func TestPush(t *testing.T) {
	ctx := context.Background()

	t.Run("Duplicate push is a no-op", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)

		first, err := q.Push(ctx, newJob("A"))
		if err != nil {
			t.Fatalf("failed to push: %v", err)
		}
		if !first.Changed() {
			t.Error("first push should report Changed")
		}

		dup := newJob("A")
		dup.Content = "different"
		second, err := q.Push(ctx, dup)
		if err != nil {
			t.Fatalf("failed to push duplicate: %v", err)
		}
		if second.Changed() {
			t.Error("duplicate push should be Unchanged")
		}

		stats, err := q.Stats(ctx)
		if err != nil {
			t.Fatalf("failed to get stats: %v", err)
		}
		if stats[models.JobNew] != 1 || stats.Total() != 1 {
			t.Errorf("expected exactly one new job, got %v", stats)
		}

		job, _ := q.Get(ctx, "A")
		if job.Content != "hi" {
			t.Errorf("first writer should win, got content %q", job.Content)
		}
	})

	t.Run("Missing external id", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)

		if _, err := q.Push(ctx, models.ScheduledPost{Content: "x"}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Hour)
	mustPush(t, q, "A")

	job, err := q.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("failed to claim: %v", err)
	}
	if job == nil || job.ExternalPostID != "A" {
		t.Fatalf("expected job A, got %+v", job)
	}
	if job.Status != models.JobRunning {
		t.Errorf("expected running, got %s", job.Status)
	}
	if job.ClaimedAt.IsZero() {
		t.Error("claimed job should carry claimed_at")
	}
	if job.Profile.DisplayName != "[Unofficial Mirror] Alice" {
		t.Errorf("profile snapshot not returned: %+v", job.Profile)
	}

	stored, _ := q.Get(ctx, "A")
	if stored.Status != models.JobRunning || stored.ClaimedAt.IsZero() {
		t.Errorf("expected stored running job with claimed_at, got %+v", stored)
	}

	next, err := q.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("failed to claim from empty queue: %v", err)
	}
	if next != nil {
		t.Errorf("expected empty queue, got %+v", next)
	}

	finished, err := q.Finish(ctx, "A")
	if err != nil {
		t.Fatalf("failed to finish: %v", err)
	}
	if !finished.Changed() {
		t.Error("finish of running job should report Changed")
	}

	again, err := q.Finish(ctx, "A")
	if err != nil {
		t.Fatalf("second finish should not error: %v", err)
	}
	if again.Changed() {
		t.Error("second finish should be Unchanged")
	}

	stored, _ = q.Get(ctx, "A")
	if stored.Status != models.JobFinished {
		t.Errorf("expected finished, got %s", stored.Status)
	}
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("Finish unclaimed job", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)
		mustPush(t, q, "A")

		result, err := q.Finish(ctx, "A")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Changed() {
			t.Error("finish of new job should be Unchanged")
		}
	})

	t.Run("Finish unknown job", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)

		result, err := q.Finish(ctx, "missing")
		if err != nil || result.Changed() {
			t.Errorf("expected Unchanged without error, got %v, %v", result, err)
		}
	})

	t.Run("Error is terminal", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)
		mustPush(t, q, "A")
		q.ClaimNext(ctx)

		result, err := q.Error(ctx, "A", "relay rejected event")
		if err != nil {
			t.Fatalf("failed to error job: %v", err)
		}
		if !result.Changed() {
			t.Error("error of running job should report Changed")
		}

		job, _ := q.Get(ctx, "A")
		if job.Status != models.JobErrored || job.ErrorMessage != "relay rejected event" {
			t.Errorf("unexpected job %+v", job)
		}

		if next, _ := q.ClaimNext(ctx); next != nil {
			t.Errorf("errored job must not be claimed again, got %+v", next)
		}
		if finished, _ := q.Finish(ctx, "A"); finished.Changed() {
			t.Error("errored job cannot be finished")
		}
	})

	t.Run("Requeue errored job", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)
		mustPush(t, q, "A")
		q.ClaimNext(ctx)
		q.Error(ctx, "A", "boom")

		result, err := q.Requeue(ctx, "A")
		if err != nil {
			t.Fatalf("failed to requeue: %v", err)
		}
		if !result.Changed() {
			t.Error("requeue of errored job should report Changed")
		}

		job, _ := q.Get(ctx, "A")
		if job.Status != models.JobNew || job.ErrorMessage != "" || !job.ClaimedAt.IsZero() {
			t.Errorf("expected clean new job, got %+v", job)
		}

		if claimed, _ := q.ClaimNext(ctx); claimed == nil || claimed.ExternalPostID != "A" {
			t.Errorf("requeued job should be claimable, got %+v", claimed)
		}
	})

	t.Run("Requeue finished job", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)
		mustPush(t, q, "A")
		q.ClaimNext(ctx)
		q.Finish(ctx, "A")

		result, err := q.Requeue(ctx, "A")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Changed() {
			t.Error("finished job should not be requeued")
		}
	})

	t.Run("Release", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)
		mustPush(t, q, "A")
		q.ClaimNext(ctx)

		result, err := q.Release(ctx, "A")
		if err != nil || !result.Changed() {
			t.Fatalf("expected release to change state, got %v, %v", result, err)
		}
		if job, _ := q.Get(ctx, "A"); job.Status != models.JobNew {
			t.Errorf("expected new, got %s", job.Status)
		}
	})
}

func TestClaimOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Hour)
	mustPush(t, q, "C", "A", "B")

	var order []string
	for {
		job, err := q.ClaimNext(ctx)
		if err != nil {
			t.Fatalf("failed to claim: %v", err)
		}
		if job == nil {
			break
		}
		order = append(order, job.ExternalPostID)
	}

	want := []string{"C", "A", "B"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("expected claim order %v, got %v", want, order)
	}
}

func TestConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Hour)

	const jobs = 40
	for i := range jobs {
		mustPush(t, q, fmt.Sprintf("post-%02d", i))
	}

	var (
		mu      sync.Mutex
		claimed []string
		wg      sync.WaitGroup
	)
	for range 8 {
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
				claimed = append(claimed, job.ExternalPostID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Fatalf("expected %d claims, got %d", jobs, len(claimed))
	}
	sort.Strings(claimed)
	for i := 1; i < len(claimed); i++ {
		if claimed[i] == claimed[i-1] {
			t.Fatalf("job %s claimed twice", claimed[i])
		}
	}
}

func TestRequeueStale(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Hour)
	mustPush(t, q, "A", "B")

	q.ClaimNext(ctx)

	n, err := q.RequeueStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("failed to requeue stale: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh claim should not be requeued, got %d", n)
	}

	time.Sleep(20 * time.Millisecond)

	n, err = q.RequeueStale(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to requeue stale: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 stale job requeued, got %d", n)
	}

	if job, _ := q.Get(ctx, "A"); job.Status != models.JobNew {
		t.Errorf("expected A to be new again, got %s", job.Status)
	}
	if job, _ := q.Get(ctx, "B"); job.Status != models.JobNew {
		t.Errorf("B was never claimed and should stay new, got %s", job.Status)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Hour)
	mustPush(t, q, "A", "B", "C")
	q.ClaimNext(ctx)

	all, err := q.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(all) != 3 || all[0].ExternalPostID != "C" {
		t.Errorf("expected 3 jobs newest first, got %+v", all)
	}

	running, err := q.List(ctx, ListOptions{Status: models.JobRunning})
	if err != nil {
		t.Fatalf("failed to list running: %v", err)
	}
	if len(running) != 1 || running[0].ExternalPostID != "A" {
		t.Errorf("expected only A running, got %+v", running)
	}

	limited, _ := q.List(ctx, ListOptions{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(limited))
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, time.Hour)

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if len(stats) != 4 || stats.Total() != 0 {
		t.Errorf("expected zeroed stats for every status, got %v", stats)
	}

	mustPush(t, q, "A", "B", "C")
	q.ClaimNext(ctx)
	q.Finish(ctx, "A")
	q.ClaimNext(ctx)
	q.Error(ctx, "B", "boom")

	stats, _ = q.Stats(ctx)
	want := models.JobStats{models.JobNew: 1, models.JobRunning: 0, models.JobFinished: 1, models.JobErrored: 1}
	for status, count := range want {
		if stats[status] != count {
			t.Errorf("expected %d %s jobs, got %d", count, status, stats[status])
		}
	}
}
