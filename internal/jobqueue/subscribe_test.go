package jobqueue

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

func receive(t *testing.T, jobs <-chan models.ScheduledPost) models.ScheduledPost {
	t.Helper()
	select {
	case job, ok := <-jobs:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job")
	}
	return models.ScheduledPost{}
}

func waitForStatus(t *testing.T, q *Queue, externalID string, want models.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.Get(context.Background(), externalID)
		if err == nil && job.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", externalID, want)
}

func TestSubscribe(t *testing.T) {
	t.Run("Drains backlog on start", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)
		mustPush(t, q, "A", "B", "C")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		jobs := q.Subscribe(ctx)
		for _, want := range []string{"A", "B", "C"} {
			if got := receive(t, jobs); got.ExternalPostID != want {
				t.Errorf("expected %s, got %s", want, got.ExternalPostID)
			}
		}
	})

	t.Run("Push wakes subscriber", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		jobs := q.Subscribe(ctx)
		mustPush(t, q, "A")

		job := receive(t, jobs)
		if job.ExternalPostID != "A" || job.Status != models.JobRunning {
			t.Errorf("expected running job A, got %+v", job)
		}
	})

	t.Run("Poll picks up external writes", func(t *testing.T) {
		q := newTestQueue(t, 10*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		jobs := q.Subscribe(ctx)

		// Writes from another process never touch the in-process nudge.
		other := New(q.db, Options{PollInterval: time.Hour, Logger: q.logger})
		if _, err := other.Push(context.Background(), newJob("A")); err != nil {
			t.Fatalf("failed to push: %v", err)
		}

		if job := receive(t, jobs); job.ExternalPostID != "A" {
			t.Errorf("expected A, got %s", job.ExternalPostID)
		}
	})

	t.Run("Each job goes to one receiver", func(t *testing.T) {
		q := newTestQueue(t, 10*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		first := q.Subscribe(ctx)
		second := q.Subscribe(ctx)

		const total = 10
		for i := range total {
			mustPush(t, q, string(rune('a'+i)))
		}

		seen := make(map[string]bool)
		for len(seen) < total {
			var job models.ScheduledPost
			select {
			case job = <-first:
			case job = <-second:
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out after %d jobs", len(seen))
			}
			if seen[job.ExternalPostID] {
				t.Fatalf("job %s delivered twice", job.ExternalPostID)
			}
			seen[job.ExternalPostID] = true
		}
	})

	t.Run("Cancel releases undelivered job", func(t *testing.T) {
		q := newTestQueue(t, time.Hour)
		mustPush(t, q, "A")

		ctx, cancel := context.WithCancel(context.Background())
		jobs := q.Subscribe(ctx)

		// Nobody reads, so the dispatcher holds the claimed job.
		waitForStatus(t, q, "A", models.JobRunning)
		cancel()
		waitForStatus(t, q, "A", models.JobNew)

		select {
		case _, ok := <-jobs:
			if ok {
				t.Error("expected closed channel after cancel")
			}
		case <-time.After(2 * time.Second):
			t.Error("subscription was not closed")
		}
	})
}

type fakeNotifier struct {
	signals chan struct{}
}

func (f *fakeNotifier) Notifications() <-chan struct{} { return f.signals }
func (f *fakeNotifier) Close() error                   { close(f.signals); return nil }

func TestSubscribeNotifier(t *testing.T) {
	db := setupTestDB(t)
	notifier := &fakeNotifier{signals: make(chan struct{}, 1)}
	q := New(db, Options{PollInterval: time.Hour, Notifier: notifier, Logger: shared.NewLogger(io.Discard)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := q.Subscribe(ctx)

	other := New(db, Options{PollInterval: time.Hour, Logger: q.logger})
	if _, err := other.Push(context.Background(), newJob("A")); err != nil {
		t.Fatalf("failed to push: %v", err)
	}
	notifier.signals <- struct{}{}

	if job := receive(t, jobs); job.ExternalPostID != "A" {
		t.Errorf("expected A, got %s", job.ExternalPostID)
	}
}
