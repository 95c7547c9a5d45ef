package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMeasure(t *testing.T) {
	ctx := context.Background()

	t.Run("Records success", func(t *testing.T) {
		m := New()

		v, err := Measure(ctx, m, "queue.push", func(context.Context) (int, error) { return 42, nil })
		if err != nil || v != 42 {
			t.Fatalf("expected 42, got %d (%v)", v, err)
		}

		if got := testutil.ToFloat64(m.taskCount.WithLabelValues("queue.push")); got != 1 {
			t.Errorf("expected task count 1, got %v", got)
		}
		if got := testutil.ToFloat64(m.taskTimeouts.WithLabelValues("queue.push")); got != 0 {
			t.Errorf("expected no timeouts, got %v", got)
		}
		if n := testutil.CollectAndCount(m.taskHistogram, TaskElapsedHisto); n != 1 {
			t.Errorf("expected one histogram series, got %d", n)
		}
	})

	t.Run("Passes errors through", func(t *testing.T) {
		m := New()
		boom := errors.New("boom")

		err := MeasureErr(ctx, m, "nostr.publish", func(context.Context) error { return boom })
		if !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
		if got := testutil.ToFloat64(m.taskCount.WithLabelValues("nostr.publish")); got != 1 {
			t.Errorf("failed tasks should still be counted, got %v", got)
		}
	})

	t.Run("Counts timeouts", func(t *testing.T) {
		m := New()

		err := MeasureErr(ctx, m, "nostr.publish", func(context.Context) error {
			return fmt.Errorf("publish: %w", context.DeadlineExceeded)
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if got := testutil.ToFloat64(m.taskTimeouts.WithLabelValues("nostr.publish")); got != 1 {
			t.Errorf("expected 1 timeout, got %v", got)
		}
	})

	t.Run("Nil metrics", func(t *testing.T) {
		var m *Metrics

		v, err := Measure(ctx, m, "noop", func(context.Context) (string, error) { return "ok", nil })
		if err != nil || v != "ok" {
			t.Errorf("expected ok, got %q (%v)", v, err)
		}
		m.SkipEvent("public", ReasonUserBlacklist)
		m.PostCreated()
		m.EventsMissed("x", 3)
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.SkipEvent("private", ReasonVisibility)
	m.SkipEvent("private", ReasonVisibility)
	m.SkipEvent("public", ReasonUserBlacklist)
	m.PostCreated()
	m.PostDeleted()
	m.ProfileUpdated()
	m.ListenerRestarted("https://mastodon.social/")
	m.EventsMissed("https://mastodon.social/", 5)
	m.EventsMissed("https://mastodon.social/", 0)
	m.JobsRequeued(2)
	m.JobsRequeued(0)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"visibility", testutil.ToFloat64(m.eventsSkipped.WithLabelValues("private", ReasonVisibility)), 2},
		{"user blacklist", testutil.ToFloat64(m.eventsSkipped.WithLabelValues("public", ReasonUserBlacklist)), 1},
		{"posts created", testutil.ToFloat64(m.postsCreated), 1},
		{"posts deleted", testutil.ToFloat64(m.postsDeleted), 1},
		{"profiles updated", testutil.ToFloat64(m.profilesUpdated), 1},
		{"restarts", testutil.ToFloat64(m.listenerRestarts.WithLabelValues("https://mastodon.social/")), 1},
		{"missed", testutil.ToFloat64(m.eventsMissed.WithLabelValues("https://mastodon.social/")), 5},
		{"requeued", testutil.ToFloat64(m.jobsRequeued), 2},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SkipEvent("direct", ReasonVisibility)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("failed to scrape: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	want := `nostodon_mastodon_events_skipped_count{reason="visibility",visibility="direct"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("expected scrape to contain %q", want)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected runtime collectors to be registered")
	}
}
