// package metrics registers the pipeline's Prometheus collectors and provides the [Measure]
// decorator used to time operations.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	EventsSkipped     = "nostodon_mastodon_events_skipped_count"
	TaskCount         = "nostodon_task_count"
	TaskTimeoutCount  = "nostodon_task_timeout_count"
	TaskTimeElapsed   = "nostodon_task_time_elapsed_ms"
	TaskElapsedHisto  = "nostodon_task_elapsed_histogram"
	PostsCreated      = "nostodon_posts_created_count"
	PostsDeleted      = "nostodon_posts_deleted_count"
	ProfilesUpdated   = "nostodon_profiles_updated_count"
	ListenerRestarts  = "nostodon_listener_restarts_count"
	BroadcastsMissed  = "nostodon_listener_events_missed_count"
	JobsRequeuedStale = "nostodon_jobs_requeued_stale_count"
)

// Skip reasons for [EventsSkipped].
const (
	ReasonVisibility        = "visibility"
	ReasonInstanceBlacklist = "instance_blacklist"
	ReasonUserBlacklist     = "user_blacklist"
	ReasonMissingURL        = "missing_url"
)

// Metrics holds every collector on a private registry.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsSkipped    *prometheus.CounterVec
	taskCount        *prometheus.CounterVec
	taskTimeouts     *prometheus.CounterVec
	taskElapsed      *prometheus.CounterVec
	taskHistogram    *prometheus.HistogramVec
	postsCreated     prometheus.Counter
	postsDeleted     prometheus.Counter
	profilesUpdated  prometheus.Counter
	listenerRestarts *prometheus.CounterVec
	eventsMissed     *prometheus.CounterVec
	jobsRequeued     prometheus.Counter
}

// New creates and registers all collectors, including the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: EventsSkipped,
			Help: "Counter of events that have been skipped because of some rule",
		}, []string{"visibility", "reason"}),
		taskCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: TaskCount,
			Help: "Counter of tasks that have been processed",
		}, []string{"task"}),
		taskTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: TaskTimeoutCount,
			Help: "Counter of tasks that have been timed out",
		}, []string{"task"}),
		taskElapsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: TaskTimeElapsed,
			Help: "The cumulative amount of time taken to run a task",
		}, []string{"task"}),
		taskHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    TaskElapsedHisto,
			Help:    "The histogram of time in milliseconds taken by each task",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"task"}),
		postsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: PostsCreated,
			Help: "Number of posts that have been created",
		}),
		postsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: PostsDeleted,
			Help: "Number of posts that have been deleted",
		}),
		profilesUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: ProfilesUpdated,
			Help: "Number of profiles that have been mirrored",
		}),
		listenerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: ListenerRestarts,
			Help: "Number of times a source stream was reopened",
		}, []string{"source"}),
		eventsMissed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: BroadcastsMissed,
			Help: "Events dropped because a subscriber fell behind",
		}, []string{"source"}),
		jobsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: JobsRequeuedStale,
			Help: "Running jobs returned to the queue after their lease expired",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsSkipped,
		m.taskCount,
		m.taskTimeouts,
		m.taskElapsed,
		m.taskHistogram,
		m.postsCreated,
		m.postsDeleted,
		m.profilesUpdated,
		m.listenerRestarts,
		m.eventsMissed,
		m.jobsRequeued,
	)
	return m
}

// Registry exposes the registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SkipEvent counts an event rejected (or flagged) by the eligibility filter.
func (m *Metrics) SkipEvent(visibility, reason string) {
	if m == nil {
		return
	}
	m.eventsSkipped.WithLabelValues(visibility, reason).Inc()
}

// PostCreated counts a published post.
func (m *Metrics) PostCreated() {
	if m == nil {
		return
	}
	m.postsCreated.Inc()
}

// PostDeleted counts a remote deletion.
func (m *Metrics) PostDeleted() {
	if m == nil {
		return
	}
	m.postsDeleted.Inc()
}

// ProfileUpdated counts a mirrored profile change.
func (m *Metrics) ProfileUpdated() {
	if m == nil {
		return
	}
	m.profilesUpdated.Inc()
}

// ListenerRestarted counts a reconnect of source.
func (m *Metrics) ListenerRestarted(source string) {
	if m == nil {
		return
	}
	m.listenerRestarts.WithLabelValues(source).Inc()
}

// EventsMissed adds n events dropped for a slow subscriber of source.
func (m *Metrics) EventsMissed(source string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.eventsMissed.WithLabelValues(source).Add(float64(n))
}

// JobsRequeued adds n jobs returned by the lease sweeper.
func (m *Metrics) JobsRequeued(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.jobsRequeued.Add(float64(n))
}

func (m *Metrics) observe(task string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	ms := float64(elapsed.Milliseconds())
	m.taskCount.WithLabelValues(task).Inc()
	m.taskElapsed.WithLabelValues(task).Add(ms)
	m.taskHistogram.WithLabelValues(task).Observe(ms)
	if errors.Is(err, context.DeadlineExceeded) {
		m.taskTimeouts.WithLabelValues(task).Inc()
	}
}

// Measure runs fn as task, recording its count, elapsed time and whether it hit a deadline.
func Measure[T any](ctx context.Context, m *Metrics, task string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn(ctx)
	m.observe(task, time.Since(start), err)
	return v, err
}

// MeasureErr is [Measure] for operations that only return an error.
func MeasureErr(ctx context.Context, m *Metrics, task string, fn func(context.Context) error) error {
	_, err := Measure(ctx, m, task, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
