package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nostodon/internal/broadcast"
	"github.com/desertthunder/nostodon/internal/metrics"
	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/services"
	"github.com/desertthunder/nostodon/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultBackoff = 250 * time.Millisecond
	defaultBuffer  = 128
	errorBuffer    = 8
)

// ListenerOptions configures a [Listener].
type ListenerOptions struct {
	// Backoff is the fixed wait between a stream ending and the next attempt.
	Backoff time.Duration
	// Buffer is the per-subscriber event buffer.
	Buffer int
	// MaxRestartsPerMinute caps reconnect attempts. Zero or less means no cap.
	MaxRestartsPerMinute int
	Logger               *log.Logger
	Metrics              *metrics.Metrics
}

// Listener keeps one source stream open and fans its events out to subscribers.
//
// The stream is supervised: it is reopened after every failure until the context passed to the
// first [Listener.Subscribe] call ends. Revoked credentials are reported on [Listener.Errors]
// and the listener keeps retrying at the restart limiter's pace.
type Listener struct {
	source      services.Source
	backoff     time.Duration
	limiter     *rate.Limiter
	broadcaster *broadcast.Broadcaster[models.Event]
	errs        chan error
	logger      *log.Logger
	metrics     *metrics.Metrics

	once sync.Once
	done chan struct{}

	mu     sync.RWMutex
	health Health
}

// NewListener creates a listener for source. No connection is made until the first subscriber.
func NewListener(source services.Source, opts ListenerOptions) *Listener {
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = defaultLogger
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.MaxRestartsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.MaxRestartsPerMinute)/60), opts.MaxRestartsPerMinute)
	}

	return &Listener{
		source:      source,
		backoff:     opts.Backoff,
		limiter:     limiter,
		broadcaster: broadcast.New[models.Event](opts.Buffer),
		errs:        make(chan error, errorBuffer),
		logger:      shared.WithLogger(opts.Logger, "source", source.Name()),
		metrics:     opts.Metrics,
		done:        make(chan struct{}),
		health:      Health{Source: source.Name(), State: StateIdle},
	}
}

// Name returns the source name.
func (l *Listener) Name() string {
	return l.source.Name()
}

// Subscribe returns a receiver for every event decoded from now on and starts the supervisor on
// first use. The supervisor stops, and all receivers close, when ctx of that first call ends.
func (l *Listener) Subscribe(ctx context.Context) *broadcast.Receiver[models.Event] {
	rx := l.broadcaster.Subscribe()
	l.once.Do(func() {
		go l.supervise(ctx)
	})
	return rx
}

// Errors delivers persistent failures that need an operator, such as revoked credentials.
// Errors are dropped when nobody reads them.
func (l *Listener) Errors() <-chan error {
	return l.errs
}

// Done is closed once the supervisor has stopped.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Health returns a snapshot of the supervisor state.
func (l *Listener) Health() Health {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.health
}

func (l *Listener) supervise(ctx context.Context) {
	defer close(l.done)
	defer l.broadcaster.Close()
	defer l.setState(StateStopped, nil)

	for {
		if err := l.limiter.Wait(ctx); err != nil {
			return
		}

		l.setState(StateConnecting, nil)
		err := l.stream(ctx)
		if ctx.Err() != nil {
			return
		}

		l.restarted()

		if errors.Is(err, shared.ErrRevokedCredentials) {
			l.setState(StateFailed, err)
			l.logger.Error("source rejected credentials", "error", err)
			l.report(err)
		} else {
			l.setState(StateBackoff, err)
			l.logger.Warn("stream ended, reconnecting", "error", err, "backoff", l.backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.backoff):
		}
	}
}

// stream runs one connection until it fails.
func (l *Listener) stream(ctx context.Context) error {
	stream, err := l.source.Stream(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	l.setState(StateStreaming, nil)
	l.logger.Info("streaming")

	for {
		event, err := stream.Next(ctx)
		if errors.Is(err, shared.ErrInvalidEvent) {
			l.logger.Debug("skipping malformed message", "error", err)
			continue
		}
		if err != nil {
			return err
		}

		l.mu.Lock()
		l.health.LastEvent = time.Now()
		l.mu.Unlock()

		l.broadcaster.Send(event)
	}
}

// report sends err to [Listener.Errors] without blocking.
func (l *Listener) report(err error) {
	select {
	case l.errs <- err:
	default:
	}
}

func (l *Listener) restarted() {
	l.mu.Lock()
	l.health.Restarts++
	l.mu.Unlock()
	l.metrics.ListenerRestarted(l.source.Name())
}

// setState records the new state. A nil err keeps the previous error for failed and backoff
// states' history but clears it once streaming.
func (l *Listener) setState(state State, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.health.State = state
	switch {
	case err != nil:
		l.health.LastError = err.Error()
	case state == StateStreaming:
		l.health.LastError = ""
	}
}
