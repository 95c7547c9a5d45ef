package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nostodon/internal/shared"
	"github.com/lib/pq"
)

// Channel is the Postgres notification channel fired by the scheduled_posts trigger.
const Channel = "scheduled_posts_status_channel"

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// Notifier signals that a job may have become claimable. A signal carries no payload; receivers
// always claim through the queue.
type Notifier interface {
	Notifications() <-chan struct{}
	Close() error
}

// NewNotifier returns a [PQNotifier] for Postgres databases. SQLite has no notification
// mechanism, so it returns nil and subscribers poll.
func NewNotifier(db *shared.Database, logger *log.Logger) (Notifier, error) {
	if db.Dialect() != shared.DialectPostgres {
		return nil, nil
	}
	n, err := NewPQNotifier(db.DSN(), logger)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// PQNotifier listens on [Channel] with a [pq.Listener].
type PQNotifier struct {
	listener *pq.Listener
	signals  chan struct{}
	logger   *log.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// NewPQNotifier connects a dedicated listener connection for dsn and subscribes to [Channel].
func NewPQNotifier(dsn string, logger *log.Logger) (*PQNotifier, error) {
	listener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			logger.Warn("notification listener connection lost", "error", err)
		case pq.ListenerEventReconnected:
			logger.Info("notification listener reconnected")
		}
	})

	if err := listener.Listen(Channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &PQNotifier{
		listener: listener,
		signals:  make(chan struct{}, 1),
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go n.run(ctx)
	return n, nil
}

// Notifications returns the signal channel. It is closed by [PQNotifier.Close].
func (n *PQNotifier) Notifications() <-chan struct{} {
	return n.signals
}

func (n *PQNotifier) run(ctx context.Context) {
	defer close(n.done)
	defer close(n.signals)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case notification := <-n.listener.Notify:
			// A nil notification follows a reconnect; anything may have been missed so wake anyway.
			if notification != nil {
				n.logger.Debug("job notification", "id", notification.Extra)
			}
			n.signal()
		case <-ticker.C:
			if err := n.listener.Ping(); err != nil {
				n.logger.Warn("notification listener ping failed", "error", err)
			}
		}
	}
}

func (n *PQNotifier) signal() {
	select {
	case n.signals <- struct{}{}:
	default:
	}
}

// Close stops the listener and releases its connection.
func (n *PQNotifier) Close() error {
	var err error
	n.once.Do(func() {
		n.cancel()
		<-n.done
		err = n.listener.Close()
	})
	return err
}
