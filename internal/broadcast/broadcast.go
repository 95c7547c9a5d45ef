// package broadcast fans values from one producer out to every subscriber.
//
// Each [Receiver] owns a bounded buffer. When a buffer is full the oldest value is dropped and the
// receiver's missed counter grows, so a slow subscriber never blocks the producer. Sending with no
// subscribers drops the value.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by [Receiver.Recv] once the receiver or its broadcaster is closed and the
// buffer is drained.
var ErrClosed = errors.New("broadcast closed")

// Broadcaster delivers every sent value to all current receivers.
type Broadcaster[T any] struct {
	mu          sync.Mutex
	capacity    int
	subscribers map[*Receiver[T]]struct{}
	closed      bool
}

// New creates a [Broadcaster] whose receivers buffer up to capacity values. Capacity below 1 is raised to 1.
func New[T any](capacity int) *Broadcaster[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcaster[T]{
		capacity:    capacity,
		subscribers: make(map[*Receiver[T]]struct{}),
	}
}

// Subscribe registers a new receiver. It only sees values sent after it subscribed.
// Subscribing to a closed broadcaster returns a closed receiver.
func (b *Broadcaster[T]) Subscribe() *Receiver[T] {
	r := &Receiver[T]{b: b, ch: make(chan T, b.capacity)}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(r.ch)
		return r
	}
	b.subscribers[r] = struct{}{}
	return r
}

// Send delivers v to every receiver and returns how many there were.
func (b *Broadcaster[T]) Send(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}

	for r := range b.subscribers {
		r.push(v)
	}
	return len(b.subscribers)
}

// Len reports the number of active receivers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close closes every receiver. Buffered values can still be read. Sends after Close are dropped.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for r := range b.subscribers {
		delete(b.subscribers, r)
		close(r.ch)
	}
}

func (b *Broadcaster[T]) remove(r *Receiver[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[r]; !ok {
		return
	}
	delete(b.subscribers, r)
	close(r.ch)
}

// Receiver is one subscription to a [Broadcaster].
type Receiver[T any] struct {
	b      *Broadcaster[T]
	ch     chan T
	missed atomic.Uint64
}

// push is only called with the broadcaster lock held, so it is the sole writer to ch.
func (r *Receiver[T]) push(v T) {
	for {
		select {
		case r.ch <- v:
			return
		default:
		}

		select {
		case <-r.ch:
			r.missed.Add(1)
		default:
		}
	}
}

// C exposes the receive channel for use in select statements. It is closed with the receiver.
func (r *Receiver[T]) C() <-chan T {
	return r.ch
}

// Recv waits for the next value.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-r.ch:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Missed reports how many values were dropped because this receiver fell behind.
func (r *Receiver[T]) Missed() uint64 {
	return r.missed.Load()
}

// Close unsubscribes the receiver.
func (r *Receiver[T]) Close() {
	r.b.remove(r)
}
