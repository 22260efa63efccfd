package broker

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Put after the broker has been closed. Producers
// must treat it as a stop signal.
var ErrClosed = errors.New("broker: closed")

// queueCapacity bounds the event queue. Producers block when it fills.
const queueCapacity = 1024

// Broker is a bounded multi-producer, single-consumer event queue for one
// request. Events are delivered in enqueue order. Close is idempotent;
// every event enqueued before Close is still delivered.
type Broker struct {
	uid       string
	sessionID string

	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a broker for one request. UID and session id are stamped
// onto every event payload.
func New(uid, sessionID string) *Broker {
	return &Broker{
		uid:       uid,
		sessionID: sessionID,
		ch:        make(chan Event, queueCapacity),
		done:      make(chan struct{}),
	}
}

// Put enqueues an event, blocking under backpressure. Returns ErrClosed
// after Close, or the context error on cancellation.
func (b *Broker) Put(ctx context.Context, ev Event) error {
	ev.Data.UID = b.uid
	ev.Data.SessionID = b.sessionID

	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	select {
	case b.ch <- ev:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PutStatus is shorthand for enqueueing a status event.
func (b *Broker) PutStatus(ctx context.Context, agent, content string) error {
	return b.Put(ctx, StatusEvent(agent, content))
}

// Close signals end of stream. Idempotent. Events already enqueued are
// still delivered before the consumer channel terminates.
func (b *Broker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Events returns the consumer channel. It yields events in enqueue order
// and is closed once the broker is closed and the queue drained. Only one
// consumer may drain a broker, and it must keep receiving until the
// channel closes: abandoning the channel mid-stream strands the
// forwarding goroutine on its next send.
func (b *Broker) Events() <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case ev := <-b.ch:
				out <- ev
			case <-b.done:
				// Drain whatever was enqueued before close.
				for {
					select {
					case ev := <-b.ch:
						out <- ev
					default:
						return
					}
				}
			}
		}
	}()
	return out
}
