package toversok

import (
	"context"
	"log/slog"
	"sync"
)

// outbox queues events from loops without ever blocking them, and forwards them in order
// to the EventChannel from its own goroutine, which is the only one waiting for room there.
type outbox struct {
	events *EventChannel

	mu     sync.Mutex
	queue  []Event
	closed bool

	signal chan struct{}
}

func newOutbox(events *EventChannel) *outbox {
	return &outbox{
		events: events,
		signal: make(chan struct{}, 1),
	}
}

func (o *outbox) push(ev Event) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		slog.Debug("dropping event pushed after close", "event", ev.EventName())
		releaseEvent(ev)
		return
	}
	o.queue = append(o.queue, ev)
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *outbox) take() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	q := o.queue
	o.queue = nil
	return q
}

// run forwards events until ctx is done, after which anything left is released.
func (o *outbox) run(ctx context.Context) {
	for {
		select {
		case <-o.signal:
		case <-ctx.Done():
			o.close()
			return
		}

		// Emit releases what it rejects
		for _, ev := range o.take() {
			o.events.Emit(ev)
		}
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	q := o.queue
	o.queue = nil
	o.mu.Unlock()

	for _, ev := range q {
		releaseEvent(ev)
	}
}
