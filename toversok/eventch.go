package toversok

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// OverflowPolicy decides what Emit does when the channel is full.
type OverflowPolicy uint8

const (
	// OverflowBlock makes the producer wait for room.
	OverflowBlock OverflowPolicy = iota
	// OverflowDropOldest discards the oldest queued event to make room, counting it in Dropped.
	OverflowDropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowBlock:
		return "block"
	case OverflowDropOldest:
		return "drop-oldest"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", uint8(p))
	}
}

// EventChannel is an ordered, bounded queue of events from a Service to its owner.
//
// Events are delivered in the order they were emitted, across all producers.
type EventChannel struct {
	ch     chan Event
	policy OverflowPolicy

	mu     sync.Mutex
	closed bool

	done      chan struct{}
	closeOnce sync.Once

	dropped atomic.Uint64
}

func NewEventChannel(length int, policy OverflowPolicy) *EventChannel {
	if length < 1 {
		length = 1
	}

	return &EventChannel{
		ch:     make(chan Event, length),
		policy: policy,
		done:   make(chan struct{}),
	}
}

// C is where the owner receives events; it is closed by Close.
func (ec *EventChannel) C() <-chan Event {
	return ec.ch
}

// Dropped returns how many events were discarded under OverflowDropOldest.
func (ec *EventChannel) Dropped() uint64 {
	return ec.dropped.Load()
}

// Emit queues ev, returning false if it was not queued because the channel is closed.
//
// Events that are never delivered, whether rejected or evicted, have their resources released.
func (ec *EventChannel) Emit(ev Event) bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.closed {
		slog.Debug("dropping event emitted after close", "event", ev.EventName())
		releaseEvent(ev)
		return false
	}

	switch ec.policy {
	case OverflowDropOldest:
		for {
			select {
			case ec.ch <- ev:
				return true
			default:
			}

			select {
			case old := <-ec.ch:
				ec.dropped.Add(1)
				slog.Warn("event channel full, dropped oldest event", "dropped", old.EventName(), "total", ec.dropped.Load())
				releaseEvent(old)
			default:
			}
		}
	default:
		select {
		case ec.ch <- ev:
			return true
		case <-ec.done:
			slog.Debug("event channel closed while waiting for room", "event", ev.EventName())
			releaseEvent(ev)
			return false
		}
	}
}

// Close releases blocked producers and closes C. Events already queued stay readable.
func (ec *EventChannel) Close() {
	ec.closeOnce.Do(func() {
		close(ec.done)

		ec.mu.Lock()
		defer ec.mu.Unlock()

		ec.closed = true
		close(ec.ch)
	})
}
