package actors

import (
	"context"
	"sync"

	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types"
)

// Command runs on a loop's goroutine, with exclusive access to its Core.
type Command func(core *Core, r reactor.Reactor)

// Loop is one reactor instance: a goroutine that waits on a poller and drives the state
// machines in its Core. Everything else reaches the Core through Dispatch.
type Loop struct {
	*ActorCommon[Command]

	poller reactor.Poller
	core   *Core
	events []reactor.Event

	mu      sync.Mutex
	pending []Command
	closed  bool

	done chan struct{}
}

func NewLoop(ctx context.Context, poller reactor.Poller) *Loop {
	return &Loop{
		// Commands are queued in pending, paired with a poller wakeup.
		ActorCommon: MakeCommon[Command](ctx, -1),

		poller: poller,
		core:   NewCore(),
		events: make([]reactor.Event, LoopEventsLen),
		done:   make(chan struct{}),
	}
}

// Dispatch queues cmd to run on the loop. It returns false if the loop has shut down,
// in which case cmd will never run.
func (l *Loop) Dispatch(cmd Command) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, cmd)
	l.mu.Unlock()

	if err := l.poller.Wake(); err != nil {
		L(l).Debug("could not wake poller", "err", err)
	}
	return true
}

// Done is closed once the loop has shut down and terminated all its state machines.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) takePending() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()

	cmds := l.pending
	l.pending = nil
	return cmds
}

func (l *Loop) runPending() {
	for _, cmd := range l.takePending() {
		cmd(l.core, l.poller)
	}
}

func (l *Loop) Run() {
	defer func() {
		if v := recover(); v != nil {
			L(l).Error("panicked", "panic", v)
			l.Cancel()
			l.Close()
		}
	}()

	if !l.running.CheckOrMark() {
		L(l).Warn("tried to run agent, while already running")
		return
	}

	for {
		if types.IsContextDone(l.ctx) {
			l.Close()
			return
		}

		l.runPending()

		n, err := l.poller.Wait(l.events, LoopPollTimeout)
		if err != nil {
			L(l).Error("poller failed", "err", err)
			l.Cancel()
			continue
		}

		for _, ev := range l.events[:n] {
			l.core.Ready(l.poller, ev.Token, ev.Events)
		}
	}
}

// Close runs what is still queued, terminates every state machine, and closes the poller.
//
// It is called by Run, on the loop's goroutine.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	cmds := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, cmd := range cmds {
		cmd(l.core, l.poller)
	}

	l.core.TerminateAll(l.poller)

	if err := l.poller.Close(); err != nil {
		L(l).Warn("could not close poller", "err", err)
	}

	close(l.done)
}
