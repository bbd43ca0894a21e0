package actors

import (
	"context"
	"log/slog"

	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types"
)

// Context identifies a state machine within one Core.
type Context uint64

// State is a state machine driven by reactor readiness; either a *ConnectionCandidate or an *ActiveConn.
type State interface {
	isState()
}

func (*ConnectionCandidate) isState() {}
func (*ActiveConn) isState()          {}

// Core holds the state machines of one loop, keyed by the token of the socket they own.
//
// It is only touched from its loop's goroutine.
type Core struct {
	nextContext Context

	contexts map[reactor.Token]Context
	states   map[Context]State
}

func NewCore() *Core {
	return &Core{
		contexts: make(map[reactor.Token]Context),
		states:   make(map[Context]State),
	}
}

func (c *Core) NewContext() Context {
	c.nextContext++
	return c.nextContext
}

// InsertContext maps token to context, returning the previous mapping if there was one.
func (c *Core) InsertContext(token reactor.Token, cx Context) (Context, bool) {
	prev, ok := c.contexts[token]
	c.contexts[token] = cx
	return prev, ok
}

func (c *Core) RemoveContext(token reactor.Token) (Context, bool) {
	cx, ok := c.contexts[token]
	delete(c.contexts, token)
	return cx, ok
}

func (c *Core) InsertState(cx Context, state State) {
	c.states[cx] = state
}

func (c *Core) RemoveState(cx Context) (State, bool) {
	state, ok := c.states[cx]
	delete(c.states, cx)
	return state, ok
}

// StateOf looks up the state machine registered under token.
func (c *Core) StateOf(token reactor.Token) (State, bool) {
	cx, ok := c.contexts[token]
	if !ok {
		return nil, false
	}
	state, ok := c.states[cx]
	return state, ok
}

func (c *Core) Len() int {
	return len(c.states)
}

// Ready hands a readiness event to the state machine owning token.
func (c *Core) Ready(r reactor.Reactor, token reactor.Token, events reactor.EventSet) {
	state, ok := c.StateOf(token)
	if !ok {
		slog.Log(context.Background(), types.LevelTrace, "readiness for unknown token", "token", token, "events", events)
		return
	}

	switch s := state.(type) {
	case *ConnectionCandidate:
		s.Ready(c, r, token, events)
	case *ActiveConn:
		s.Ready(c, r, token, events)
	}
}

// Terminate tears down a single state machine.
func (c *Core) Terminate(r reactor.Reactor, state State) {
	switch s := state.(type) {
	case *ConnectionCandidate:
		s.Terminate(c, r)
	case *ActiveConn:
		s.Terminate(c, r)
	}
}

// TerminateAll tears down every state machine, used when a loop shuts down.
func (c *Core) TerminateAll(r reactor.Reactor) {
	states := make([]State, 0, len(c.states))
	for _, s := range c.states {
		states = append(states, s)
	}

	for _, s := range states {
		c.Terminate(r, s)
	}
}
