package actors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types"
	"github.com/edup2p/rendezvous/types/key"
	"github.com/edup2p/rendezvous/types/msgconn"
)

var ErrSelfConnection = errors.New("refusing to race a connection to ourselves")

type CandidateState uint8

const (
	Negotiating CandidateState = iota
	Done
	Terminated
)

func (s CandidateState) String() string {
	switch s {
	case Negotiating:
		return "negotiating"
	case Done:
		return "done"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("CandidateState(%d)", uint8(s))
	}
}

// Handoff is what a winning candidate passes on: its socket, still registered under Token.
type Handoff struct {
	Socket *Socket
	Token  reactor.Token
}

// Finish is called exactly once per candidate, with a nil handoff when the candidate failed.
type Finish func(core *Core, r reactor.Reactor, cx Context, h *Handoff)

// ConnectionCandidate negotiates whether its socket becomes the connection to a peer.
//
// The peer with the greater identity writes a ChooseConnection marker, the other side
// reads it. Whichever candidate first gets the marker across, while no other connection
// to that peer is active, wins.
type ConnectionCandidate struct {
	token   reactor.Token
	context Context

	cm     *ConnectionMap
	socket *Socket

	theirID key.NodePublic

	// msg is the marker still to be written, taken on the first writable event.
	msg *msgconn.Message

	finish Finish
	state  CandidateState
}

// StartCandidate registers sock with r under token and starts negotiating over it.
func StartCandidate(
	core *Core,
	r reactor.Reactor,
	token reactor.Token,
	sock *Socket,
	cm *ConnectionMap,
	ourID, theirID key.NodePublic,
	finish Finish,
) (Context, error) {
	if ourID == theirID {
		return 0, ErrSelfConnection
	}

	interest := reactor.Readable | reactor.Error | reactor.Hup
	if ourID.Compare(theirID) > 0 {
		interest = reactor.Writable | reactor.Error | reactor.Hup
	}

	if err := sock.Reregister(r, token, interest); err != nil {
		return 0, fmt.Errorf("could not register candidate socket: %w", err)
	}

	cm.BeginHandshake(theirID)

	cx := core.NewContext()
	cc := &ConnectionCandidate{
		token:   token,
		context: cx,
		cm:      cm,
		socket:  sock,
		theirID: theirID,
		msg:     msgconn.NewChooseConnection(),
		finish:  finish,
		state:   Negotiating,
	}

	if prev, ok := core.InsertContext(token, cx); ok {
		slog.Warn("candidate token was still in use", "token", token, "prev-context", prev)
	}
	core.InsertState(cx, cc)

	cc.l().Log(context.Background(), types.LevelTrace, "started", "interest", interest)

	return cx, nil
}

func (cc *ConnectionCandidate) l() *slog.Logger {
	return slog.With("peer", cc.theirID.Debug(), "token", cc.token, "state", cc.state.String())
}

func (cc *ConnectionCandidate) State() CandidateState {
	return cc.state
}

func (cc *ConnectionCandidate) Context() Context {
	return cc.context
}

// Ready handles one readiness event for the candidate's socket.
func (cc *ConnectionCandidate) Ready(core *Core, r reactor.Reactor, _ reactor.Token, events reactor.EventSet) {
	if cc.state != Negotiating {
		return
	}

	if events.IsError() || events.IsHup() {
		cc.l().Debug("socket failed during negotiation", "events", events)
		cc.handleError(core, r)
		return
	}

	if events.IsReadable() {
		cc.read(core, r)
	}

	if events.IsWritable() && cc.state == Negotiating {
		msg := cc.msg
		cc.msg = nil
		cc.write(core, r, msg)
	}
}

func (cc *ConnectionCandidate) read(core *Core, r reactor.Reactor) {
	m, err := cc.socket.Read()

	switch {
	case err != nil:
		cc.l().Debug("read failed", "err", err)
		cc.handleError(core, r)
	case m == nil:
	case m.IsChooseConnection():
		if cc.cm.HasActive(cc.theirID) {
			cc.l().Debug("peer chose a connection after another one won, dropping candidate")
			cc.handleError(core, r)
			return
		}
		cc.done(core, r)
	default:
		cc.l().Warn("unexpected message during negotiation", "msg", m.String())
		cc.handleError(core, r)
	}
}

func (cc *ConnectionCandidate) write(core *Core, r reactor.Reactor, msg *msgconn.Message) {
	if cc.cm.HasActive(cc.theirID) {
		cc.l().Debug("peer already has an active connection, dropping candidate")
		cc.handleError(core, r)
		return
	}

	flushed, err := cc.socket.Write(r, cc.token, msg)
	switch {
	case err != nil:
		cc.l().Debug("write failed", "err", err)
		cc.handleError(core, r)
	case flushed:
		cc.done(core, r)
	}
}

func (cc *ConnectionCandidate) done(core *Core, r reactor.Reactor) {
	core.RemoveContext(cc.token)
	core.RemoveState(cc.context)

	cc.cm.EndHandshake(cc.theirID)

	sock := cc.socket
	cc.socket = nil

	cc.transition(Done)

	finish := cc.finish
	cc.finish = nil
	finish(core, r, cc.context, &Handoff{Socket: sock, Token: cc.token})
}

func (cc *ConnectionCandidate) handleError(core *Core, r reactor.Reactor) {
	cc.Terminate(core, r)
}

// Terminate tears the candidate down and reports failure to its finish callback.
//
// It is safe to call more than once, and after the candidate is done.
func (cc *ConnectionCandidate) Terminate(core *Core, r reactor.Reactor) {
	if cc.state != Negotiating {
		return
	}

	core.RemoveContext(cc.token)
	core.RemoveState(cc.context)

	if sock := cc.socket; sock != nil {
		cc.socket = nil

		if err := sock.Deregister(r); err != nil {
			cc.l().Debug("could not deregister socket", "err", err)
		}
		if err := sock.Close(); err != nil {
			cc.l().Debug("could not close socket", "err", err)
		}
	}

	cc.cm.EndHandshake(cc.theirID)

	cc.transition(Terminated)

	if finish := cc.finish; finish != nil {
		cc.finish = nil
		finish(core, r, cc.context, nil)
	}
}

func (cc *ConnectionCandidate) transition(to CandidateState) {
	cc.l().Log(context.Background(), types.LevelTrace, "transitioning state", "to-state", to.String())
	cc.state = to
}
