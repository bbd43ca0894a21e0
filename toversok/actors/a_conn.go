package actors

import (
	"errors"
	"io"
	"log/slog"

	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types/key"
	"github.com/edup2p/rendezvous/types/msgconn"
)

// ActiveConn is the connection to a peer that won its race.
type ActiveConn struct {
	token   reactor.Token
	context Context

	cm     *ConnectionMap
	socket *Socket

	peer key.NodePublic

	onMessage func(peer key.NodePublic, payload []byte)
	onLost    func(peer key.NodePublic)

	closed bool
}

// StartActiveConn takes over a socket handed off by a winning candidate.
//
// Messages that arrived during negotiation are delivered right away.
func StartActiveConn(
	core *Core,
	r reactor.Reactor,
	h *Handoff,
	cm *ConnectionMap,
	peer key.NodePublic,
	onMessage func(peer key.NodePublic, payload []byte),
	onLost func(peer key.NodePublic),
) *ActiveConn {
	ac := &ActiveConn{
		token:     h.Token,
		context:   core.NewContext(),
		cm:        cm,
		socket:    h.Socket,
		peer:      peer,
		onMessage: onMessage,
		onLost:    onLost,
	}

	core.InsertContext(ac.token, ac.context)
	core.InsertState(ac.context, ac)

	ac.drain(core, r)

	return ac
}

func (ac *ActiveConn) l() *slog.Logger {
	return slog.With("peer", ac.peer.Debug(), "token", ac.token)
}

func (ac *ActiveConn) Peer() key.NodePublic {
	return ac.peer
}

func (ac *ActiveConn) Token() reactor.Token {
	return ac.token
}

func (ac *ActiveConn) Closed() bool {
	return ac.closed
}

func (ac *ActiveConn) Ready(core *Core, r reactor.Reactor, _ reactor.Token, events reactor.EventSet) {
	if ac.closed {
		return
	}

	// Data that arrived before a hangup is still delivered.
	if events.IsReadable() || events.IsHup() {
		ac.drain(core, r)
		if ac.closed {
			return
		}
	}

	if events.IsError() || events.IsHup() {
		ac.l().Debug("connection failed", "events", events)
		ac.lose(core, r)
		return
	}

	if events.IsWritable() {
		if _, err := ac.socket.Write(r, ac.token, nil); err != nil {
			ac.l().Debug("flush failed", "err", err)
			ac.lose(core, r)
		}
	}
}

func (ac *ActiveConn) drain(core *Core, r reactor.Reactor) {
	for !ac.closed {
		m, err := ac.socket.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				ac.l().Debug("read failed", "err", err)
			}
			ac.lose(core, r)
			return
		}
		if m == nil {
			return
		}

		if m.Data == nil {
			ac.l().Warn("ignoring non-data message on active connection", "msg", m.String())
			continue
		}

		if ac.onMessage != nil {
			ac.onMessage(ac.peer, m.Data.Payload)
		}
	}
}

// Send queues a payload for the peer.
func (ac *ActiveConn) Send(core *Core, r reactor.Reactor, payload []byte) error {
	if ac.closed {
		return io.ErrClosedPipe
	}

	if _, err := ac.socket.Write(r, ac.token, msgconn.NewData(payload)); err != nil {
		ac.l().Debug("write failed", "err", err)
		ac.lose(core, r)
		return err
	}
	return nil
}

func (ac *ActiveConn) lose(core *Core, r reactor.Reactor) {
	if ac.teardown(core, r) && ac.onLost != nil {
		ac.onLost(ac.peer)
	}
}

// Terminate closes the connection without reporting it as lost.
func (ac *ActiveConn) Terminate(core *Core, r reactor.Reactor) {
	ac.teardown(core, r)
}

func (ac *ActiveConn) teardown(core *Core, r reactor.Reactor) bool {
	if ac.closed {
		return false
	}
	ac.closed = true

	core.RemoveContext(ac.token)
	core.RemoveState(ac.context)

	if err := ac.socket.Deregister(r); err != nil {
		ac.l().Debug("could not deregister socket", "err", err)
	}
	if err := ac.socket.Close(); err != nil {
		ac.l().Debug("could not close socket", "err", err)
	}

	ac.cm.ClearActive(ac.peer, ac.token)

	return true
}
