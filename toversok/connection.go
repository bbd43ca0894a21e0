package toversok

import (
	"errors"

	"github.com/edup2p/rendezvous/toversok/actors"
	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types/key"
)

var ErrConnectionClosed = errors.New("connection is closed")

// Connection is the single active connection to a peer.
type Connection struct {
	svc  *Service
	loop *actors.Loop

	peer  key.NodePublic
	token reactor.Token

	// only touched on loop
	ac *actors.ActiveConn
}

func (c *Connection) Peer() key.NodePublic {
	return c.peer
}

// run executes fn on the connection's loop and waits for its result.
func (c *Connection) run(fn func(core *actors.Core, r reactor.Reactor) error) error {
	res := make(chan error, 1)

	if !c.loop.Dispatch(func(core *actors.Core, r reactor.Reactor) {
		res <- fn(core, r)
	}) {
		return ErrServiceClosed
	}

	select {
	case err := <-res:
		return err
	case <-c.loop.Done():
		select {
		case err := <-res:
			return err
		default:
			return ErrServiceClosed
		}
	}
}

// Send queues payload for the peer. It returns once the payload is written or buffered.
func (c *Connection) Send(payload []byte) error {
	return c.run(func(core *actors.Core, r reactor.Reactor) error {
		if c.ac == nil || c.ac.Closed() {
			return ErrConnectionClosed
		}
		return c.ac.Send(core, r, payload)
	})
}

// Close closes the connection. This is not reported as a LostConnection.
func (c *Connection) Close() error {
	c.svc.forget(c)

	return c.run(func(core *actors.Core, r reactor.Reactor) error {
		if c.ac == nil || c.ac.Closed() {
			return ErrConnectionClosed
		}
		c.ac.Terminate(core, r)
		return nil
	})
}
