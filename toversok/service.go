// Package toversok races raw connections to peers, keeps exactly one per peer, and reports
// what happens to them on an EventChannel.
package toversok

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/edup2p/rendezvous/toversok/actors"
	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types"
	"github.com/edup2p/rendezvous/types/contact"
	"github.com/edup2p/rendezvous/types/key"
	"golang.org/x/sync/errgroup"
)

var (
	ErrServiceClosed = errors.New("service is closed")
	ErrNoConnection  = errors.New("could not establish a connection to peer")
	ErrUnknownPeer   = errors.New("no active connection to peer")
)

type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	priv key.NodePrivate
	pub  key.NodePublic

	opts ServiceOptions

	cm     *actors.ConnectionMap
	events *EventChannel
	out    *outbox

	loops []*actors.Loop
	eman  *actors.EndpointManager
	eg    *errgroup.Group

	nextToken atomic.Uint32
	nextLoop  atomic.Uint32

	connMu sync.Mutex
	conns  map[key.NodePublic]*Connection

	extMu    sync.Mutex
	external []contact.Endpoint

	bootstrapOnce sync.Once
	closeOnce     sync.Once
}

func NewService(opts ServiceOptions) (*Service, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	priv := opts.PrivKey

	ctx, cancel := context.WithCancel(opts.Ctx)

	s := &Service{
		ctx:    ctx,
		cancel: cancel,
		priv:   priv,
		pub:    priv.Public(),
		opts:   opts,
		cm:     actors.NewConnectionMap(),
		events: NewEventChannel(opts.EventChannelLength, opts.Overflow),
		conns:  make(map[key.NodePublic]*Connection),
	}
	s.out = newOutbox(s.events)

	for i := 0; i < opts.Reactors; i++ {
		p, err := reactor.NewPoller()
		if err != nil {
			for _, l := range s.loops {
				l.Close()
			}
			cancel()
			return nil, fmt.Errorf("could not create poller: %w", err)
		}
		s.loops = append(s.loops, actors.NewLoop(ctx, p))
	}

	s.eman = actors.NewEndpointManager(ctx, actors.EndpointManagerConfig{
		PubKey:          s.pub,
		Bind:            opts.UDPBind,
		StaticEndpoints: opts.StaticEndpoints,
		StunServers:     opts.StunServers,
		StunTimeout:     opts.StunTimeout,
		OnResult: func(res contact.ContactInfoResult) {
			s.out.push(ContactInfoPrepared{Result: res})
		},
		OnEndpoints: func(mapped []contact.Endpoint) {
			s.SetExternalEndpoints(append(slices.Clone(opts.StaticEndpoints), mapped...))
		},
	})

	s.eg, _ = errgroup.WithContext(ctx)
	for _, l := range s.loops {
		l := l
		s.eg.Go(func() error {
			l.Run()
			return nil
		})
	}
	s.eg.Go(func() error {
		s.eman.Run()
		return nil
	})
	s.eg.Go(func() error {
		s.out.run(ctx)
		return nil
	})

	slog.Info("service started", "pub", s.pub.Debug(), "reactors", opts.Reactors)

	return s, nil
}

func (s *Service) PublicKey() key.NodePublic {
	return s.pub
}

func (s *Service) Events() *EventChannel {
	return s.events
}

// HandOffBootstrap starts racing raw as a bootstrap connection to their.
func (s *Service) HandOffBootstrap(raw actors.RawConn, their key.NodePublic) error {
	return s.handOff(raw, their, true)
}

// HandOffRendezvous starts racing raw as a rendezvous connection to their.
func (s *Service) HandOffRendezvous(raw actors.RawConn, their key.NodePublic) error {
	return s.handOff(raw, their, false)
}

func (s *Service) pickLoop() *actors.Loop {
	return s.loops[int(s.nextLoop.Add(1)-1)%len(s.loops)]
}

func (s *Service) handOff(raw actors.RawConn, their key.NodePublic, bootstrap bool) error {
	if their == s.pub {
		_ = raw.Close()
		return actors.ErrSelfConnection
	}

	token := reactor.Token(s.nextToken.Add(1))
	loop := s.pickLoop()
	sock := actors.NewSocket(raw)

	if !loop.Dispatch(func(core *actors.Core, r reactor.Reactor) {
		if _, err := actors.StartCandidate(core, r, token, sock, s.cm, s.pub, their, s.finish(loop, their, bootstrap)); err != nil {
			slog.Warn("could not start candidate", "peer", their.Debug(), "err", err)
			_ = sock.Deregister(r)
			_ = sock.Close()
			s.candidateFailed(their, bootstrap)
		}
	}) {
		_ = raw.Close()
		return ErrServiceClosed
	}

	return nil
}

func (s *Service) finish(loop *actors.Loop, their key.NodePublic, bootstrap bool) actors.Finish {
	return func(core *actors.Core, r reactor.Reactor, _ actors.Context, h *actors.Handoff) {
		if h == nil {
			s.candidateFailed(their, bootstrap)
			return
		}

		if !s.cm.SetActive(their, h.Token) {
			slog.Debug("another connection won the race", "peer", their.Debug(), "token", h.Token)
			_ = h.Socket.Deregister(r)
			_ = h.Socket.Close()
			s.candidateFailed(their, bootstrap)
			return
		}

		conn := &Connection{
			svc:   s,
			loop:  loop,
			peer:  their,
			token: h.Token,
		}

		s.connMu.Lock()
		s.conns[their] = conn
		s.connMu.Unlock()

		slog.Info("connection established", "peer", their.Debug(), "bootstrap", bootstrap)

		if bootstrap {
			s.out.push(NewBootstrapConnection{Connection: conn, TheirPubKey: their})
		} else {
			s.out.push(NewConnection{Connection: conn, TheirPubKey: their})
		}

		conn.ac = actors.StartActiveConn(core, r, h, s.cm, their,
			func(peer key.NodePublic, payload []byte) {
				s.out.push(NewMessage{Peer: peer, Payload: payload})
			},
			func(peer key.NodePublic) {
				s.forget(conn)
				slog.Info("connection lost", "peer", peer.Debug())
				s.out.push(LostConnection{Peer: peer})
			},
		)
	}
}

func (s *Service) candidateFailed(their key.NodePublic, bootstrap bool) {
	if bootstrap || s.cm.Exists(their) {
		return
	}

	s.out.push(NewConnection{Err: ErrNoConnection, TheirPubKey: their})
}

func (s *Service) forget(c *Connection) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conns[c.peer] == c {
		delete(s.conns, c.peer)
	}
}

func (s *Service) Connection(peer key.NodePublic) (*Connection, bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	c, ok := s.conns[peer]
	return c, ok
}

func (s *Service) Peers() []key.NodePublic {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	peers := make([]key.NodePublic, 0, len(s.conns))
	for p := range s.conns {
		peers = append(peers, p)
	}
	return peers
}

func (s *Service) Send(peer key.NodePublic, payload []byte) error {
	c, ok := s.Connection(peer)
	if !ok {
		return ErrUnknownPeer
	}
	return c.Send(payload)
}

func (s *Service) Disconnect(peer key.NodePublic) error {
	c, ok := s.Connection(peer)
	if !ok {
		return ErrUnknownPeer
	}
	return c.Close()
}

// PrepareContactInfo asynchronously prepares our contact info, the result is emitted as
// ContactInfoPrepared carrying the same token.
func (s *Service) PrepareContactInfo(token uint32) {
	if err := s.eman.Prepare(token); err != nil {
		s.out.push(ContactInfoPrepared{Result: contact.ContactInfoResult{ResultToken: token, Err: err}})
	}
}

// SetExternalEndpoints records the endpoints we are reachable on, emitting ExternalEndpoints if they changed.
func (s *Service) SetExternalEndpoints(eps []contact.Endpoint) {
	s.extMu.Lock()
	defer s.extMu.Unlock()

	if types.SameSet(eps, s.external) {
		return
	}
	s.external = slices.Clone(eps)

	s.out.push(ExternalEndpoints{Endpoints: slices.Clone(eps)})
}

// FinishBootstrap emits BootstrapFinished, only the first call has any effect.
func (s *Service) FinishBootstrap() {
	s.bootstrapOnce.Do(func() {
		s.out.push(BootstrapFinished{})
	})
}

// Close stops every loop, closing all connections, and closes the event channel.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// release the pump if it is blocked on a full channel before waiting on it
		s.events.Close()
		_ = s.eg.Wait()
		slog.Info("service closed", "pub", s.pub.Debug())
	})
	return nil
}
