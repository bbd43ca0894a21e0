package actors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/LukaGiorgadze/gonull"
	"github.com/edup2p/rendezvous/types"
	"github.com/edup2p/rendezvous/types/contact"
	"github.com/edup2p/rendezvous/types/key"
	"github.com/edup2p/rendezvous/types/stun"
	"go4.org/netipx"
)

var (
	ErrNoMappedAddress = errors.New("no STUN server reported a mapped address")
	ErrManagerClosed   = errors.New("endpoint manager is closed")
	ErrInboxFull       = errors.New("too many contact info requests in flight")
)

// ListenFunc binds a UDP socket, returning it along with the address it is bound to.
type ListenFunc func(bind netip.AddrPort) (types.UDPConn, netip.AddrPort, error)

func ListenUDP(bind netip.AddrPort) (types.UDPConn, netip.AddrPort, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(bind))
	if err != nil {
		return nil, netip.AddrPort{}, err
	}

	la := conn.LocalAddr().(*net.UDPAddr)
	local, ok := netipx.FromStdAddr(la.IP, la.Port, la.Zone)
	if !ok {
		_ = conn.Close()
		return nil, netip.AddrPort{}, fmt.Errorf("could not convert local address %s", la)
	}

	return conn, types.NormaliseAddrPort(local), nil
}

type EndpointManagerConfig struct {
	PubKey key.NodePublic

	Bind            netip.AddrPort
	StaticEndpoints []contact.Endpoint

	StunServers []netip.AddrPort
	StunTimeout time.Duration

	// Listen defaults to ListenUDP.
	Listen ListenFunc

	OnResult func(contact.ContactInfoResult)

	// OnEndpoints is called when the set of mapped addresses changes.
	OnEndpoints func([]contact.Endpoint)
}

// EndpointManager prepares contact info: it binds a UDP socket per request, learns its
// mapped addresses through STUN, and keeps track of our externally visible endpoints.
type EndpointManager struct {
	*ActorCommon[uint32]

	cfg EndpointManagerConfig

	mu     sync.Mutex
	closed bool

	lastMapped []netip.AddrPort
}

func NewEndpointManager(ctx context.Context, cfg EndpointManagerConfig) *EndpointManager {
	if cfg.Listen == nil {
		cfg.Listen = ListenUDP
	}
	if cfg.StunTimeout <= 0 {
		cfg.StunTimeout = EManStunTimeout
	}

	return &EndpointManager{
		ActorCommon: MakeCommon[uint32](ctx, EndpointManagerInboxChLen),
		cfg:         cfg,
	}
}

// Prepare queues a contact info request, the result is reported to OnResult with the same token.
func (em *EndpointManager) Prepare(token uint32) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.closed {
		return ErrManagerClosed
	}

	select {
	case em.inbox <- token:
		return nil
	default:
		return ErrInboxFull
	}
}

func (em *EndpointManager) Run() {
	defer func() {
		if v := recover(); v != nil {
			L(em).Error("panicked", "panic", v)
			em.Cancel()
			em.Close()
		}
	}()

	if !em.running.CheckOrMark() {
		L(em).Warn("tried to run agent, while already running")
		return
	}

	for {
		select {
		case <-em.ctx.Done():
			em.Close()
			return
		case token := <-em.inbox:
			em.cfg.OnResult(em.prepare(token))
		}
	}
}

func (em *EndpointManager) prepare(token uint32) contact.ContactInfoResult {
	res := contact.ContactInfoResult{ResultToken: token}

	conn, local, err := em.cfg.Listen(em.cfg.Bind)
	if err != nil {
		res.Err = fmt.Errorf("could not bind rendezvous socket: %w", err)
		return res
	}

	var mapped []netip.AddrPort

	if len(em.cfg.StunServers) == 0 {
		mapped = []netip.AddrPort{local}
	} else {
		for _, server := range em.cfg.StunServers {
			ap, err := stun.Discover(em.ctx, conn, server, em.cfg.StunTimeout)
			if err != nil {
				L(em).Debug("STUN discovery failed", "server", server, "err", err)
				continue
			}
			mapped = append(mapped, ap)
		}
		mapped = types.Dedup(mapped)
	}

	if len(mapped) == 0 {
		_ = conn.Close()
		res.Err = ErrNoMappedAddress
		return res
	}

	L(em).Debug("prepared contact info", "token", token, "mapped", types.PrettyAddrPortSlice(mapped))

	if len(em.cfg.StunServers) > 0 && !types.SameSet(mapped, em.lastMapped) {
		em.lastMapped = mapped

		if em.cfg.OnEndpoints != nil {
			em.cfg.OnEndpoints(types.Map(mapped, func(ap netip.AddrPort) contact.Endpoint {
				return contact.Endpoint{Protocol: contact.UDP, Addr: ap}
			}))
		}
	}

	res.Result = &contact.OurContactInfo{
		Socket:          conn,
		Secret:          gonull.NewNullable(contact.NewSecret()),
		StaticAddrs:     slices.Clone(em.cfg.StaticEndpoints),
		RendezvousAddrs: slices.Clone(mapped),
		PubKey:          em.cfg.PubKey,
	}
	return res
}

// Close fails every request still queued. It is called by Run when cancelled.
func (em *EndpointManager) Close() {
	em.mu.Lock()
	if em.closed {
		em.mu.Unlock()
		return
	}
	em.closed = true
	em.mu.Unlock()

	for {
		select {
		case token := <-em.inbox:
			em.cfg.OnResult(contact.ContactInfoResult{ResultToken: token, Err: ErrManagerClosed})
		default:
			return
		}
	}
}
