package toversok

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/edup2p/rendezvous/types/contact"
	"github.com/edup2p/rendezvous/types/key"
)

type ServiceOptions struct {
	Ctx context.Context

	PrivKey key.NodePrivate

	// Reactors is the amount of event loops negotiating connections, each on its own goroutine.
	//
	// With more than one, connections to the same peer racing on different loops can each finish
	// their handshake; only the first to become active is kept, and the rest are closed.
	Reactors int

	EventChannelLength int
	Overflow           OverflowPolicy

	// StaticEndpoints are our listening endpoints, advertised in prepared contact info.
	StaticEndpoints []contact.Endpoint

	// StunServers map the UDP socket of prepared contact info. Without any, the socket's
	// local address is used as its rendezvous address.
	StunServers []netip.AddrPort
	StunTimeout time.Duration

	// UDPBind is where contact info sockets are bound.
	UDPBind netip.AddrPort
}

func invalid(err error) error {
	slog.Error("invalid service options", "err", err)
	return err
}

func (o *ServiceOptions) Validate() error {
	if o == nil {
		return invalid(errors.New("nil options"))
	}

	if o.Ctx == nil {
		return invalid(errors.New("nil Ctx"))
	}

	if o.PrivKey.IsZero() {
		return invalid(errors.New("zero PrivKey"))
	}

	if o.Reactors < 0 {
		return invalid(fmt.Errorf("invalid Reactors=%d", o.Reactors))
	}

	if o.EventChannelLength < 0 {
		return invalid(fmt.Errorf("invalid EventChannelLength=%d", o.EventChannelLength))
	}

	if o.Overflow != OverflowBlock && o.Overflow != OverflowDropOldest {
		return invalid(fmt.Errorf("invalid Overflow=%s", o.Overflow))
	}

	for _, ep := range o.StaticEndpoints {
		if !ep.Addr.IsValid() || (ep.Protocol != contact.TCP && ep.Protocol != contact.UDP) {
			return invalid(fmt.Errorf("invalid StaticEndpoints entry %s", ep))
		}
	}

	for _, ap := range o.StunServers {
		if !ap.IsValid() || ap.Port() == 0 {
			return invalid(fmt.Errorf("invalid StunServers entry %s", ap))
		}
	}

	if o.StunTimeout < 0 {
		return invalid(fmt.Errorf("invalid StunTimeout=%s", o.StunTimeout))
	}

	return nil
}

// withDefaults fills in the zero values of options.
func (o ServiceOptions) withDefaults() ServiceOptions {
	if o.Reactors == 0 {
		o.Reactors = DefaultReactors
	}
	if o.EventChannelLength == 0 {
		o.EventChannelLength = DefaultEventChannelLength
	}
	if o.StunTimeout == 0 {
		o.StunTimeout = DefaultStunTimeout
	}
	if !o.UDPBind.IsValid() {
		o.UDPBind = DefaultUDPBind
	}
	return o
}
