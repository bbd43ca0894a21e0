// Package contact holds the reachability information peers exchange out-of-band before racing
// connections toward each other.
package contact

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/LukaGiorgadze/gonull"
	"github.com/edup2p/rendezvous/types"
	"github.com/edup2p/rendezvous/types/key"
)

type Protocol uint8

const (
	TCP Protocol = iota + 1
	UDP
)

var ErrUnknownProtocol = errors.New("unknown endpoint protocol")

func (p Protocol) String() string {
	switch p {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return TCP, nil
	case "udp":
		return UDP, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
	}
}

// Endpoint is an address a peer can be reached on, together with the transport to use.
type Endpoint struct {
	Protocol Protocol
	Addr     netip.AddrPort
}

func (e Endpoint) String() string {
	return e.Protocol.String() + "://" + e.Addr.String()
}

// ParseEndpoint parses the form produced by Endpoint.String, e.g. "tcp://1.2.3.4:5".
func ParseEndpoint(s string) (Endpoint, error) {
	proto, addr, ok := strings.Cut(s, "://")
	if !ok {
		return Endpoint{}, fmt.Errorf("endpoint %q lacks a protocol", s)
	}

	p, err := ParseProtocol(proto)
	if err != nil {
		return Endpoint{}, err
	}

	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", s, err)
	}

	return Endpoint{Protocol: p, Addr: types.NormaliseAddrPort(ap)}, nil
}

const SecretLen = 4

// Secret is shared with a peer to authenticate rendezvous hole-punching packets.
type Secret [SecretLen]byte

func NewSecret() Secret {
	var s Secret
	if _, err := crand.Read(s[:]); err != nil {
		panic(fmt.Errorf("unable to read random bytes from OS: %w", err))
	}
	return s
}

func (s Secret) String() string {
	return hex.EncodeToString(s[:])
}

// OurContactInfo is our own reachability information, including the UDP socket whose NAT mapping
// produced RendezvousAddrs. It is not transmissible, see MakeTheirInfo.
type OurContactInfo struct {
	// Socket is kept open to keep the NAT mapping alive, Close releases it.
	Socket types.UDPConn

	Secret          gonull.Nullable[Secret]
	StaticAddrs     []Endpoint
	RendezvousAddrs []netip.AddrPort
	PubKey          key.NodePublic
}

// MakeTheirInfo projects our contact info into the form that can be sent to a peer.
//
// The address slices are copied, the socket is left behind.
func (o *OurContactInfo) MakeTheirInfo() TheirContactInfo {
	return TheirContactInfo{
		Secret:          o.Secret,
		StaticAddrs:     slices.Clone(o.StaticAddrs),
		RendezvousAddrs: slices.Clone(o.RendezvousAddrs),
		PubKey:          o.PubKey,
	}
}

// Close releases the owned socket, it is safe to call multiple times.
func (o *OurContactInfo) Close() error {
	if o == nil || o.Socket == nil {
		return nil
	}

	sock := o.Socket
	o.Socket = nil

	return sock.Close()
}

// TheirContactInfo is what a peer told us about how to reach them.
type TheirContactInfo struct {
	Secret          gonull.Nullable[Secret]
	StaticAddrs     []Endpoint
	RendezvousAddrs []netip.AddrPort
	PubKey          key.NodePublic
}

func (t TheirContactInfo) String() string {
	secret := "none"
	if t.Secret.Valid {
		secret = t.Secret.Val.String()
	}

	return fmt.Sprintf(
		"%s secret=%s static=%v rendezvous=%s",
		t.PubKey.Debug(), secret, t.StaticAddrs, types.PrettyAddrPortSlice(t.RendezvousAddrs),
	)
}

// ContactInfoResult correlates the outcome of a contact info preparation with the token the caller passed in.
type ContactInfoResult struct {
	ResultToken uint32

	// Result is set when Err is nil.
	Result *OurContactInfo
	Err    error
}
