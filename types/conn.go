package types

import (
	"net/netip"
	"time"
)

// UDPConn is the subset of *net.UDPConn that contact info preparation holds on to,
// to keep a NAT mapping alive until the rendezvous attempt uses it.
type UDPConn interface {
	SetReadDeadline(t time.Time) error

	ReadFromUDPAddrPort(b []byte) (n int, addr netip.AddrPort, err error)

	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)

	Close() error
}

// UDPConnCloseCatcher records whether Close was called on the wrapped conn.
type UDPConnCloseCatcher struct {
	UDPConn

	Closed bool
}

func (c *UDPConnCloseCatcher) Close() error {
	c.Closed = true

	return c.UDPConn.Close()
}
