package contact

import (
	"net/netip"
	"time"
)

type fakeUDPConn struct{}

func (fakeUDPConn) SetReadDeadline(time.Time) error { return nil }

func (fakeUDPConn) ReadFromUDPAddrPort([]byte) (int, netip.AddrPort, error) {
	return 0, netip.AddrPort{}, nil
}

func (fakeUDPConn) WriteToUDPAddrPort(b []byte, _ netip.AddrPort) (int, error) {
	return len(b), nil
}

func (fakeUDPConn) Close() error { return nil }
