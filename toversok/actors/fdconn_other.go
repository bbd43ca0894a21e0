//go:build !unix

package actors

import (
	"errors"
	"net"
)

var errNoFdConn = errors.New("raw descriptor connections are not supported on this platform")

type FdConn struct{}

func NewFdConn(int) (*FdConn, error) {
	return nil, errNoFdConn
}

func FdConnFromNetConn(net.Conn) (*FdConn, error) {
	return nil, errNoFdConn
}

func (c *FdConn) Fd() int                    { return -1 }
func (c *FdConn) Read([]byte) (int, error)  { return 0, errNoFdConn }
func (c *FdConn) Write([]byte) (int, error) { return 0, errNoFdConn }
func (c *FdConn) Close() error              { return nil }
