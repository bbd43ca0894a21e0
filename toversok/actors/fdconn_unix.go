//go:build unix

package actors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// FdConn is a RawConn over a non-blocking file descriptor, bypassing the Go netpoller.
type FdConn struct {
	fd int

	closeOnce sync.Once
	closeErr  error
}

// NewFdConn takes ownership of fd and puts it into non-blocking mode.
func NewFdConn(fd int) (*FdConn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("could not set fd %d non-blocking: %w", fd, err)
	}
	return &FdConn{fd: fd}, nil
}

// FdConnFromNetConn duplicates the descriptor of a Go socket; conn itself can be closed afterwards.
func FdConnFromNetConn(conn net.Conn) (*FdConn, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("%T does not expose its file descriptor", conn)
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}

	var (
		dup    int
		dupErr error
	)
	if err := raw.Control(func(fd uintptr) {
		dup, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, fmt.Errorf("could not dup socket: %w", dupErr)
	}

	fc, err := NewFdConn(dup)
	if err != nil {
		_ = unix.Close(dup)
		return nil, err
	}
	return fc, nil
}

func (c *FdConn) Fd() int {
	return c.fd
}

func (c *FdConn) Read(b []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, b)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case err != nil:
			return 0, err
		case n == 0 && len(b) > 0:
			return 0, io.EOF
		default:
			return n, nil
		}
	}
}

func (c *FdConn) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := unix.Write(c.fd, b[written:])
		if n > 0 {
			written += n
		}
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return written, ErrWouldBlock
		case err != nil:
			return written, err
		}
	}
	return written, nil
}

func (c *FdConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = unix.Close(c.fd)
	})
	return c.closeErr
}
