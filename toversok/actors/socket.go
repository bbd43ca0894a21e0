package actors

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types/msgconn"
)

// ErrWouldBlock is returned by a RawConn when an operation cannot progress without blocking.
var ErrWouldBlock = errors.New("operation would block")

// RawConn is a non-blocking stream connection with a pollable file descriptor.
type RawConn interface {
	Fd() int

	// Read returns ErrWouldBlock when no data is available, and io.EOF once the peer has closed.
	Read(b []byte) (int, error)

	// Write returns ErrWouldBlock, possibly after a partial write, when the send buffer is full.
	Write(b []byte) (int, error)

	Close() error
}

// Socket frames messages over a RawConn and tracks its reactor registration.
//
// Received bytes that are not consumed yet stay buffered in the socket, they move
// along with it when a candidate hands it off.
type Socket struct {
	conn RawConn

	readBuf []byte
	readErr error

	writeQueue [][]byte
	writeOff   int

	interest   reactor.EventSet
	registered bool
	closed     bool
}

func NewSocket(conn RawConn) *Socket {
	return &Socket{conn: conn}
}

func (s *Socket) Fd() int {
	return s.conn.Fd()
}

func (s *Socket) Interest() reactor.EventSet {
	return s.interest
}

func (s *Socket) Registered() bool {
	return s.registered
}

// Register adds the socket to r, edge triggered.
func (s *Socket) Register(r reactor.Reactor, token reactor.Token, interest reactor.EventSet) error {
	if s.closed {
		return net.ErrClosed
	}
	if err := r.Register(s.Fd(), token, interest, reactor.Edge); err != nil {
		return err
	}
	s.interest = interest
	s.registered = true
	return nil
}

func (s *Socket) Reregister(r reactor.Reactor, token reactor.Token, interest reactor.EventSet) error {
	if s.closed {
		return net.ErrClosed
	}
	if !s.registered {
		return s.Register(r, token, interest)
	}
	if err := r.Reregister(s.Fd(), token, interest, reactor.Edge); err != nil {
		return err
	}
	s.interest = interest
	return nil
}

// Deregister removes the socket from r, it is a no-op if the socket is not registered.
func (s *Socket) Deregister(r reactor.Reactor) error {
	if !s.registered || s.closed {
		return nil
	}
	s.registered = false
	return r.Deregister(s.Fd())
}

// Close closes the underlying connection, it is a no-op when called again.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.writeQueue = nil
	return s.conn.Close()
}

// Buffered returns the amount of received bytes not yet handed out as messages.
func (s *Socket) Buffered() int {
	return len(s.readBuf)
}

// fill reads until the connection would block, or until a whole frame is buffered.
func (s *Socket) fill() {
	var chunk [ReadChunkSize]byte

	for s.readErr == nil && !msgconn.Complete(s.readBuf) {
		n, err := s.conn.Read(chunk[:])
		if n > 0 {
			s.readBuf = append(s.readBuf, chunk[:n]...)
		}

		switch {
		case errors.Is(err, ErrWouldBlock):
			return
		case err != nil:
			s.readErr = err
		case n == 0:
			s.readErr = io.EOF
		}
	}
}

// Read returns the next buffered message, reading from the connection if needed.
//
// It returns (nil, nil) when no complete message is available yet. Errors are sticky,
// but messages that arrived before an error are still handed out first.
func (s *Socket) Read() (*msgconn.Message, error) {
	if s.closed {
		return nil, net.ErrClosed
	}

	s.fill()

	m, n, err := msgconn.Decode(s.readBuf)
	if err != nil {
		s.readErr = err
		return nil, err
	}
	if m == nil {
		return nil, s.readErr
	}

	s.readBuf = append(s.readBuf[:0], s.readBuf[n:]...)

	return m, nil
}

// Write queues msg, when not nil, and flushes as much of the queue as the connection takes.
//
// It returns true once everything queued has been written, after which the socket is
// rearmed for reading only. When the connection would block, the socket is rearmed for
// writability so that a later Write(nil) can resume the flush.
func (s *Socket) Write(r reactor.Reactor, token reactor.Token, msg *msgconn.Message) (bool, error) {
	if s.closed {
		return false, net.ErrClosed
	}

	if msg != nil {
		frame, err := msgconn.Encode(msg)
		if err != nil {
			return false, err
		}
		s.writeQueue = append(s.writeQueue, frame)
	}

	for len(s.writeQueue) > 0 {
		frame := s.writeQueue[0][s.writeOff:]

		n, err := s.conn.Write(frame)
		s.writeOff += n

		if s.writeOff == len(s.writeQueue[0]) {
			s.writeQueue[0] = nil
			s.writeQueue = s.writeQueue[1:]
			s.writeOff = 0
		}

		if errors.Is(err, ErrWouldBlock) {
			if !s.interest.IsWritable() {
				if err := s.Reregister(r, token, s.interest|reactor.Writable); err != nil {
					return false, fmt.Errorf("could not rearm for writing: %w", err)
				}
			}
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}

	if s.interest.IsWritable() || !s.interest.IsReadable() {
		if err := s.Reregister(r, token, (s.interest&^reactor.Writable)|reactor.Readable); err != nil {
			return false, fmt.Errorf("could not rearm for reading: %w", err)
		}
	}

	return true, nil
}
