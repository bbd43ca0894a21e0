package actors

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types/key"
	"github.com/edup2p/rendezvous/types/msgconn"
)

// Test constants
const assertEventuallyTick time.Duration = 1 * time.Millisecond
const assertEventuallyTimeout time.Duration = 1000 * assertEventuallyTick

func testPeer(b byte) key.NodePublic {
	var k key.NodePublic
	k[0] = b
	return k
}

func mustEncode(m *msgconn.Message) []byte {
	b, err := msgconn.Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

type registration struct {
	token    reactor.Token
	interest reactor.EventSet
	opt      reactor.PollOpt
}

// MockReactor records registrations instead of polling anything.
type MockReactor struct {
	regs map[int]registration

	registers   int
	reregisters int
	deregisters int
}

func newMockReactor() *MockReactor {
	return &MockReactor{regs: make(map[int]registration)}
}

func (m *MockReactor) Register(fd int, token reactor.Token, interest reactor.EventSet, opt reactor.PollOpt) error {
	if _, ok := m.regs[fd]; ok {
		return fmt.Errorf("fd %d already registered", fd)
	}
	m.registers++
	m.regs[fd] = registration{token, interest, opt}
	return nil
}

func (m *MockReactor) Reregister(fd int, token reactor.Token, interest reactor.EventSet, opt reactor.PollOpt) error {
	if _, ok := m.regs[fd]; !ok {
		return fmt.Errorf("fd %d not registered", fd)
	}
	m.reregisters++
	m.regs[fd] = registration{token, interest, opt}
	return nil
}

func (m *MockReactor) Deregister(fd int) error {
	if _, ok := m.regs[fd]; !ok {
		return fmt.Errorf("fd %d not registered", fd)
	}
	m.deregisters++
	delete(m.regs, fd)
	return nil
}

// MockPoller is a MockReactor that never reports readiness, it only wakes up.
type MockPoller struct {
	*MockReactor

	mu     sync.Mutex
	wake   chan struct{}
	closed bool
}

func newMockPoller() *MockPoller {
	return &MockPoller{MockReactor: newMockReactor(), wake: make(chan struct{}, 1)}
}

func (m *MockPoller) Wait(_ []reactor.Event, timeout time.Duration) (int, error) {
	select {
	case <-m.wake:
	case <-time.After(timeout):
	}
	return 0, nil
}

func (m *MockPoller) Wake() error {
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

func (m *MockPoller) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockPoller) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockConn is an in-memory RawConn.
type MockConn struct {
	fd int

	in  []byte
	eof bool

	out []byte
	// writeLimit caps how many more bytes are accepted before writes would block, negative means unlimited.
	writeLimit int
	writeErr   error

	closed int
}

func newMockConn(fd int) *MockConn {
	return &MockConn{fd: fd, writeLimit: -1}
}

func (m *MockConn) Fd() int { return m.fd }

func (m *MockConn) Read(b []byte) (int, error) {
	if len(m.in) == 0 {
		if m.eof {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	n := copy(b, m.in)
	m.in = m.in[n:]
	return n, nil
}

func (m *MockConn) Write(b []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	if m.writeLimit < 0 {
		m.out = append(m.out, b...)
		return len(b), nil
	}

	n := min(len(b), m.writeLimit)
	m.out = append(m.out, b[:n]...)
	m.writeLimit -= n

	if n < len(b) {
		return n, ErrWouldBlock
	}
	return n, nil
}

func (m *MockConn) Close() error {
	m.closed++
	return nil
}

// finishRecorder captures what a candidate hands to its Finish callback.
type finishRecorder struct {
	calls    int
	handoffs []*Handoff
}

func (f *finishRecorder) finish(_ *Core, _ reactor.Reactor, _ Context, h *Handoff) {
	f.calls++
	f.handoffs = append(f.handoffs, h)
}
