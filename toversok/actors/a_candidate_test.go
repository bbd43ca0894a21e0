package actors

import (
	"errors"
	"testing"

	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types/msgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type candidateHarness struct {
	core *Core
	r    *MockReactor
	cm   *ConnectionMap
	conn *MockConn
	sock *Socket
	fin  *finishRecorder
	cc   *ConnectionCandidate
}

func startTestCandidate(t *testing.T, ours, theirs byte) *candidateHarness {
	t.Helper()

	h := &candidateHarness{
		core: NewCore(),
		r:    newMockReactor(),
		cm:   NewConnectionMap(),
		conn: newMockConn(10),
		fin:  new(finishRecorder),
	}
	h.sock = NewSocket(h.conn)

	cx, err := StartCandidate(h.core, h.r, 1, h.sock, h.cm, testPeer(ours), testPeer(theirs), h.fin.finish)
	require.NoError(t, err)

	state, ok := h.core.StateOf(1)
	require.True(t, ok)
	h.cc = state.(*ConnectionCandidate)
	require.Equal(t, cx, h.cc.Context())

	return h
}

func TestCandidate_SymmetryBreak(t *testing.T) {
	high := startTestCandidate(t, 2, 1)
	assert.Equal(t, reactor.Writable|reactor.Error|reactor.Hup, high.r.regs[10].interest)
	assert.Equal(t, reactor.Edge, high.r.regs[10].opt)

	low := startTestCandidate(t, 1, 2)
	assert.Equal(t, reactor.Readable|reactor.Error|reactor.Hup, low.r.regs[10].interest)

	for _, h := range []*candidateHarness{high, low} {
		id, ok := h.cm.Get(h.cc.theirID)
		require.True(t, ok)
		assert.Equal(t, 1, id.CurrentlyHandshaking)
		assert.Equal(t, Negotiating, h.cc.State())
	}
}

func TestCandidate_RejectsSelf(t *testing.T) {
	cm := NewConnectionMap()
	r := newMockReactor()

	_, err := StartCandidate(NewCore(), r, 1, NewSocket(newMockConn(10)), cm, testPeer(1), testPeer(1), new(finishRecorder).finish)
	assert.ErrorIs(t, err, ErrSelfConnection)
	assert.Zero(t, cm.Len())
	assert.Empty(t, r.regs)
}

func TestCandidate_CleanWin(t *testing.T) {
	h := startTestCandidate(t, 1, 2)

	h.cc.Ready(h.core, h.r, 1, reactor.Writable)

	assert.Equal(t, Done, h.cc.State())
	assert.Equal(t, mustEncode(msgconn.NewChooseConnection()), h.conn.out)

	assert.False(t, h.cm.Exists(testPeer(2)), "no entry remains, the candidate does not set active itself")
	assert.Zero(t, h.core.Len())

	require.Equal(t, 1, h.fin.calls)
	require.NotNil(t, h.fin.handoffs[0])
	assert.Same(t, h.sock, h.fin.handoffs[0].Socket)
	assert.Equal(t, reactor.Token(1), h.fin.handoffs[0].Token)

	// the socket moved on still registered, rearmed for reading
	assert.Zero(t, h.r.deregisters)
	assert.Zero(t, h.conn.closed)
	assert.Equal(t, reactor.Readable|reactor.Error|reactor.Hup, h.r.regs[10].interest)
}

func TestCandidate_ReadWin(t *testing.T) {
	h := startTestCandidate(t, 1, 2)
	h.conn.in = mustEncode(msgconn.NewChooseConnection())

	h.cc.Ready(h.core, h.r, 1, reactor.Readable)

	assert.Equal(t, Done, h.cc.State())
	assert.Empty(t, h.conn.out, "the reading side does not answer")
	require.Equal(t, 1, h.fin.calls)
	assert.NotNil(t, h.fin.handoffs[0])
}

func TestCandidate_IncompleteReadStays(t *testing.T) {
	h := startTestCandidate(t, 1, 2)
	marker := mustEncode(msgconn.NewChooseConnection())
	h.conn.in = marker[:3]

	h.cc.Ready(h.core, h.r, 1, reactor.Readable)
	assert.Equal(t, Negotiating, h.cc.State())
	assert.Zero(t, h.fin.calls)

	h.conn.in = marker[3:]
	h.cc.Ready(h.core, h.r, 1, reactor.Readable)
	assert.Equal(t, Done, h.cc.State())
}

func TestCandidate_LateSupersession(t *testing.T) {
	h := startTestCandidate(t, 1, 2)
	require.True(t, h.cm.SetActive(testPeer(2), 99))

	h.cc.Ready(h.core, h.r, 1, reactor.Writable)

	assert.Equal(t, Terminated, h.cc.State())
	assert.Empty(t, h.conn.out, "must not write once another connection won")
	require.Equal(t, 1, h.fin.calls)
	assert.Nil(t, h.fin.handoffs[0])

	assert.Equal(t, 1, h.r.deregisters)
	assert.Equal(t, 1, h.conn.closed)

	id, ok := h.cm.Get(testPeer(2))
	require.True(t, ok)
	assert.Zero(t, id.CurrentlyHandshaking)
	assert.Equal(t, reactor.Token(99), id.ActiveConnection.Val)
}

func TestCandidate_ReadAfterAnotherWon(t *testing.T) {
	h := startTestCandidate(t, 1, 2)
	require.True(t, h.cm.SetActive(testPeer(2), 99))
	h.conn.in = mustEncode(msgconn.NewChooseConnection())

	h.cc.Ready(h.core, h.r, 1, reactor.Readable)

	assert.Equal(t, Terminated, h.cc.State())
	require.Equal(t, 1, h.fin.calls)
	assert.Nil(t, h.fin.handoffs[0], "a marker does not win over an active connection")
	assert.Equal(t, 1, h.conn.closed)

	id, ok := h.cm.Get(testPeer(2))
	require.True(t, ok)
	assert.Zero(t, id.CurrentlyHandshaking)
	assert.Equal(t, reactor.Token(99), id.ActiveConnection.Val)
}

func TestCandidate_MalformedRead(t *testing.T) {
	h := startTestCandidate(t, 1, 2)
	h.conn.in = mustEncode(msgconn.NewData([]byte("early")))

	h.cc.Ready(h.core, h.r, 1, reactor.Readable|reactor.Writable)

	assert.Equal(t, Terminated, h.cc.State())
	assert.Equal(t, 1, h.r.deregisters)
	assert.Empty(t, h.conn.out)
	require.Equal(t, 1, h.fin.calls)
	assert.Nil(t, h.fin.handoffs[0])
	assert.False(t, h.cm.Exists(testPeer(2)))
}

func TestCandidate_GarbageRead(t *testing.T) {
	h := startTestCandidate(t, 1, 2)
	h.conn.in = []byte("GET / HTTP/1.1\r\n")

	h.cc.Ready(h.core, h.r, 1, reactor.Readable)

	assert.Equal(t, Terminated, h.cc.State())
	assert.Equal(t, 1, h.fin.calls)
}

func TestCandidate_ErrorAndHup(t *testing.T) {
	for _, ev := range []reactor.EventSet{reactor.Error, reactor.Hup, reactor.Hup | reactor.Readable} {
		h := startTestCandidate(t, 2, 1)
		h.conn.in = mustEncode(msgconn.NewChooseConnection())

		h.cc.Ready(h.core, h.r, 1, ev)

		assert.Equal(t, Terminated, h.cc.State(), "events %s", ev)
		assert.Equal(t, 1, h.fin.calls)
		assert.Nil(t, h.fin.handoffs[0])
	}
}

func TestCandidate_WriteError(t *testing.T) {
	h := startTestCandidate(t, 2, 1)
	h.conn.writeErr = errors.New("broken pipe")

	h.cc.Ready(h.core, h.r, 1, reactor.Writable)

	assert.Equal(t, Terminated, h.cc.State())
	assert.Equal(t, 1, h.fin.calls)
}

func TestCandidate_PartialWriteResumes(t *testing.T) {
	h := startTestCandidate(t, 2, 1)
	h.conn.writeLimit = 3

	h.cc.Ready(h.core, h.r, 1, reactor.Writable)
	assert.Equal(t, Negotiating, h.cc.State())
	assert.Nil(t, h.cc.msg, "the marker is taken once")
	assert.Len(t, h.conn.out, 3)

	h.conn.writeLimit = -1
	h.cc.Ready(h.core, h.r, 1, reactor.Writable)

	assert.Equal(t, Done, h.cc.State())
	assert.Equal(t, mustEncode(msgconn.NewChooseConnection()), h.conn.out, "no duplicate marker after resuming")
	assert.Equal(t, 1, h.fin.calls)
}

func TestCandidate_TerminateIdempotent(t *testing.T) {
	h := startTestCandidate(t, 1, 2)
	h.cm.BeginHandshake(testPeer(2)) // a second racer for the same peer

	h.cc.Terminate(h.core, h.r)
	h.cc.Terminate(h.core, h.r)

	assert.Equal(t, Terminated, h.cc.State())
	assert.Equal(t, 1, h.fin.calls)
	assert.Equal(t, 1, h.r.deregisters)
	assert.Equal(t, 1, h.conn.closed)

	id, ok := h.cm.Get(testPeer(2))
	require.True(t, ok)
	assert.Equal(t, 1, id.CurrentlyHandshaking, "no double decrement")

	// events after termination are ignored
	h.cc.Ready(h.core, h.r, 1, reactor.Readable|reactor.Writable)
	assert.Equal(t, 1, h.fin.calls)
}

func TestCandidate_TerminateAfterDone(t *testing.T) {
	h := startTestCandidate(t, 2, 1)
	h.cc.Ready(h.core, h.r, 1, reactor.Writable)
	require.Equal(t, Done, h.cc.State())

	h.cc.Terminate(h.core, h.r)

	assert.Equal(t, Done, h.cc.State())
	assert.Equal(t, 1, h.fin.calls)
	assert.Zero(t, h.conn.closed, "the handed off socket is not ours anymore")
}

func TestCandidate_SingleWinner(t *testing.T) {
	const n = 5

	core := NewCore()
	r := newMockReactor()
	cm := NewConnectionMap()

	var (
		done, failed int
		conns        []*MockConn
	)

	finish := func(_ *Core, _ reactor.Reactor, _ Context, h *Handoff) {
		if h == nil {
			failed++
			return
		}
		if !cm.SetActive(testPeer(1), h.Token) {
			failed++
			return
		}
		done++
	}

	for i := 0; i < n; i++ {
		conn := newMockConn(100 + i)
		conns = append(conns, conn)

		_, err := StartCandidate(core, r, reactor.Token(i+1), NewSocket(conn), cm, testPeer(2), testPeer(1), finish)
		require.NoError(t, err)
	}

	for i := 0; i < n; i++ {
		core.Ready(r, reactor.Token(i+1), reactor.Writable)
	}

	assert.Equal(t, 1, done)
	assert.Equal(t, n-1, failed)
	assert.Zero(t, core.Len())

	id, ok := cm.Get(testPeer(1))
	require.True(t, ok)
	assert.Zero(t, id.CurrentlyHandshaking)
	assert.Equal(t, reactor.Token(1), id.ActiveConnection.Val)

	for i, conn := range conns[1:] {
		assert.Empty(t, conn.out, "loser %d wrote", i+1)
		assert.Equal(t, 1, conn.closed)
	}
}

func TestCore_TerminateAll(t *testing.T) {
	h := startTestCandidate(t, 1, 2)

	h.core.TerminateAll(h.r)

	assert.Equal(t, Terminated, h.cc.State())
	assert.Equal(t, 1, h.fin.calls)
	assert.Zero(t, h.core.Len())
}
