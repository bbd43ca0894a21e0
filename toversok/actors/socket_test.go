package actors

import (
	"io"
	"net"
	"testing"

	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types/msgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocket_ReadHandsOutMessagesBeforeError(t *testing.T) {
	conn := newMockConn(3)
	conn.in = append(mustEncode(msgconn.NewData([]byte("a"))), mustEncode(msgconn.NewData([]byte("b")))...)
	conn.eof = true

	s := NewSocket(conn)

	m, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), m.Data.Payload)

	m, err = s.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), m.Data.Payload)

	_, err = s.Read()
	assert.ErrorIs(t, err, io.EOF)

	_, err = s.Read()
	assert.ErrorIs(t, err, io.EOF, "errors are sticky")
}

func TestSocket_DeregisterAndCloseGuarded(t *testing.T) {
	r := newMockReactor()
	conn := newMockConn(3)
	s := NewSocket(conn)

	require.NoError(t, s.Register(r, 4, reactor.Readable))
	assert.True(t, s.Registered())

	require.NoError(t, s.Deregister(r))
	require.NoError(t, s.Deregister(r))
	assert.Equal(t, 1, r.deregisters)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, conn.closed)

	_, err := s.Read()
	assert.ErrorIs(t, err, net.ErrClosed)

	_, err = s.Write(r, 4, msgconn.NewChooseConnection())
	assert.ErrorIs(t, err, net.ErrClosed)
}

func TestSocket_WriteQueuesInOrder(t *testing.T) {
	r := newMockReactor()
	conn := newMockConn(3)
	conn.writeLimit = 0
	s := NewSocket(conn)
	require.NoError(t, s.Register(r, 4, reactor.Readable))

	flushed, err := s.Write(r, 4, msgconn.NewData([]byte("1")))
	require.NoError(t, err)
	assert.False(t, flushed)
	assert.Equal(t, reactor.Readable|reactor.Writable, s.Interest())

	flushed, err = s.Write(r, 4, msgconn.NewData([]byte("2")))
	require.NoError(t, err)
	assert.False(t, flushed)

	conn.writeLimit = -1
	flushed, err = s.Write(r, 4, nil)
	require.NoError(t, err)
	assert.True(t, flushed)
	assert.Equal(t, reactor.Readable, s.Interest())

	want := append(mustEncode(msgconn.NewData([]byte("1"))), mustEncode(msgconn.NewData([]byte("2")))...)
	assert.Equal(t, want, conn.out)
}
