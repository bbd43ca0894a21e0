package msgconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestEncodeDecode(t *testing.T) {
	for _, m := range []*Message{
		NewChooseConnection(),
		NewData([]byte("hello")),
	} {
		b, err := Encode(m)
		require.NoError(t, err)

		got, n, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, len(b), n)
		assert.Equal(t, m, got)
	}
}

func TestDecode_Incomplete(t *testing.T) {
	b, err := Encode(NewData([]byte("hello world")))
	require.NoError(t, err)

	for i := 0; i < len(b); i++ {
		m, n, err := Decode(b[:i])
		require.NoError(t, err, "prefix of %d bytes", i)
		assert.Nil(t, m)
		assert.Zero(t, n)
	}
}

func TestDecode_Consecutive(t *testing.T) {
	a, err := Encode(NewChooseConnection())
	require.NoError(t, err)
	b, err := Encode(NewData([]byte{1, 2, 3}))
	require.NoError(t, err)

	buf := append(append([]byte{}, a...), b...)

	m, n, err := Decode(buf)
	require.NoError(t, err)
	assert.True(t, m.IsChooseConnection())

	m, _, err = Decode(buf[n:])
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, m.Data.Payload)
}

func TestDecode_Rejects(t *testing.T) {
	_, _, err := Decode([]byte{0x00})
	assert.ErrorIs(t, err, ErrBadPattern)

	_, _, err = Decode([]byte{protocolPattern, 99})
	assert.ErrorIs(t, err, ErrBadVersion)

	_, _, err = Decode([]byte{protocolPattern, protocolVersion, 0xff, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrTooLarge)

	// a well-framed but empty envelope
	body, err := msgpack.Marshal(&Message{})
	require.NoError(t, err)
	frame := append([]byte{protocolPattern, protocolVersion, 0, 0, 0, byte(len(body))}, body...)

	_, _, err = Decode(frame)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestEncode_RejectsInvalid(t *testing.T) {
	_, err := Encode(&Message{})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = Encode(&Message{ChooseConnection: new(ChooseConnection), Data: new(Data)})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestComplete(t *testing.T) {
	b, err := Encode(NewData([]byte("abc")))
	require.NoError(t, err)

	assert.False(t, Complete(nil))
	assert.False(t, Complete(b[:HeaderLen]))
	assert.False(t, Complete(b[:len(b)-1]))
	assert.True(t, Complete(b))
	assert.True(t, Complete([]byte{0x00}), "garbage is left for Decode to reject")
}
