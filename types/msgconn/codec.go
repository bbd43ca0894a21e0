package msgconn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// header of six bytes
// 0 - pre-designated bit pattern indicating valid message
// 1 - protocol version
// 2,3,4,5 - payload length of type uint32, big endian byte order
const (
	HeaderLen = 6

	protocolPattern = 0b10101010
	protocolVersion = 1

	MaxPayloadLen = 1 << 20

	typicalBufferLen = 64
)

var (
	ErrBadPattern     = errors.New("invalid protocol pattern")
	ErrBadVersion     = errors.New("unsupported protocol version")
	ErrTooLarge       = errors.New("payload too large")
	ErrInvalidMessage = errors.New("message does not have exactly one field set")
)

// Encode frames a message for the wire.
func Encode(m *Message) ([]byte, error) {
	if !m.Valid() {
		return nil, ErrInvalidMessage
	}

	buffer := new(bytes.Buffer)
	buffer.Grow(typicalBufferLen)

	buffer.WriteByte(protocolPattern)
	buffer.WriteByte(protocolVersion)

	// placeholder for payload length
	buffer.Write([]byte{0, 0, 0, 0})

	if err := msgpack.NewEncoder(buffer).Encode(m); err != nil {
		return nil, fmt.Errorf("msgpack failed to encode %s: %w", m, err)
	}

	buf := buffer.Bytes()

	payloadLen := len(buf) - HeaderLen
	if payloadLen > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, payloadLen)
	}
	binary.BigEndian.PutUint32(buf[2:HeaderLen], uint32(payloadLen))

	return buf, nil
}

// Decode parses the first frame in buf.
//
// When buf does not hold a complete frame yet, it returns a nil message and no error.
// Otherwise, n is the amount of bytes the frame took up.
func Decode(buf []byte) (m *Message, n int, err error) {
	if len(buf) >= 1 && buf[0] != protocolPattern {
		return nil, 0, fmt.Errorf("%w: %X", ErrBadPattern, buf[0])
	}
	if len(buf) >= 2 && buf[1] != protocolVersion {
		return nil, 0, fmt.Errorf("%w: %d", ErrBadVersion, buf[1])
	}
	if len(buf) < HeaderLen {
		return nil, 0, nil
	}

	payloadLen := binary.BigEndian.Uint32(buf[2:HeaderLen])
	if payloadLen > MaxPayloadLen {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, payloadLen)
	}

	n = HeaderLen + int(payloadLen)
	if len(buf) < n {
		return nil, 0, nil
	}

	m = new(Message)
	if err = msgpack.Unmarshal(buf[HeaderLen:n], m); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if !m.Valid() {
		return nil, 0, ErrInvalidMessage
	}

	return m, n, nil
}

// Complete reports whether buf starts with a whole frame, or with a header Decode will reject.
func Complete(buf []byte) bool {
	if len(buf) >= 1 && buf[0] != protocolPattern {
		return true
	}
	if len(buf) >= 2 && buf[1] != protocolVersion {
		return true
	}
	if len(buf) < HeaderLen {
		return false
	}

	payloadLen := binary.BigEndian.Uint32(buf[2:HeaderLen])
	if payloadLen > MaxPayloadLen {
		return true
	}

	return len(buf) >= HeaderLen+int(payloadLen)
}
