package key

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"go4.org/mem"
)

const Len = 32

const (
	nodePublicHexPrefix  = "nodekey:"
	nodePrivateHexPrefix = "privkey:"
)

// NakedKey is the 32-byte underlying key.
//
// Only ever used for public interfaces, very dangerous to use directly, due to the security implications.
type NakedKey [Len]byte

// IsZero reports whether k is the zero value.
func (n NakedKey) IsZero() bool {
	return n == NakedKey{}
}

// rand fills b with cryptographically strong random bytes. Panics if
// no random bytes are available.
func rand(b []byte) {
	if _, err := io.ReadFull(crand.Reader, b[:]); err != nil {
		panic(fmt.Sprintf("unable to read random bytes from OS: %v", err))
	}
}

// clamp25519 clamps b, which must be a 32-byte Curve25519 private
// key, to a safe value.
//
// (Taken from tailscale)
func clamp25519Private(b []byte) {
	b[0] &= 248
	b[31] = (b[31] & 127) | 64
}

func appendHexKey(dst []byte, prefix string, key []byte) []byte {
	dst = append(dst, prefix...)
	return hex.AppendEncode(dst, key)
}

var errInvalidHexChar = errors.New("invalid hex character in key")

// parseHex decodes a prefixed hex key into out, which must be exactly as long as the encoded key.
func parseHex(out []byte, in, prefix mem.RO) error {
	if !mem.HasPrefix(in, prefix) {
		return fmt.Errorf("key hex string doesn't have expected type prefix %s", prefix.StringCopy())
	}
	in = in.SliceFrom(prefix.Len())

	if want := len(out) * 2; in.Len() != want {
		return fmt.Errorf("key hex has the wrong size, got %d want %d", in.Len(), want)
	}

	for i := range out {
		a, ok1 := fromHexChar(in.At(i * 2))
		b, ok2 := fromHexChar(in.At(i*2 + 1))
		if !ok1 || !ok2 {
			return errInvalidHexChar
		}
		out[i] = (a << 4) | b
	}

	return nil
}

func fromHexChar(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}
