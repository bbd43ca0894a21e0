package key

import (
	"encoding"
)

type key interface {
	IsZero() bool
}

// We need text encoding for JSON, BSON and the shell.
type canTextMarshal interface {
	encoding.TextMarshaler
	encoding.TextUnmarshaler
}

type publicKey interface {
	key

	Debug() string
	HexString() string

	// Public keys double as peer identities, so they must be totally ordered.
	Compare(other NodePublic) int
}

type privateKey[Pub key] interface {
	key

	Public() Pub
}
