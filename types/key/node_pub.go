package key

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go4.org/mem"
)

// NodePublic is the public half of a node key, and is the identity of a peer.
//
// Two identities are equal if their key bytes are equal, and they are totally
// ordered by their key bytes; that order is only used to break symmetry between
// two peers, never for anything security related.
type NodePublic NakedKey

func (n NodePublic) Debug() string {
	return fmt.Sprintf("%x", n)
}

func (n NodePublic) HexString() string {
	return hex.EncodeToString(n[:])
}

func (n NodePublic) IsZero() bool {
	return n == NodePublic{}
}

// Compare returns -1, 0 or +1 depending on whether n sorts before, equal to, or after other.
func (n NodePublic) Compare(other NodePublic) int {
	return bytes.Compare(n[:], other[:])
}

// Less reports whether n sorts before other.
func (n NodePublic) Less(other NodePublic) bool {
	return n.Compare(other) < 0
}

// AppendText implements encoding.TextAppender. It appends a typed prefix
// followed by hex encoded represtation of k to b.
func (n NodePublic) AppendText(b []byte) ([]byte, error) {
	return appendHexKey(b, nodePublicHexPrefix, n[:]), nil
}

// MarshalText implements encoding.TextMarshaler. It returns a typed prefix
// followed by a hex encoded representation of k.
func (n NodePublic) MarshalText() ([]byte, error) {
	return n.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler. It expects a typed prefix
// followed by a hex encoded representation of k.
func (n *NodePublic) UnmarshalText(b []byte) error {
	return parseHex(n[:], mem.B(b), mem.S(nodePublicHexPrefix))
}

// UnmarshalPublic parses a node key in its text form, with or without surrounding quotes.
func UnmarshalPublic(s string) (*NodePublic, error) {
	if !strings.HasSuffix(s, "\"") && !strings.HasPrefix(s, "\"") {
		s = fmt.Sprintf("\"%s\"", s)
	}

	pub := new(NodePublic)

	if err := json.Unmarshal([]byte(s), pub); err != nil {
		return nil, err
	}

	return pub, nil
}

func (n NodePublic) Marshal() string {
	b, _ := json.Marshal(n)
	return string(b)
}
