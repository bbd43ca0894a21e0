package contact

import (
	"encoding/base64"
	"fmt"
	"net/netip"

	"github.com/LukaGiorgadze/gonull"
	"github.com/edup2p/rendezvous/types/key"
	"go.mongodb.org/mongo-driver/bson"
)

// Field order of this document is the wire order.
type theirInfoDoc struct {
	Secret          []byte         `bson:"secret,omitempty"`
	StaticAddrs     []endpointDoc  `bson:"static_addrs"`
	RendezvousAddrs []string       `bson:"rendezvous_addrs"`
	PubKey          key.NodePublic `bson:"pub_key"`
}

type endpointDoc struct {
	Protocol string `bson:"protocol"`
	Addr     string `bson:"addr"`
}

func (t TheirContactInfo) MarshalBSON() ([]byte, error) {
	doc := &theirInfoDoc{
		StaticAddrs:     make([]endpointDoc, 0, len(t.StaticAddrs)),
		RendezvousAddrs: make([]string, 0, len(t.RendezvousAddrs)),
		PubKey:          t.PubKey,
	}

	if t.Secret.Valid {
		doc.Secret = t.Secret.Val[:]
	}

	for _, ep := range t.StaticAddrs {
		doc.StaticAddrs = append(doc.StaticAddrs, endpointDoc{
			Protocol: ep.Protocol.String(),
			Addr:     ep.Addr.String(),
		})
	}

	for _, ap := range t.RendezvousAddrs {
		doc.RendezvousAddrs = append(doc.RendezvousAddrs, ap.String())
	}

	// a pointer, so that the key's bson hooks apply
	return bson.Marshal(doc)
}

func (t *TheirContactInfo) UnmarshalBSON(b []byte) error {
	doc := new(theirInfoDoc)

	if err := bson.Unmarshal(b, doc); err != nil {
		return err
	}

	out := TheirContactInfo{PubKey: doc.PubKey}

	switch len(doc.Secret) {
	case 0:
	case SecretLen:
		out.Secret = gonull.NewNullable(Secret(doc.Secret))
	default:
		return fmt.Errorf("secret has length %d, expected %d", len(doc.Secret), SecretLen)
	}

	for _, ed := range doc.StaticAddrs {
		p, err := ParseProtocol(ed.Protocol)
		if err != nil {
			return err
		}
		ap, err := netip.ParseAddrPort(ed.Addr)
		if err != nil {
			return fmt.Errorf("could not parse static address: %w", err)
		}
		out.StaticAddrs = append(out.StaticAddrs, Endpoint{Protocol: p, Addr: ap})
	}

	for _, s := range doc.RendezvousAddrs {
		ap, err := netip.ParseAddrPort(s)
		if err != nil {
			return fmt.Errorf("could not parse rendezvous address: %w", err)
		}
		out.RendezvousAddrs = append(out.RendezvousAddrs, ap)
	}

	*t = out
	return nil
}

// EncodeTheirInfo renders contact info as a single copy-pasteable token.
func EncodeTheirInfo(t TheirContactInfo) (string, error) {
	b, err := t.MarshalBSON()
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeTheirInfo(s string) (*TheirContactInfo, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("could not decode contact info: %w", err)
	}

	t := new(TheirContactInfo)
	if err := t.UnmarshalBSON(b); err != nil {
		return nil, fmt.Errorf("could not unmarshal contact info: %w", err)
	}

	return t, nil
}
