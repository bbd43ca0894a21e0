package contact

import (
	"net/netip"
	"testing"

	"github.com/LukaGiorgadze/gonull"
	"github.com/edup2p/rendezvous/types/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type closeCounter struct {
	fakeUDPConn
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func testOurInfo() *OurContactInfo {
	return &OurContactInfo{
		Socket: &closeCounter{},
		Secret: gonull.NewNullable(Secret{1, 2, 3, 4}),
		StaticAddrs: []Endpoint{
			{Protocol: TCP, Addr: netip.MustParseAddrPort("10.0.0.1:5483")},
			{Protocol: UDP, Addr: netip.MustParseAddrPort("[2000::1]:5483")},
		},
		RendezvousAddrs: []netip.AddrPort{
			netip.MustParseAddrPort("1.2.3.4:40000"),
			netip.MustParseAddrPort("5.6.7.8:40001"),
		},
		PubKey: key.NewNode().Public(),
	}
}

func TestMakeTheirInfo(t *testing.T) {
	our := testOurInfo()
	their := our.MakeTheirInfo()

	assert.Equal(t, our.Secret, their.Secret)
	assert.Equal(t, our.StaticAddrs, their.StaticAddrs)
	assert.Equal(t, our.RendezvousAddrs, their.RendezvousAddrs)
	assert.Equal(t, our.PubKey, their.PubKey)

	// the copy must not alias our slices
	their.StaticAddrs[0].Addr = netip.MustParseAddrPort("9.9.9.9:9")
	their.RendezvousAddrs[0] = netip.MustParseAddrPort("9.9.9.9:9")
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:5483"), our.StaticAddrs[0].Addr)
	assert.Equal(t, netip.MustParseAddrPort("1.2.3.4:40000"), our.RendezvousAddrs[0])
}

func TestOurContactInfo_CloseOnce(t *testing.T) {
	our := testOurInfo()
	sock := our.Socket.(*closeCounter)

	require.NoError(t, our.Close())
	require.NoError(t, our.Close())

	assert.Equal(t, 1, sock.closed)
	assert.Nil(t, our.Socket)

	var nothing *OurContactInfo
	assert.NoError(t, nothing.Close())
}

func TestTheirContactInfo_BSONRoundTrip(t *testing.T) {
	in := testOurInfo().MakeTheirInfo()

	b, err := in.MarshalBSON()
	require.NoError(t, err)

	var out TheirContactInfo
	require.NoError(t, out.UnmarshalBSON(b))

	assert.Equal(t, in, out)
}

func TestTheirContactInfo_BSONFieldOrder(t *testing.T) {
	in := testOurInfo().MakeTheirInfo()

	b, err := in.MarshalBSON()
	require.NoError(t, err)

	elems, err := bson.Raw(b).Elements()
	require.NoError(t, err)

	var keys []string
	for _, e := range elems {
		keys = append(keys, e.Key())
	}

	assert.Equal(t, []string{"secret", "static_addrs", "rendezvous_addrs", "pub_key"}, keys)
}

func TestTheirContactInfo_AbsentSecret(t *testing.T) {
	our := testOurInfo()
	our.Secret = gonull.Nullable[Secret]{}
	in := our.MakeTheirInfo()

	b, err := in.MarshalBSON()
	require.NoError(t, err)

	_, err = bson.Raw(b).LookupErr("secret")
	assert.Error(t, err, "absent secret must not be encoded")

	var out TheirContactInfo
	require.NoError(t, out.UnmarshalBSON(b))
	assert.False(t, out.Secret.Valid)
	assert.Equal(t, in, out)
}

func TestTheirContactInfo_RejectsBadSecret(t *testing.T) {
	pub, err := key.NewNode().Public().MarshalText()
	require.NoError(t, err)

	b, err := bson.Marshal(bson.D{
		{Key: "secret", Value: []byte{1, 2, 3}},
		{Key: "static_addrs", Value: bson.A{}},
		{Key: "rendezvous_addrs", Value: bson.A{}},
		{Key: "pub_key", Value: string(pub)},
	})
	require.NoError(t, err)

	var out TheirContactInfo
	assert.Error(t, out.UnmarshalBSON(b))
}

func TestEncodeDecodeTheirInfo(t *testing.T) {
	in := testOurInfo().MakeTheirInfo()

	s, err := EncodeTheirInfo(in)
	require.NoError(t, err)

	out, err := DecodeTheirInfo(s)
	require.NoError(t, err)
	assert.Equal(t, in, *out)

	_, err = DecodeTheirInfo("!!!")
	assert.Error(t, err)
}

func TestParseEndpoint(t *testing.T) {
	ep, err := ParseEndpoint("TCP://[::ffff:10.0.0.1]:80")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Protocol: TCP, Addr: netip.MustParseAddrPort("10.0.0.1:80")}, ep)
	assert.Equal(t, "tcp://10.0.0.1:80", ep.String())

	_, err = ParseEndpoint("sctp://10.0.0.1:80")
	assert.ErrorIs(t, err, ErrUnknownProtocol)

	_, err = ParseEndpoint("10.0.0.1:80")
	assert.Error(t, err)
}
