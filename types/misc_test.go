package types

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameSet(t *testing.T) {
	a := netip.MustParseAddrPort("1.2.3.4:5")
	b := netip.MustParseAddrPort("[2000::1]:6")

	assert.True(t, SameSet([]netip.AddrPort{a, b}, []netip.AddrPort{b, a, a}))
	assert.False(t, SameSet([]netip.AddrPort{a}, []netip.AddrPort{a, b}))
	assert.True(t, SameSet[netip.AddrPort](nil, []netip.AddrPort{}))
}

func TestDedupKeepsFirstOrder(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, Dedup([]int{3, 1, 3, 2, 1}))
}

func TestNormaliseAddrPort(t *testing.T) {
	mapped := netip.MustParseAddrPort("[::ffff:10.0.0.1]:1337")

	assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:1337"), NormaliseAddrPort(mapped))
}

func TestPrettyAddrPortSlice(t *testing.T) {
	s := []netip.AddrPort{
		netip.MustParseAddrPort("1.2.3.4:5"),
		netip.MustParseAddrPort("[2000::1]:6"),
	}

	assert.Equal(t, "[1.2.3.4:5, [2000::1]:6]", PrettyAddrPortSlice(s))
}
