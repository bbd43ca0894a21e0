package toversok

import (
	"net/netip"
	"time"
)

// defaults for when not provided in ServiceOptions
const (
	DefaultReactors           = 1
	DefaultEventChannelLength = 1024
	DefaultStunTimeout        = 3 * time.Second
)

var DefaultUDPBind = netip.AddrPortFrom(netip.IPv4Unspecified(), 0)
