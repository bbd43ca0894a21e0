package toversok

import (
	"context"
	"net/netip"
	"testing"

	"github.com/edup2p/rendezvous/types/contact"
	"github.com/edup2p/rendezvous/types/key"
	"github.com/stretchr/testify/assert"
)

func validOptions() ServiceOptions {
	return ServiceOptions{
		Ctx:     context.Background(),
		PrivKey: key.NewNode(),
	}
}

func TestServiceOptions_Validate(t *testing.T) {
	o := validOptions()
	assert.NoError(t, o.Validate())

	for name, mod := range map[string]func(*ServiceOptions){
		"nil ctx":        func(o *ServiceOptions) { o.Ctx = nil },
		"zero key":       func(o *ServiceOptions) { o.PrivKey = key.NodePrivate{} },
		"reactors":       func(o *ServiceOptions) { o.Reactors = -1 },
		"channel length": func(o *ServiceOptions) { o.EventChannelLength = -1 },
		"overflow":       func(o *ServiceOptions) { o.Overflow = 9 },
		"stun port":      func(o *ServiceOptions) { o.StunServers = []netip.AddrPort{netip.MustParseAddrPort("1.2.3.4:0")} },
		"static":         func(o *ServiceOptions) { o.StaticEndpoints = []contact.Endpoint{{Protocol: contact.TCP}} },
	} {
		o := validOptions()
		mod(&o)
		assert.Error(t, o.Validate(), name)
	}

	var nothing *ServiceOptions
	assert.Error(t, nothing.Validate())
}

func TestServiceOptions_Defaults(t *testing.T) {
	o := validOptions().withDefaults()

	assert.Equal(t, DefaultReactors, o.Reactors)
	assert.Equal(t, DefaultEventChannelLength, o.EventChannelLength)
	assert.Equal(t, DefaultStunTimeout, o.StunTimeout)
	assert.Equal(t, DefaultUDPBind, o.UDPBind)
}
