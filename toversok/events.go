package toversok

import (
	"github.com/edup2p/rendezvous/types/contact"
	"github.com/edup2p/rendezvous/types/key"
)

// Event is anything a Service reports on its EventChannel.
type Event interface {
	EventName() string
}

// NewMessage is a payload received from a peer.
type NewMessage struct {
	Peer    key.NodePublic
	Payload []byte
}

func (NewMessage) EventName() string {
	return "NewMessage"
}

// NewBootstrapConnection is a connection that won its race after being handed off as a bootstrap connection.
type NewBootstrapConnection struct {
	Connection  *Connection
	TheirPubKey key.NodePublic
}

func (NewBootstrapConnection) EventName() string {
	return "NewBootstrapConnection"
}

// NewConnection is the outcome of rendezvous connection attempts to a peer.
//
// Either Connection or Err is set; Err is only reported once no attempt is left in flight.
type NewConnection struct {
	Connection  *Connection
	Err         error
	TheirPubKey key.NodePublic
}

func (NewConnection) EventName() string {
	return "NewConnection"
}

// LostConnection reports that the active connection to a peer went away.
type LostConnection struct {
	Peer key.NodePublic
}

func (LostConnection) EventName() string {
	return "LostConnection"
}

type BootstrapFinished struct{}

func (BootstrapFinished) EventName() string {
	return "BootstrapFinished"
}

// ExternalEndpoints carries the endpoints we are reachable on, whenever they change.
type ExternalEndpoints struct {
	Endpoints []contact.Endpoint
}

func (ExternalEndpoints) EventName() string {
	return "ExternalEndpoints"
}

// ContactInfoPrepared answers a PrepareContactInfo call.
type ContactInfoPrepared struct {
	Result contact.ContactInfoResult
}

func (ContactInfoPrepared) EventName() string {
	return "ContactInfoPrepared"
}

// releaser is implemented by events owning resources, which are freed when the event is dropped undelivered.
type releaser interface {
	release()
}

func (e ContactInfoPrepared) release() {
	if e.Result.Result != nil {
		_ = e.Result.Result.Close()
	}
}

func releaseEvent(ev Event) {
	if r, ok := ev.(releaser); ok {
		r.release()
	}
}
