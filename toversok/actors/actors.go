// Package actors is the "meat and bones" of the rendezvous layer;
// it drives raw peer connections from the moment they are handed off, until one of them is kept per peer.
//
// A Loop owns a reactor.Poller and a Core, and runs every state the Core holds on its own goroutine:
// ConnectionCandidate negotiates which of possibly many connections to a peer survives,
// and ActiveConn carries payloads over the survivor afterwards.
// The ConnectionMap is the only piece of state shared between loops.
//
// The EndpointManager prepares contact information on its own goroutine, since STUN discovery blocks.
package actors
