package actors

import (
	"log/slog"
	"sync"

	"github.com/LukaGiorgadze/gonull"
	"github.com/edup2p/rendezvous/toversok/reactor"
	"github.com/edup2p/rendezvous/types/key"
	"golang.org/x/exp/maps"
)

// ConnectionID is the registry entry of a single peer.
type ConnectionID struct {
	// CurrentlyHandshaking counts the candidates racing for this peer.
	CurrentlyHandshaking int

	// ActiveConnection is the token of the connection that won, if any.
	ActiveConnection gonull.Nullable[reactor.Token]
}

func (c *ConnectionID) empty() bool {
	return c.CurrentlyHandshaking <= 0 && !c.ActiveConnection.Valid
}

// ConnectionMap tracks, per peer, how many candidates are racing and which connection won.
//
// It is shared by all loops. An entry exists only while a peer has a handshake in flight
// or an active connection.
type ConnectionMap struct {
	mu sync.Mutex
	m  map[key.NodePublic]*ConnectionID
}

func NewConnectionMap() *ConnectionMap {
	return &ConnectionMap{m: make(map[key.NodePublic]*ConnectionID)}
}

func (cm *ConnectionMap) BeginHandshake(peer key.NodePublic) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	id, ok := cm.m[peer]
	if !ok {
		id = new(ConnectionID)
		cm.m[peer] = id
	}
	id.CurrentlyHandshaking++
}

func (cm *ConnectionMap) HasActive(peer key.NodePublic) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	id, ok := cm.m[peer]
	return ok && id.ActiveConnection.Valid
}

// SetActive records token as the active connection of peer.
//
// It does not touch the handshake count. It returns false, and changes nothing, if a
// different connection is already active for this peer.
func (cm *ConnectionMap) SetActive(peer key.NodePublic, token reactor.Token) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	id, ok := cm.m[peer]
	if !ok {
		id = new(ConnectionID)
		cm.m[peer] = id
	}

	if id.ActiveConnection.Valid {
		return id.ActiveConnection.Val == token
	}

	id.ActiveConnection = gonull.NewNullable(token)
	return true
}

// EndHandshake marks one candidate for peer as finished, removing the entry when nothing is left.
func (cm *ConnectionMap) EndHandshake(peer key.NodePublic) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	id, ok := cm.m[peer]
	if !ok || id.CurrentlyHandshaking <= 0 {
		slog.Warn("ending handshake that was never begun", "peer", peer.Debug())
		return
	}

	id.CurrentlyHandshaking--
	if id.empty() {
		delete(cm.m, peer)
	}
}

// ClearActive forgets the active connection of peer, if it is still token.
func (cm *ConnectionMap) ClearActive(peer key.NodePublic, token reactor.Token) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	id, ok := cm.m[peer]
	if !ok || !id.ActiveConnection.Valid || id.ActiveConnection.Val != token {
		return
	}

	id.ActiveConnection = gonull.Nullable[reactor.Token]{}
	if id.empty() {
		delete(cm.m, peer)
	}
}

// Get returns a copy of the entry of peer.
func (cm *ConnectionMap) Get(peer key.NodePublic) (ConnectionID, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	id, ok := cm.m[peer]
	if !ok {
		return ConnectionID{}, false
	}
	return *id, true
}

func (cm *ConnectionMap) Exists(peer key.NodePublic) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	_, ok := cm.m[peer]
	return ok
}

func (cm *ConnectionMap) Len() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	return len(cm.m)
}

func (cm *ConnectionMap) Peers() []key.NodePublic {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	return maps.Keys(cm.m)
}
