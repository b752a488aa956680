// Package transport implements raft.Transport over net/rpc, with an
// explicit, swappable peer registry mapping replica identities to dial
// addresses.
package transport

import (
	"fmt"
	"sync"

	"github.com/aecra/raftcore/raft"
)

// Registry maps a replica's logical PeerID to its dial address,
// decoupling identity from network location.
type Registry struct {
	mu        sync.RWMutex
	addresses map[raft.PeerID]string
}

// NewRegistry returns an empty address book.
func NewRegistry() *Registry {
	return &Registry{addresses: make(map[raft.PeerID]string)}
}

// Set records the dial address for id.
func (reg *Registry) Set(id raft.PeerID, addr string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.addresses[id] = addr
}

// Remove forgets id, so later Resolve calls for it fail. Connections a
// transport already holds to id are not closed.
func (reg *Registry) Remove(id raft.PeerID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.addresses, id)
}

// Resolve returns the dial address for id.
func (reg *Registry) Resolve(id raft.PeerID) (string, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	addr, ok := reg.addresses[id]
	if !ok {
		return "", fmt.Errorf("transport: no address registered for peer %q", id)
	}
	return addr, nil
}
