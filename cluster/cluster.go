// Package cluster wires a set of raft.Replica instances together over
// transport.RPCTransport: one loopback listener per replica, a shared
// address registry, and client entry points that find the leader.
package cluster

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/aecra/raftcore/metrics"
	"github.com/aecra/raftcore/raft"
	"github.com/aecra/raftcore/storage"
	"github.com/aecra/raftcore/transport"
)

// NewStateMachine constructs one StateMachine instance per replica.
type NewStateMachine func() raft.StateMachine

// Cluster starts num replicas, each listening on its own loopback port,
// all registered in one another's transport.Registry.
type Cluster struct {
	newStateMachine NewStateMachine
	num             int

	peerIDs    []raft.PeerID
	replicas   []*raft.Replica
	transports []*transport.RPCTransport
	registry   *transport.Registry
}

// NewCluster prepares a cluster of num replicas; call Serve to start it.
func NewCluster(num int, newStateMachine NewStateMachine) *Cluster {
	peerIDs := make([]raft.PeerID, num)
	for i := range peerIDs {
		peerIDs[i] = raft.PeerID(fmt.Sprintf("peer-%d", i))
	}
	return &Cluster{
		newStateMachine: newStateMachine,
		num:             num,
		peerIDs:         peerIDs,
		registry:        transport.NewRegistry(),
	}
}

// Serve starts every replica with an initial Stable configuration
// covering the whole cluster, registers each one's transport address,
// and launches its event loop.
func (c *Cluster) Serve() {
	stable := raft.StableConfig(c.peerIDs)
	c.replicas = make([]*raft.Replica, c.num)
	c.transports = make([]*transport.RPCTransport, c.num)

	for i := 0; i < c.num; i++ {
		id := c.peerIDs[i]
		log := storage.NewMemLog()

		var rep *raft.Replica
		tr, err := transport.NewRPCTransport(id, c.registry, func(msg any) { rep.Deliver(msg) })
		if err != nil {
			panic(fmt.Sprintf("cluster: failed to start transport for %s: %v", id, err))
		}
		rep = raft.NewReplica(id, log, tr, c.newStateMachine(), raft.WithInitialConfig(stable), raft.WithMetrics(metrics.Noop))

		c.replicas[i] = rep
		c.transports[i] = tr
		c.registry.Set(id, tr.Addr())
	}

	for _, r := range c.replicas {
		r.Start()
	}
}

// Shutdown stops every replica's event loop and closes its transport.
func (c *Cluster) Shutdown() {
	for _, r := range c.replicas {
		r.Stop()
	}
	for _, t := range c.transports {
		t.Close()
	}
}

// Peers returns the PeerID of every replica in the cluster.
func (c *Cluster) Peers() []raft.PeerID { return c.peerIDs }

// Replicas exposes the underlying replicas for tests that need direct
// access (e.g. to call Leader()).
func (c *Cluster) Replicas() []*raft.Replica { return c.replicas }

// Registry exposes the shared address book. Removing a peer's entry stops
// new connections to it; a transport that already holds a cached
// connection to that peer keeps using it.
func (c *Cluster) Registry() *transport.Registry { return c.registry }

// Submit tries every replica in turn and returns the first non-error
// result: only the leader accepts, everyone else redirects or rejects.
func (c *Cluster) Submit(cmd []byte) raft.Result {
	id := uuid.NewString()
	var last raft.Result
	for _, r := range c.replicas {
		res := r.Op(id, cmd)
		if res.OK {
			return res
		}
		last = res
	}
	return last
}

// SetConfig requests a membership change, trying every replica until the
// leader accepts it.
func (c *Cluster) SetConfig(newServers []raft.PeerID) raft.Result {
	id := uuid.NewString()
	var last raft.Result
	for _, r := range c.replicas {
		res := r.SetConfig(id, newServers)
		if res.OK {
			return res
		}
		last = res
	}
	return last
}
