package transport

import (
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/aecra/raftcore/raft"
)

// SendTimeout bounds how long a single RPC send is waited on before
// RPCTransport gives up on it and drops the cached connection. A send
// that errors or times out is not retried; one that timed out may still
// have reached the peer.
var SendTimeout = 200 * time.Millisecond

// Ack is the empty reply value for every raft RPC method: the real
// "reply" is a later, independent message sent back the other way
// (e.g. a Vote is its own Send call, not RequestVote's return value).
// It must be exported for net/rpc to accept the service methods.
type Ack struct{}

// rpcService is the net/rpc-registered object that forwards every
// inbound call straight into the owning replica's inbox.
type rpcService struct {
	deliver func(msg any)
}

func (s *rpcService) RequestVote(args raft.RequestVote, _ *Ack) error {
	s.deliver(args)
	return nil
}

func (s *rpcService) Vote(args raft.Vote, _ *Ack) error {
	s.deliver(args)
	return nil
}

func (s *rpcService) AppendEntries(args raft.AppendEntries, _ *Ack) error {
	s.deliver(args)
	return nil
}

func (s *rpcService) AppendEntriesReply(args raft.AppendEntriesReply, _ *Ack) error {
	s.deliver(args)
	return nil
}

// RPCTransport implements raft.Transport over net/rpc: it looks up
// peers through a Registry and degrades silently on failure.
type RPCTransport struct {
	self     raft.PeerID
	registry *Registry
	deliver  func(msg any)

	listener net.Listener

	mu      sync.Mutex
	clients map[raft.PeerID]*rpc.Client
}

// NewRPCTransport starts listening on a loopback port and returns a
// transport ready to Send to any peer registered in registry. deliver is
// called, from an internal goroutine, for every inbound RPC.
func NewRPCTransport(self raft.PeerID, registry *Registry, deliver func(msg any)) (*RPCTransport, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("Raft", &rpcService{deliver: deliver}); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	t := &RPCTransport{
		self:     self,
		registry: registry,
		deliver:  deliver,
		listener: ln,
		clients:  make(map[raft.PeerID]*rpc.Client),
	}
	go server.Accept(ln)
	return t, nil
}

// Addr is this transport's own listen address, to be registered for it
// under its PeerID in every peer's Registry.
func (t *RPCTransport) Addr() string { return t.listener.Addr().String() }

// Close stops accepting inbound connections and closes every cached
// outbound client.
func (t *RPCTransport) Close() error {
	t.mu.Lock()
	for id, c := range t.clients {
		c.Close()
		delete(t.clients, id)
	}
	t.mu.Unlock()
	return t.listener.Close()
}

// Send delivers msg to peer "to" on a detached goroutine; it never
// blocks the caller and never returns an error, matching the
// raft.Transport contract.
func (t *RPCTransport) Send(to raft.PeerID, msg any) {
	go t.send(to, msg)
}

func (t *RPCTransport) send(to raft.PeerID, msg any) {
	method, ok := methodFor(msg)
	if !ok {
		return
	}
	client, err := t.clientFor(to)
	if err != nil {
		return
	}
	var reply Ack
	call := client.Go("Raft."+method, msg, &reply, make(chan *rpc.Call, 1))
	select {
	case done := <-call.Done:
		if done.Error != nil {
			t.dropClient(to)
		}
	case <-time.After(SendTimeout):
		t.dropClient(to)
	}
}

func methodFor(msg any) (string, bool) {
	switch msg.(type) {
	case raft.RequestVote:
		return "RequestVote", true
	case raft.Vote:
		return "Vote", true
	case raft.AppendEntries:
		return "AppendEntries", true
	case raft.AppendEntriesReply:
		return "AppendEntriesReply", true
	default:
		return "", false
	}
}

func (t *RPCTransport) clientFor(id raft.PeerID) (*rpc.Client, error) {
	t.mu.Lock()
	if c, ok := t.clients[id]; ok {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	addr, err := t.registry.Resolve(id)
	if err != nil {
		return nil, err
	}
	client, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if existing, ok := t.clients[id]; ok {
		t.mu.Unlock()
		client.Close()
		return existing, nil
	}
	t.clients[id] = client
	t.mu.Unlock()
	return client, nil
}

func (t *RPCTransport) dropClient(id raft.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[id]; ok {
		c.Close()
		delete(t.clients, id)
	}
}
