package raft

// Log is the durable-storage facade: persisted log entries plus the two
// pieces of persisted Raft state (current_term, voted_for). Indices are
// 1-based; index 0 denotes "before the first entry".
//
// Implementations live outside this package (see storage/memory.go and
// storage/bolt.go) and are swapped in at construction time.
type Log interface {
	GetLastIndex() uint64
	GetLastTerm() uint64
	GetEntry(index uint64) (LogEntry, bool)
	GetTerm(index uint64) uint64
	Append(entries []LogEntry) (lastIndex uint64, err error)
	Truncate(prevIndex uint64) error

	GetCurrentTerm() (uint64, error)
	GetVotedFor() (PeerID, bool, error)
	// SetTermAndVotedFor persists both fields as a single atomic write, so
	// a crash can never observe a term bump without the cleared vote that
	// must accompany it (invariant: voted_for is only valid for term).
	SetTermAndVotedFor(term uint64, votedFor PeerID, hasVotedFor bool) error
}

// Transport is the RPC facade. Send is best-effort and must not block the
// caller: the replica's single event loop calls it inline while holding
// no lock but also serving no other event concurrently, so a blocking
// Send would stall the whole FSM. A bounded, asynchronous RPC with a
// deliver-back-into-the-inbox callback (see transport.RPCTransport)
// satisfies this; a dropped or late reply simply never arrives.
type Transport interface {
	Send(to PeerID, msg any)
}

// StateMachine is the applied-state facade. Apply is called exactly once
// per committed Op entry, in log order, and must be deterministic.
type StateMachine interface {
	Apply(cmd []byte) any
}

// QuorumHelper isolates the majority arithmetic that depends on Config's
// tagged shape (plain majority for Stable, a majority of each group for
// Transitional joint consensus) from the FSM logic that consumes it.
type QuorumHelper interface {
	// HasQuorum reports whether granted (peer -> vote granted) constitutes
	// a quorum for cfg.
	HasQuorum(cfg Config, granted map[PeerID]bool) bool
	// QuorumMinIndex returns the highest log index acknowledged by a
	// quorum of cfg, given each peer's match index, the leader's own
	// identity, and its own last log index (the leader always counts as
	// having replicated up to its own log).
	QuorumMinIndex(cfg Config, matchIndex map[PeerID]uint64, self PeerID, selfIndex uint64) uint64
}
