package raft

import (
	"time"

	"go.uber.org/zap"

	"github.com/aecra/raftcore/metrics"
)

// eventKind tags the handful of things that can arrive at a Replica's
// single inbox: a timer firing, an inbound RPC, a client call, or a
// leader-identity query.
type eventKind int

const (
	evTimeout eventKind = iota
	evRPC
	evClientOp
	evClientSetConfig
	evGetLeader
	evStop
)

type event struct {
	kind eventKind

	rpc any

	clientOp       *clientOpRequest
	clientSetCfg   *clientSetConfigRequest
	getLeaderReply chan leaderReply
	stopDone       chan struct{}
}

type clientOpRequest struct {
	id    string
	cmd   []byte
	reply chan Result
}

type clientSetConfigRequest struct {
	id         string
	newServers []PeerID
	reply      chan Result
}

type leaderReply struct {
	id PeerID
	ok bool
}

// Replica is a single Raft state machine. Exactly one goroutine (run)
// ever reads or writes its unexported fields, draining a single inbox
// channel; RPC handlers, timers, and client callers all funnel through
// that inbox, so no lock is required.
type Replica struct {
	me        PeerID
	logFacade Log
	transport Transport
	sm        StateMachine
	quorum    QuorumHelper
	metrics   metrics.Recorder
	logger    *zap.SugaredLogger

	inbox  chan event
	doneCh chan struct{}

	config Config

	term        uint64
	votedFor    PeerID
	hasVotedFor bool
	leaderID    PeerID
	hasLeader   bool
	role        Role

	commitIndex uint64
	lastApplied uint64

	votesGranted map[PeerID]bool
	matchIndex   map[PeerID]uint64
	nextIndex    map[PeerID]uint64

	clientReqs []*ClientReq

	timer  *time.Timer
	timerC <-chan time.Time
}

// Option configures a Replica at construction time.
type Option func(*Replica)

func WithLogger(l *zap.SugaredLogger) Option { return func(r *Replica) { r.logger = l } }
func WithMetrics(m metrics.Recorder) Option  { return func(r *Replica) { r.metrics = m } }
func WithQuorum(q QuorumHelper) Option       { return func(r *Replica) { r.quorum = q } }

// WithInitialConfig seeds the replica's configuration directly;
// cluster.Serve and the tests give every replica the same initial Stable
// configuration. Without it a replica starts Blank and only takes a
// configuration from a replicated Config entry.
func WithInitialConfig(c Config) Option { return func(r *Replica) { r.config = c } }

// NewReplica constructs a Replica in the Follower role, recovering its
// persisted term and vote from logFacade.
func NewReplica(me PeerID, logFacade Log, transport Transport, sm StateMachine, opts ...Option) *Replica {
	r := &Replica{
		me:        me,
		logFacade: logFacade,
		transport: transport,
		sm:        sm,
		quorum:    DefaultQuorum{},
		metrics:   metrics.Noop,
		logger:    zap.NewNop().Sugar(),
		inbox:     make(chan event, 256),
		doneCh:    make(chan struct{}),
		role:      Follower,
		config:    BlankConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if term, err := logFacade.GetCurrentTerm(); err == nil {
		r.term = term
	}
	if vf, has, err := logFacade.GetVotedFor(); err == nil {
		r.votedFor, r.hasVotedFor = vf, has
	}
	return r
}

// Start launches the replica's single event loop goroutine.
func (r *Replica) Start() {
	go r.run()
}

func (r *Replica) run() {
	defer close(r.doneCh)
	defer func() {
		// A protocol violation inside the FSM is fatal: log it, then let
		// the process crash so a supervisor can restart the replica from
		// its persisted state.
		if p := recover(); p != nil {
			r.logger.Errorw("fsm halted on internal error", "panic", p)
			panic(p)
		}
	}()
	r.armElectionTimer()
	for {
		select {
		case ev := <-r.inbox:
			if ev.kind == evStop {
				r.failAllClientReqs(ErrStopped)
				close(ev.stopDone)
				return
			}
			r.dispatch(ev)
		case <-r.timerC:
			r.dispatch(event{kind: evTimeout})
		}
		r.checkClientTimeouts()
	}
}

// Stop shuts down the replica's event loop and blocks until it has
// exited, failing any still-outstanding client requests. Stopping an
// already-stopped replica is a no-op.
func (r *Replica) Stop() {
	done := make(chan struct{})
	select {
	case r.inbox <- event{kind: evStop, stopDone: done}:
	case <-r.doneCh:
		return
	}
	select {
	case <-done:
	case <-r.doneCh:
	}
	<-r.doneCh
}

// Leader reports this replica's best knowledge of the current leader.
func (r *Replica) Leader() (PeerID, bool) {
	reply := make(chan leaderReply, 1)
	select {
	case r.inbox <- event{kind: evGetLeader, getLeaderReply: reply}:
	case <-r.doneCh:
		return "", false
	}
	select {
	case res := <-reply:
		return res.id, res.ok
	case <-r.doneCh:
		return "", false
	}
}

// Op submits an opaque client command, blocking until it commits, the
// replica rejects it outright, or it times out.
func (r *Replica) Op(id string, cmd []byte) Result {
	reply := make(chan Result, 1)
	select {
	case r.inbox <- event{kind: evClientOp, clientOp: &clientOpRequest{id: id, cmd: cmd, reply: reply}}:
	case <-r.doneCh:
		return Result{ID: id, OK: false, Err: ErrStopped}
	}
	select {
	case res := <-reply:
		return res
	case <-r.doneCh:
		return Result{ID: id, OK: false, Err: ErrStopped}
	}
}

// SetConfig requests a membership change to newServers.
func (r *Replica) SetConfig(id string, newServers []PeerID) Result {
	reply := make(chan Result, 1)
	select {
	case r.inbox <- event{kind: evClientSetConfig, clientSetCfg: &clientSetConfigRequest{id: id, newServers: newServers, reply: reply}}:
	case <-r.doneCh:
		return Result{ID: id, OK: false, Err: ErrStopped}
	}
	select {
	case res := <-reply:
		return res
	case <-r.doneCh:
		return Result{ID: id, OK: false, Err: ErrStopped}
	}
}

// Deliver hands an inbound RPC message to the replica. It is called by a
// Transport implementation from whatever goroutine received the message
// off the wire, never from the replica's own run goroutine. Messages
// arriving after Stop are discarded rather than blocking the transport.
func (r *Replica) Deliver(msg any) {
	select {
	case r.inbox <- event{kind: evRPC, rpc: msg}:
	case <-r.doneCh:
	}
}

func (r *Replica) dispatch(ev event) {
	switch ev.kind {
	case evTimeout:
		r.onTimeout()
	case evGetLeader:
		ev.getLeaderReply <- leaderReply{id: r.leaderID, ok: r.hasLeader}
	case evClientOp:
		r.onClientOp(ev.clientOp)
	case evClientSetConfig:
		r.onClientSetConfig(ev.clientSetCfg)
	case evRPC:
		r.dispatchRPC(ev.rpc)
	}
}

func (r *Replica) persistTermVote(term uint64, votedFor PeerID, hasVotedFor bool) {
	if err := r.logFacade.SetTermAndVotedFor(term, votedFor, hasVotedFor); err != nil {
		r.logger.Errorw("failed to persist term/vote", "term", term, "err", err)
	}
	r.term = term
	r.votedFor = votedFor
	r.hasVotedFor = hasVotedFor
	r.metrics.SetTerm(term)
}
